package trace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	r := NewClockAt(10)
	assert.Equal(t, int64(11), r.Next())
}

func TestClock_Concurrent(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup
	seen := make(chan int64, 400)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seen <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		unique[v] = true
	}
	assert.Len(t, unique, 400)
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestCountingGenerator(t *testing.T) {
	g := NewCountingGenerator("batch")
	assert.Equal(t, "batch-1", g.Generate())
	assert.Equal(t, "batch-2", g.Generate())
}

type failingSink struct{}

func (failingSink) Record(context.Context, Event) error { return errors.New("disk full") }

func TestRecorder_StampsInOrder(t *testing.T) {
	mem := NewMemory()
	rec := NewRecorder(mem, NewClockAt(100), nil)

	rec.Emit(context.Background(), Event{Kind: KindSubmit})
	seq := rec.Emit(context.Background(), Event{Kind: KindRetire})

	assert.Equal(t, int64(102), seq)
	events := mem.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(101), events[0].Seq)
	assert.Equal(t, KindRetire, events[1].Kind)
}

func TestRecorder_SinkErrorIsSwallowed(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := NewMemory()
	rec := NewRecorder(Tee(failingSink{}, mem), nil, quiet)

	assert.Equal(t, int64(1), rec.Emit(context.Background(), Event{Kind: KindIdle}))
	assert.Empty(t, mem.Events(), "tee stops at the first failing sink")
}

func TestMemory_Lines(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.Record(context.Background(), Event{Seq: 1, Kind: KindSubmit, BatchID: "batch-1", Queue: 1, QueueSeq: 1}))
	require.NoError(t, mem.Record(context.Background(), Event{Seq: 2, Kind: KindHostSignal, Object: "VkSemaphore 0x2", Payload: 5}))

	out, err := mem.Lines()
	require.NoError(t, err)
	assert.Equal(t,
		`{"batch":"batch-1","kind":"submit","queue":1,"queue_seq":1,"seq":1}`+"\n"+
			`{"kind":"host_signal","object":"VkSemaphore 0x2","payload":5,"seq":2}`+"\n",
		string(out))
}
