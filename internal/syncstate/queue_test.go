package syncstate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/report"
)

func TestQueue_SubmitAssignsSequence(t *testing.T) {
	q := newTestQueue(t, 0x100, 2)
	assert.Equal(t, uint32(2), q.Family())
	assert.Equal(t, uint64(0), q.Seq())

	subs := []*Submission{{BatchID: "a"}, {BatchID: "b"}, {BatchID: "c", IsLast: true}}
	last := q.Submit(subs)

	assert.Equal(t, uint64(3), last)
	for i, sub := range subs {
		assert.Equal(t, uint64(i+1), sub.Seq)
		require.NotNil(t, sub.Done())
		assert.False(t, sub.Done().Poll())
	}
	assert.Equal(t, 3, q.Pending())
	assert.Same(t, subs[1], q.Submission(2))
	assert.Nil(t, q.Submission(4))
}

func TestQueue_BinaryPayloadWrittenBack(t *testing.T) {
	q := newTestQueue(t, 0x100, 0)
	s := newTestSemaphore(1, KindBinary, 0, nil)

	sig := &Submission{Signals: []SemaphoreInfo{{Semaphore: s}}}
	wait := &Submission{Waits: []SemaphoreInfo{{Semaphore: s}}}
	q.Submit([]*Submission{sig, wait})

	assert.Equal(t, uint64(1), sig.Signals[0].Payload)
	assert.Equal(t, uint64(1), wait.Waits[0].Payload)
}

func TestQueue_NotifyRetiresInOrder(t *testing.T) {
	var mu sync.Mutex
	var retired []uint64
	q := newTestQueue(t, 0x100, 0, WithRetireHook(func(sub *Submission) {
		mu.Lock()
		retired = append(retired, sub.Seq)
		mu.Unlock()
	}))

	q.Submit([]*Submission{{}, {}, {}, {}})
	q.Notify(2)
	require.NoError(t, q.Wait(2))

	mu.Lock()
	assert.Equal(t, []uint64{1, 2}, retired)
	mu.Unlock()
	assert.Eventually(t, func() bool { return q.Pending() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, q.WaitIdle())
	mu.Lock()
	assert.Equal(t, []uint64{1, 2, 3, 4}, retired)
	mu.Unlock()
}

func TestQueue_NotifyClampsToSubmitted(t *testing.T) {
	q := newTestQueue(t, 0x100, 0)
	q.Submit([]*Submission{{}})
	q.Notify(1000)
	require.NoError(t, q.Wait(1))

	// A later submission is not covered by the earlier request.
	sub := &Submission{}
	q.Submit([]*Submission{sub})
	time.Sleep(10 * time.Millisecond)
	assert.False(t, sub.Done().Poll())
}

func TestQueue_WaitWithoutNotifyTimesOut(t *testing.T) {
	c := report.NewCollector()
	q := newTestQueue(t, 0x100, 0, WithReporter(c), WithWaitTimeout(20*time.Millisecond))
	q.Submit([]*Submission{{}})

	err := q.Wait(1)
	require.Error(t, err)
	assert.True(t, report.IsInternal(err))
	assert.Equal(t, []report.Code{report.CodeQueueTimeout}, c.Codes())
}

func TestQueue_WaitOnRetiredSeq(t *testing.T) {
	q := newTestQueue(t, 0x100, 0)
	assert.NoError(t, q.Wait(5), "nothing pending")
}

func TestQueue_FenceRetiredWithSubmission(t *testing.T) {
	q := newTestQueue(t, 0x100, 0)
	f := NewFence(9, false)
	q.Submit([]*Submission{{}, {Fence: f}})

	require.NoError(t, q.WaitIdle())
	assert.Equal(t, FenceRetired, f.State())
}

func TestQueue_DestroyDrains(t *testing.T) {
	q := NewQueue(0x100, 0, 0, QueueGraphics, WithLogger(quietLogger))
	subs := []*Submission{{}, {}}
	q.Submit(subs)

	q.Destroy()
	assert.Equal(t, 0, q.Pending())
	for _, sub := range subs {
		assert.True(t, sub.Done().Poll())
	}

	q.Destroy()
}
