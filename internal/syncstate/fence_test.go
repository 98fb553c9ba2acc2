package syncstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/report"
)

func TestFence_Lifecycle(t *testing.T) {
	q := newTestQueue(t, 0x100, 0)
	f := NewFence(7, false, WithLogger(quietLogger))
	assert.Equal(t, FenceUnsignaled, f.State())

	seq := q.Submit([]*Submission{{Fence: f}})
	assert.Equal(t, FenceInflight, f.State())
	assert.True(t, f.InUse())
	assert.Same(t, q, f.Queue())

	require.NoError(t, f.NotifyAndWait())
	assert.Equal(t, FenceRetired, f.State())
	assert.Nil(t, f.Queue())
	assert.Equal(t, uint64(1), seq)

	f.Reset()
	assert.Equal(t, FenceUnsignaled, f.State())
}

func TestFence_CreatedSignaled(t *testing.T) {
	f := NewFence(7, true)
	assert.Equal(t, FenceRetired, f.State())
	assert.NoError(t, f.NotifyAndWait(), "waiting on a retired fence returns at once")
}

func TestFence_ResetIsIdempotent(t *testing.T) {
	f := NewFence(7, true)
	f.Reset()
	first := f.State()
	f.Reset()
	assert.Equal(t, first, f.State())
	assert.Equal(t, FenceUnsignaled, f.State())
}

func TestFence_ImportScope(t *testing.T) {
	tests := []struct {
		name      string
		ht        HandleType
		temporary bool
		want      Scope
		afterWant Scope
	}{
		{"temporary opaque", HandleTypeOpaqueFD, true, ScopeExternalTemporary, ScopeInternal},
		{"sync fd is temporary", HandleTypeSyncFD, false, ScopeExternalTemporary, ScopeInternal},
		{"permanent opaque", HandleTypeOpaqueFD, false, ScopeExternalPermanent, ScopeExternalPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFence(7, false)
			f.Import(tt.ht, tt.temporary)
			assert.Equal(t, tt.want, f.Scope())
			f.Reset()
			assert.Equal(t, tt.afterWant, f.Scope(), "scope after reset")
		})
	}
}

func TestFence_ExportCopyResets(t *testing.T) {
	f := NewFence(7, true)
	f.Export(HandleTypeSyncFD)
	assert.Equal(t, FenceUnsignaled, f.State())
	assert.Equal(t, ScopeInternal, f.Scope())
}

func TestFence_ExportReferenceIsExternal(t *testing.T) {
	f := NewFence(7, true)
	f.Export(HandleTypeOpaqueFD)
	assert.Equal(t, FenceRetired, f.State(), "reference transference leaves state alone")
	assert.Equal(t, ScopeExternalPermanent, f.Scope())

	f.Reset()
	assert.Equal(t, ScopeExternalPermanent, f.Scope(), "permanent scope survives reset")
}

func TestFence_SignalFromAcquire(t *testing.T) {
	q := newTestQueue(t, 0x100, 0)
	seq := q.Submit([]*Submission{{Image: &SwapchainImage{Swapchain: 1, Index: 0}}})

	f := NewFence(7, false)
	f.EnqueueSignalFromAcquire([]SubmissionRef{{Queue: q, Seq: seq}, HostRef})
	assert.True(t, f.InUse())
	assert.Nil(t, f.Queue())

	require.NoError(t, f.NotifyAndWait())
	assert.Equal(t, FenceRetired, f.State())
	assert.Equal(t, 0, q.Pending(), "the present submission was retired first")
}

func TestFence_WaitTimeoutIsReported(t *testing.T) {
	c := report.NewCollector()
	q := newTestQueue(t, 0x100, 0)
	f := NewFence(7, false, WithLogger(quietLogger), WithReporter(c), WithWaitTimeout(20*time.Millisecond))

	// A seq the queue never assigned can never retire.
	f.EnqueueSignal(q, 99)
	err := f.NotifyAndWait()
	require.Error(t, err)
	assert.True(t, report.IsInternal(err))
	assert.Equal(t, []report.Code{report.CodeFenceTimeout}, c.Codes())
	assert.Equal(t, FenceInflight, f.State())
}
