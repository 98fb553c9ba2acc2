package syncstate

import (
	"sync"

	"github.com/roach88/qsync/internal/completion"
	"github.com/roach88/qsync/internal/report"
)

// FenceState is the host-visible state of a fence.
type FenceState int

const (
	FenceUnsignaled FenceState = iota
	FenceInflight
	FenceRetired
)

// String returns the state name.
func (s FenceState) String() string {
	switch s {
	case FenceUnsignaled:
		return "unsignaled"
	case FenceInflight:
		return "inflight"
	case FenceRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Fence is a host-waitable completion primitive.
//
// State machine:
//
//	unsignaled --EnqueueSignal--> inflight --Retire--> retired --Reset--> unsignaled
type Fence struct {
	handle uint64
	opts   options

	mu          sync.Mutex
	state       FenceState
	scope       Scope
	queue       *Queue
	seq         uint64
	acquireSync []SubmissionRef
	done        *completion.Handle
}

// NewFence creates a fence, already retired when signaled is true.
func NewFence(handle uint64, signaled bool, opts ...Option) *Fence {
	f := &Fence{
		handle: handle,
		opts:   newOptions(opts),
		state:  FenceUnsignaled,
		done:   completion.New(),
	}
	if signaled {
		f.state = FenceRetired
		f.done.Fulfil()
	}
	return f
}

// Handle returns the fence's handle.
func (f *Fence) Handle() uint64 { return f.handle }

// State returns the current state.
func (f *Fence) State() FenceState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Scope returns the current scope.
func (f *Fence) Scope() Scope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scope
}

// InUse reports whether a pending submission will signal the fence.
func (f *Fence) InUse() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == FenceInflight
}

// Queue returns the queue that will signal the fence, or nil.
func (f *Fence) Queue() *Queue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue
}

// EnqueueSignal marks the fence in flight on q at seq.
func (f *Fence) EnqueueSignal(q *Queue, seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = FenceInflight
	f.queue = q
	f.seq = seq
	f.acquireSync = nil
	f.done = completion.New()
}

// EnqueueSignalFromAcquire marks the fence in flight on behalf of an image
// acquire. refs are the present submissions the acquired image still depends
// on; waiting on the fence also waits on them.
func (f *Fence) EnqueueSignalFromAcquire(refs []SubmissionRef) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = FenceInflight
	f.queue = nil
	f.seq = 0
	f.acquireSync = append([]SubmissionRef(nil), refs...)
	f.done = completion.New()
}

// Retire completes an in-flight fence.
func (f *Fence) Retire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retireLocked()
}

func (f *Fence) retireLocked() {
	if f.state != FenceInflight {
		return
	}
	f.state = FenceRetired
	f.queue = nil
	f.acquireSync = nil
	f.done.Fulfil()
}

// Reset returns the fence to unsignaled. A temporary import is dropped.
func (f *Fence) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

func (f *Fence) resetLocked() {
	if f.scope == ScopeExternalTemporary {
		f.scope = ScopeInternal
	}
	f.state = FenceUnsignaled
	f.queue = nil
	f.acquireSync = nil
	f.done = completion.New()
}

// Import records an external payload import.
func (f *Fence) Import(ht HandleType, temporary bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scope = importScope(f.scope, temporary || ht == HandleTypeSyncFD)
}

// Export records an external handle export. A reference-transference
// export makes the scope external-permanent. Copy-transference exports reset
// the fence as if it had been waited and reset.
func (f *Fence) Export(ht HandleType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !ht.HasCopyTransference() {
		f.scope = ScopeExternalPermanent
		return
	}
	f.resetLocked()
}

// HostWaiter asks the owning queue to advance to the fence's submission and
// returns the handle that fires once the fence retires. It does not block.
// Returns nil for an unsignaled fence, which nothing pending will signal.
//
// A fence signaled by an image acquire retires on a helper goroutine once
// the present submissions it depends on have retired.
func (f *Fence) HostWaiter() *completion.Handle {
	f.mu.Lock()
	switch f.state {
	case FenceUnsignaled:
		f.mu.Unlock()
		return nil
	case FenceRetired:
		f.mu.Unlock()
		return completion.Fulfilled()
	}
	q, seq := f.queue, f.seq
	refs := append([]SubmissionRef(nil), f.acquireSync...)
	waiter := f.done
	f.mu.Unlock()

	if q != nil {
		q.Notify(seq)
		return waiter
	}
	for _, r := range refs {
		if r.Queue != nil {
			r.Queue.Notify(r.Seq)
		}
	}
	go func() {
		for _, r := range refs {
			if r.Queue == nil {
				continue
			}
			// Timeouts are reported by Queue.Wait.
			if r.Queue.Wait(r.Seq) != nil {
				return
			}
		}
		f.retireIf(waiter)
	}()
	return waiter
}

// retireIf retires the fence only if it is still in flight on the signal
// that produced waiter.
func (f *Fence) retireIf(waiter *completion.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == waiter {
		f.retireLocked()
	}
}

// NotifyAndWait asks the owning queue to advance to the fence's submission
// and blocks until the fence retires. A timeout is reported as an internal
// violation: it means the worker model is stuck, not that the caller erred.
func (f *Fence) NotifyAndWait() error {
	f.mu.Lock()
	if f.state != FenceInflight {
		f.mu.Unlock()
		return nil
	}
	q, seq := f.queue, f.seq
	refs := append([]SubmissionRef(nil), f.acquireSync...)
	waiter := f.done
	f.mu.Unlock()

	if q == nil {
		// Signaled by an image acquire: retire once the present
		// submissions it depends on have retired.
		for _, r := range refs {
			if r.Queue == nil {
				continue
			}
			if err := r.Queue.NotifyAndWait(r.Seq); err != nil {
				return err
			}
		}
		f.Retire()
		return nil
	}

	q.Notify(seq)
	if waiter.Wait(f.opts.timeout) {
		return nil
	}
	v := report.Internal(report.CodeFenceTimeout, "Fence.NotifyAndWait",
		report.Objects(report.Fence(f.handle), report.Queue(q.Handle())),
		"timeout waiting for fence state to update (seq %d)", seq)
	f.opts.logger.Error("fence wait timed out",
		"fence", f.handle,
		"queue", q.Handle(),
		"seq", seq,
	)
	f.opts.reporter.Report(v)
	return v
}
