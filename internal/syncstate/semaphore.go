package syncstate

import (
	"sync"

	"github.com/roach88/qsync/internal/completion"
	"github.com/roach88/qsync/internal/report"
)

// Semaphore is a binary or timeline semaphore with its operation ledger.
//
// Thread-safety: every method is safe for concurrent use. The mutex is never
// held while calling into a Queue or blocking on a completion handle.
//
// INVARIANTS:
//   - every payload in the ledger is > completed.Payload
//   - retirement removes the lowest live payloads first
//   - a binary ledger never holds two timepoints without a waiter between them
type Semaphore struct {
	handle uint64
	kind   SemaphoreKind
	opts   options

	mu          sync.Mutex
	scope       Scope
	completed   SemOp
	nextPayload uint64
	timeline    ledger
	exported    []HandleType
}

// NewSemaphore creates a semaphore. initialValue is ignored for binary
// semaphores.
func NewSemaphore(handle uint64, kind SemaphoreKind, initialValue uint64, opts ...Option) *Semaphore {
	s := &Semaphore{
		handle:      handle,
		kind:        kind,
		opts:        newOptions(opts),
		nextPayload: 1,
	}
	if kind == KindTimeline {
		s.completed = SemOp{Kind: OpSignal, Payload: initialValue}
	}
	return s
}

// Handle returns the semaphore's handle.
func (s *Semaphore) Handle() uint64 { return s.handle }

// Kind returns binary or timeline.
func (s *Semaphore) Kind() SemaphoreKind { return s.kind }

// Scope returns the current scope.
func (s *Semaphore) Scope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// CurrentPayload returns the payload of the most recently retired operation.
// For timeline semaphores this is the counter value the host would observe.
func (s *Semaphore) CurrentPayload() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed.Payload
}

// Completed returns the most recently retired operation.
func (s *Semaphore) Completed() SemOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// InUse reports whether any pending operation still references the semaphore.
func (s *Semaphore) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.len() > 0
}

// Pending returns a copy of the live timepoints, lowest payload first.
func (s *Semaphore) Pending() []TimePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimePoint, len(s.timeline.points))
	for i, tp := range s.timeline.points {
		out[i] = *tp
		out[i].Waits = append([]SubmissionRef(nil), tp.Waits...)
	}
	return out
}

func (s *Semaphore) ref() report.ObjectRef {
	return report.Semaphore(s.handle)
}

func (s *Semaphore) invariant(loc, format string, args ...any) {
	v := report.Internal(report.CodeInvariant, loc, report.Objects(s.ref()), format, args...)
	s.opts.logger.Error("semaphore invariant violated",
		"semaphore", s.handle,
		"kind", s.kind.String(),
		"detail", v.Message,
	)
	s.opts.reporter.Report(v)
}

// EnqueueSignal records a pending signal from ref. Binary semaphores ignore
// payload and synthesize one. Returns the payload used.
func (s *Semaphore) EnqueueSignal(ref SubmissionRef, payload uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind == KindBinary {
		payload = s.nextPayload
		s.nextPayload++
	}
	tp := s.timeline.get(payload)
	if tp.HasSignaler() {
		s.invariant("Semaphore.EnqueueSignal", "payload %d already has a signal", payload)
	}
	r := ref
	tp.Signal = &r

	s.opts.logger.Debug("semaphore signal enqueued",
		"semaphore", s.handle,
		"payload", payload,
		"host", ref.IsHost(),
		"seq", ref.Seq,
	)
	return payload
}

// EnqueueWait records a pending wait from ref. Binary semaphores ignore
// payload and wait on the most recent pending signal. Returns the payload the
// wait was registered on and whether it was satisfied immediately.
func (s *Semaphore) EnqueueWait(ref SubmissionRef, payload uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind == KindBinary {
		last := s.timeline.last()
		if last == nil {
			if s.scope == ScopeInternal && !canWaitBinaryAfter(s.completed.Kind) {
				s.invariant("Semaphore.EnqueueWait", "wait enqueued before any signal (last op %s)", s.completed.Kind)
			}
			s.completed = SemOp{Kind: OpWait, Payload: s.completed.Payload, Submit: ref}
			if s.scope == ScopeExternalTemporary {
				s.scope = ScopeInternal
			}
			return s.completed.Payload, true
		}
		if !last.HasSignaler() && s.scope == ScopeInternal {
			s.invariant("Semaphore.EnqueueWait", "latest timepoint %d has no signal", last.Payload)
		}
		last.Waits = append(last.Waits, ref)
		return last.Payload, false
	}

	// Already reached: completed is left as is so the payload stays monotonic.
	if payload <= s.completed.Payload {
		return payload, true
	}
	tp := s.timeline.get(payload)
	tp.Waits = append(tp.Waits, ref)

	s.opts.logger.Debug("semaphore wait enqueued",
		"semaphore", s.handle,
		"payload", payload,
		"seq", ref.Seq,
	)
	return payload, false
}

// EnqueueAcquire records a binary signal produced by an image acquire.
// Returns the synthesized payload.
func (s *Semaphore) EnqueueAcquire(source string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind != KindBinary {
		s.invariant("Semaphore.EnqueueAcquire", "acquire on %s semaphore", s.kind)
	}
	payload := s.nextPayload
	s.nextPayload++
	tp := s.timeline.get(payload)
	tp.Acquire = source
	return payload
}

// retireLocked completes every timepoint up to payload and records op.
func (s *Semaphore) retireLocked(payload uint64, op SemOp) {
	s.timeline.retireThrough(payload)
	s.completed = op
	if op.Kind == OpWait && s.scope == ScopeExternalTemporary {
		s.scope = ScopeInternal
	}
}

// RetireSignal retires the signal at payload. If the timepoint also carries
// waits, the first wait becomes the completed record.
func (s *Semaphore) RetireSignal(payload uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload <= s.completed.Payload {
		return
	}
	tp := s.timeline.find(payload)
	if tp == nil {
		s.invariant("Semaphore.RetireSignal", "no timepoint for payload %d", payload)
		return
	}
	op, ok := tp.signalOp()
	if !ok {
		s.invariant("Semaphore.RetireSignal", "timepoint %d has no signal", payload)
		op = SemOp{Kind: OpSignal, Payload: payload}
	}
	if tp.HasWaiters() {
		op = SemOp{Kind: OpWait, Payload: payload, Submit: tp.Waits[0]}
	}
	s.retireLocked(payload, op)

	s.opts.logger.Debug("semaphore signal retired",
		"semaphore", s.handle,
		"payload", payload,
		"completed", op.Kind.String(),
	)
}

// RetireWait retires a wait registered by current at payload.
//
// If the resolving signal belongs to another queue (or has not been
// submitted yet), the owning queue is notified and the call blocks until that
// queue retires the signal. A timeout is reported as an internal violation and
// the wait is then retired locally so the caller keeps making progress.
func (s *Semaphore) RetireWait(current *Queue, payload uint64) error {
	s.mu.Lock()
	if payload <= s.completed.Payload {
		s.mu.Unlock()
		return nil
	}
	tp := s.timeline.find(payload)
	if tp == nil {
		s.invariant("Semaphore.RetireWait", "no timepoint for payload %d", payload)
		s.mu.Unlock()
		return nil
	}

	signaler := tp
	if tp.Signal == nil && s.kind == KindTimeline {
		signaler = s.timeline.firstSignalAtOrAbove(payload)
	}

	retireHere := false
	switch {
	case tp.Acquire != "":
		retireHere = true
	case signaler != nil && signaler.Signal != nil:
		// A later signal on this same queue can only retire after us.
		retireHere = signaler.Signal.Queue == current
	default:
		retireHere = s.scope != ScopeInternal
	}
	if retireHere {
		s.retireLocked(payload, SemOp{Kind: OpWait, Payload: payload, Submit: tp.waitFrom(current)})
		s.mu.Unlock()
		return nil
	}

	var notify *SubmissionRef
	if signaler != nil && signaler.Signal != nil && !signaler.Signal.IsHost() {
		r := *signaler.Signal
		notify = &r
	}
	waiter := tp.done
	wait := tp.waitFrom(current)
	s.mu.Unlock()

	if notify != nil {
		notify.Queue.Notify(notify.Seq)
	}
	if waiter.Wait(s.opts.timeout) {
		return nil
	}

	v := report.Internal(report.CodeSemaphoreTimeout, "Semaphore.RetireWait",
		report.Objects(s.ref(), report.Queue(current.Handle())),
		"timeout waiting for payload %d to be signaled", payload)
	s.opts.logger.Error("semaphore wait timed out",
		"semaphore", s.handle,
		"payload", payload,
		"queue", current.Handle(),
	)
	s.opts.reporter.Report(v)

	s.mu.Lock()
	if payload > s.completed.Payload {
		s.retireLocked(payload, SemOp{Kind: OpWait, Payload: payload, Submit: wait})
	}
	s.mu.Unlock()
	return v
}

// SignalHost performs a host-side timeline signal: payload becomes current
// immediately and every timepoint at or below it retires.
func (s *Semaphore) SignalHost(payload uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload <= s.completed.Payload {
		s.invariant("Semaphore.SignalHost", "host signal %d not above current %d", payload, s.completed.Payload)
		return
	}
	op := SemOp{Kind: OpSignal, Payload: payload, Submit: HostRef}
	if tp := s.timeline.find(payload); tp != nil && tp.HasWaiters() {
		op = SemOp{Kind: OpWait, Payload: payload, Submit: tp.Waits[0]}
	}
	s.retireLocked(payload, op)
}

// RetireTimeline retires every timepoint up to payload. Used when the
// host observes a timeline value it did not signal itself (external scope).
func (s *Semaphore) RetireTimeline(payload uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload <= s.completed.Payload {
		return
	}
	op := SemOp{Kind: OpSignal, Payload: payload, Submit: HostRef}
	if tp := s.timeline.find(payload); tp != nil {
		if sig, ok := tp.signalOp(); ok {
			op = sig
		}
		if tp.HasWaiters() {
			op = SemOp{Kind: OpWait, Payload: payload, Submit: tp.Waits[0]}
		}
	}
	s.retireLocked(payload, op)
}

// HostWaiter asks the queue owning the first signal at or above payload to
// retire it and returns the handle that fires once the timeline reaches
// payload. It does not block. Returns nil when nothing pending can ever reach
// payload.
func (s *Semaphore) HostWaiter(payload uint64) *completion.Handle {
	s.mu.Lock()
	if payload <= s.completed.Payload {
		s.mu.Unlock()
		return completion.Fulfilled()
	}
	tp := s.timeline.firstSignalAtOrAbove(payload)
	if tp == nil {
		s.mu.Unlock()
		return nil
	}
	var notify *SubmissionRef
	if tp.Signal != nil && !tp.Signal.IsHost() {
		r := *tp.Signal
		notify = &r
	}
	waiter := tp.done
	s.mu.Unlock()

	if notify != nil {
		notify.Queue.Notify(notify.Seq)
	}
	return waiter
}

// NotifyAndWait blocks the host until the timeline reaches payload.
//
// Returns false with a nil error when nothing pending can ever reach payload
// (the host wait would simply time out on the device). A worker timeout is
// returned as an internal violation.
func (s *Semaphore) NotifyAndWait(payload uint64) (bool, error) {
	waiter := s.HostWaiter(payload)
	if waiter == nil {
		return false, nil
	}
	if waiter.Wait(s.opts.timeout) {
		return true, nil
	}
	v := report.Internal(report.CodeSemaphoreTimeout, "Semaphore.NotifyAndWait",
		report.Objects(s.ref()), "timeout waiting for host wait on payload %d", payload)
	s.opts.reporter.Report(v)
	return false, v
}

// LastOp scans the ledger from the highest payload down, then falls back to
// the completed record, returning the first op for which pred holds. Within a
// timepoint, waits are considered later than the signal.
func (s *Semaphore) LastOp(pred func(op SemOp, pending bool) bool) (SemOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.timeline.points) - 1; i >= 0; i-- {
		tp := s.timeline.points[i]
		for j := len(tp.Waits) - 1; j >= 0; j-- {
			op := SemOp{Kind: OpWait, Payload: tp.Payload, Submit: tp.Waits[j]}
			if pred(op, true) {
				return op, true
			}
		}
		if op, ok := tp.signalOp(); ok && pred(op, true) {
			return op, true
		}
	}
	if s.completed.Kind != OpNone && pred(s.completed, false) {
		return s.completed, true
	}
	return SemOp{}, false
}

// CanBinaryBeSignaled reports whether the most recent slot has no unresolved
// signal.
func (s *Semaphore) CanBinaryBeSignaled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.timeline.last()
	if last == nil {
		return canSignalBinaryAfter(s.completed.Kind)
	}
	return last.HasWaiters()
}

// CanBinaryBeWaited reports whether the most recent slot has a signal with no
// waiter yet.
func (s *Semaphore) CanBinaryBeWaited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.timeline.last()
	if last == nil {
		return canWaitBinaryAfter(s.completed.Kind)
	}
	return last.HasSignaler() && !last.HasWaiters()
}

// HasSignalAtOrAbove reports whether the timeline has reached payload or has a
// pending signal that will reach it.
func (s *Semaphore) HasSignalAtOrAbove(payload uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload <= s.completed.Payload {
		return true
	}
	return s.timeline.firstSignalAtOrAbove(payload) != nil
}

// Waiter returns the completion handle for payload, or an already fulfilled
// handle when payload has retired. Returns nil when nothing is pending there.
func (s *Semaphore) Waiter(payload uint64) *completion.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload <= s.completed.Payload {
		return completion.Fulfilled()
	}
	if tp := s.timeline.find(payload); tp != nil {
		return tp.done
	}
	return nil
}

// Import records an external handle import.
func (s *Semaphore) Import(ht HandleType, temporary bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Binary sync fd imports are always temporary.
	temp := temporary || (s.kind == KindBinary && ht == HandleTypeSyncFD)
	s.scope = importScope(s.scope, temp)
}

// Export records an external handle export. A reference-transference
// export shares the payload with an agent qsync cannot observe, so the scope
// becomes external-permanent. Copy-transference exports of a binary
// semaphore consume the pending signal as if the host had waited.
func (s *Semaphore) Export(ht HandleType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exported = append(s.exported, ht)
	if !ht.HasCopyTransference() {
		s.scope = ScopeExternalPermanent
		return
	}
	if s.kind != KindBinary {
		return
	}
	last := s.timeline.last()
	if last == nil {
		s.completed = SemOp{Kind: OpWait, Payload: s.completed.Payload, Submit: HostRef}
		if s.scope == ScopeExternalTemporary {
			s.scope = ScopeInternal
		}
		return
	}
	if !last.HasWaiters() {
		last.Waits = append(last.Waits, HostRef)
	}
}

// ExportedTypes returns every handle type exported so far.
func (s *Semaphore) ExportedTypes() []HandleType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HandleType(nil), s.exported...)
}
