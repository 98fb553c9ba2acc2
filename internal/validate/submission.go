package validate

import (
	"fmt"
	"log/slog"

	"github.com/roach88/qsync/internal/qfo"
	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/syncstate"
)

// CallQueueSubmit is the API entry point name used in rejections.
const CallQueueSubmit = "vkQueueSubmit"

// binaryState is the in-batch view of a binary semaphore.
type binaryState struct {
	signaled bool

	// signaler is the index of the in-batch submission that signaled it,
	// or -1 when the state came from a wait or an external pass.
	signaler int
}

// SubmissionValidator checks one batch of submissions destined for a queue.
//
// It is ephemeral: create one per call with NewSubmissionValidator, call
// Validate once, and discard it. The caller must hold the device submit lock
// from Validate until the batch is committed, otherwise the ledgers can move
// between check and commit.
type SubmissionValidator struct {
	queue    *syncstate.Queue
	registry *qfo.Registry
	limits   Limits
	logger   *slog.Logger

	subs     []*syncstate.Submission
	binary   map[*syncstate.Semaphore]binaryState
	waits    map[*syncstate.Semaphore][]uint64
	signals  map[*syncstate.Semaphore][]uint64
	internal map[*syncstate.Semaphore]bool
	fences   map[*syncstate.Fence]bool

	released []qfo.Barrier
	consumed map[qfo.Barrier]bool

	violations []*report.Violation
}

// NewSubmissionValidator creates a validator for submissions to q.
// A nil logger uses slog.Default().
func NewSubmissionValidator(q *syncstate.Queue, registry *qfo.Registry, limits Limits, logger *slog.Logger) *SubmissionValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionValidator{
		queue:    q,
		registry: registry,
		limits:   limits,
		logger:   logger,
		binary:   make(map[*syncstate.Semaphore]binaryState),
		waits:    make(map[*syncstate.Semaphore][]uint64),
		signals:  make(map[*syncstate.Semaphore][]uint64),
		internal: make(map[*syncstate.Semaphore]bool),
		fences:   make(map[*syncstate.Fence]bool),
		consumed: make(map[qfo.Barrier]bool),
	}
}

// Validate checks every submission in order. Returns a *report.RejectError
// carrying all violations, or nil when the batch may be committed.
func (v *SubmissionValidator) Validate(subs []*syncstate.Submission) error {
	v.subs = subs
	for i, sub := range subs {
		for j, w := range sub.Waits {
			loc := fmt.Sprintf("%s.pSubmits[%d].pWaitSemaphores[%d]", CallQueueSubmit, i, j)
			v.checkWait(w, loc)
		}
		for j, cb := range sub.CommandBuffers {
			loc := fmt.Sprintf("%s.pSubmits[%d].pCommandBuffers[%d]", CallQueueSubmit, i, j)
			v.checkTransfers(cb, loc)
		}
		for j, s := range sub.Signals {
			loc := fmt.Sprintf("%s.pSubmits[%d].pSignalSemaphores[%d]", CallQueueSubmit, i, j)
			v.checkSignal(i, s, loc)
		}
		if sub.Fence != nil {
			v.checkFence(sub.Fence, CallQueueSubmit+".fence")
		}
	}

	if len(v.violations) > 0 {
		v.logger.Debug("submission rejected",
			"queue", v.queue.Handle(),
			"submits", len(subs),
			"violations", len(v.violations),
		)
	}
	return report.NewRejectError(CallQueueSubmit, v.violations)
}

func (v *SubmissionValidator) reject(code report.Code, loc string, objs []report.ObjectRef, format string, args ...any) {
	v.violations = append(v.violations, report.Usage(code, loc, objs, format, args...))
}

// scope returns the scope the batch sees for sem. An external-temporary
// semaphore reverts to internal once an earlier entry in the batch waited on
// it.
func (v *SubmissionValidator) scope(sem *syncstate.Semaphore) syncstate.Scope {
	if v.internal[sem] {
		return syncstate.ScopeInternal
	}
	return sem.Scope()
}

func (v *SubmissionValidator) optimistic(sem *syncstate.Semaphore, op string, scope syncstate.Scope) {
	v.logger.Warn("external semaphore state not observable, passing",
		"semaphore", sem.Handle(),
		"op", op,
		"scope", scope.String(),
	)
}

func (v *SubmissionValidator) checkWait(w syncstate.SemaphoreInfo, loc string) {
	sem := w.Semaphore
	if sem.Kind() == syncstate.KindTimeline {
		v.checkTimelineWait(sem, w.Payload, loc)
		return
	}
	v.checkBinaryWait(sem, loc)
}

func (v *SubmissionValidator) checkBinaryWait(sem *syncstate.Semaphore, loc string) {
	objs := report.Objects(report.Semaphore(sem.Handle()), report.Queue(v.queue.Handle()))

	scope := v.scope(sem)
	if scope != syncstate.ScopeInternal {
		v.optimistic(sem, "wait", scope)
		v.binary[sem] = binaryState{signaled: false, signaler: -1}
		if scope == syncstate.ScopeExternalTemporary {
			v.internal[sem] = true
		}
		return
	}

	if st, ok := v.binary[sem]; ok {
		if !st.signaled {
			v.reject(report.CodeBinaryWaitNoSignal, loc, objs,
				"binary semaphore is waited on but has no way to be signaled")
			return
		}
		if st.signaler >= 0 {
			v.checkSignalerDeps(sem, v.subs[st.signaler].Waits, loc)
		}
		v.binary[sem] = binaryState{signaled: false, signaler: -1}
		return
	}

	var lastPending bool
	last, ok := sem.LastOp(func(_ syncstate.SemOp, pending bool) bool {
		lastPending = pending
		return true
	})
	if ok && lastPending && last.IsWait() && last.Submit.Queue != nil && last.Submit.Queue != v.queue {
		v.reject(report.CodeBinaryWaitOtherQueue, loc,
			append(objs, report.Queue(last.Submit.Queue.Handle())),
			"binary semaphore is already waited on by another queue (seq %d)", last.Submit.Seq)
		return
	}
	if !sem.CanBinaryBeWaited() {
		v.reject(report.CodeBinaryWaitNoSignal, loc, objs,
			"binary semaphore is waited on but has no way to be signaled")
		return
	}

	sig, ok := sem.LastOp(func(op syncstate.SemOp, pending bool) bool {
		return pending && op.IsSignal()
	})
	if ok && sig.Kind == syncstate.OpSignal && sig.Submit.Queue != nil {
		if sub := sig.Submit.Queue.Submission(sig.Submit.Seq); sub != nil {
			v.checkSignalerDeps(sem, sub.Waits, loc)
		}
	}
	v.binary[sem] = binaryState{signaled: false, signaler: -1}
}

// checkSignalerDeps rejects a binary wait whose signaling submission itself
// waits on a timeline value nothing will ever signal.
func (v *SubmissionValidator) checkSignalerDeps(sem *syncstate.Semaphore, waits []syncstate.SemaphoreInfo, loc string) {
	for _, w := range waits {
		if w.Semaphore.Kind() != syncstate.KindTimeline {
			continue
		}
		if w.Semaphore.Scope() != syncstate.ScopeInternal {
			continue
		}
		if w.Semaphore.HasSignalAtOrAbove(w.Payload) || v.batchSignalAtOrAbove(w.Semaphore, w.Payload) {
			continue
		}
		v.reject(report.CodeBinarySignalTimelineDep, loc,
			report.Objects(report.Semaphore(sem.Handle()), report.Semaphore(w.Semaphore.Handle())),
			"binary semaphore signal depends on timeline wait for value %d that has no pending signal", w.Payload)
		return
	}
}

func (v *SubmissionValidator) batchSignalAtOrAbove(sem *syncstate.Semaphore, payload uint64) bool {
	for _, s := range v.signals[sem] {
		if s >= payload {
			return true
		}
	}
	return false
}

func (v *SubmissionValidator) checkTimelineWait(sem *syncstate.Semaphore, value uint64, loc string) {
	known := append(timelineValues(sem), v.waits[sem]...)
	known = append(known, v.signals[sem]...)
	if other, bad := v.limits.firstExceeding(value, known); bad {
		v.reject(report.CodeTimelineWaitMaxDiff, loc, report.Objects(report.Semaphore(sem.Handle())),
			"wait value %d differs from %d by more than maxTimelineSemaphoreValueDifference (%d)",
			value, other, v.limits.MaxTimelineDiff)
		return
	}
	v.waits[sem] = append(v.waits[sem], value)
}

func (v *SubmissionValidator) checkSignal(index int, s syncstate.SemaphoreInfo, loc string) {
	sem := s.Semaphore
	if sem.Kind() == syncstate.KindTimeline {
		v.checkTimelineSignal(sem, s.Payload, loc)
		return
	}

	scope := v.scope(sem)
	if scope != syncstate.ScopeInternal {
		v.optimistic(sem, "signal", scope)
		v.binary[sem] = binaryState{signaled: true, signaler: index}
		return
	}

	signaled := !sem.CanBinaryBeSignaled()
	if st, ok := v.binary[sem]; ok {
		signaled = st.signaled
	}
	if signaled {
		v.reject(report.CodeBinaryDoubleSignal, loc,
			report.Objects(report.Semaphore(sem.Handle()), report.Queue(v.queue.Handle())),
			"binary semaphore is signaled but is already in the signaled state")
		return
	}
	v.binary[sem] = binaryState{signaled: true, signaler: index}
}

func (v *SubmissionValidator) checkTimelineSignal(sem *syncstate.Semaphore, value uint64, loc string) {
	objs := report.Objects(report.Semaphore(sem.Handle()))

	if sem.Scope() == syncstate.ScopeInternal {
		prior := append([]uint64{sem.CurrentPayload()}, pendingSignals(sem)...)
		prior = append(prior, v.signals[sem]...)
		for _, p := range prior {
			if value <= p {
				v.reject(report.CodeTimelineSignalNotIncreasing, loc, objs,
					"signal value %d is not greater than current or pending signal value %d", value, p)
				return
			}
		}
	} else {
		v.optimistic(sem, "signal", sem.Scope())
	}

	known := append(timelineValues(sem), v.signals[sem]...)
	for _, w := range v.waits[sem] {
		if w >= value {
			known = append(known, w)
		}
	}
	if other, bad := v.limits.firstExceeding(value, known); bad {
		v.reject(report.CodeTimelineSignalMaxDiff, loc, objs,
			"signal value %d differs from %d by more than maxTimelineSemaphoreValueDifference (%d)",
			value, other, v.limits.MaxTimelineDiff)
		return
	}
	v.signals[sem] = append(v.signals[sem], value)
}

func (v *SubmissionValidator) checkFence(f *syncstate.Fence, loc string) {
	objs := report.Objects(report.Fence(f.Handle()), report.Queue(v.queue.Handle()))

	if f.Scope() != syncstate.ScopeInternal {
		v.logger.Warn("external fence state not observable, passing",
			"fence", f.Handle(),
			"scope", f.Scope().String(),
		)
		v.fences[f] = true
		return
	}
	if v.fences[f] || f.InUse() {
		owner := "this batch"
		if q := f.Queue(); q != nil {
			owner = report.Queue(q.Handle()).String()
		}
		v.reject(report.CodeFenceInUse, loc, objs, "fence is already in use by %s", owner)
		return
	}
	if f.State() != syncstate.FenceUnsignaled {
		v.reject(report.CodeFenceNotUnsignaled, loc, objs, "fence must be unsignaled (state %s)", f.State())
		return
	}
	v.fences[f] = true
}

// checkTransfers matches the command buffer's acquires against outstanding
// releases, then records its releases for later command buffers.
func (v *SubmissionValidator) checkTransfers(cb syncstate.CommandBuffer, loc string) {
	if cb.Transfers == nil {
		return
	}
	for _, acq := range cb.Transfers.Acquires() {
		if v.takeBatchRelease(acq) {
			continue
		}
		if !v.consumed[acq] && v.registry.Match(acq) {
			v.consumed[acq] = true
			continue
		}
		v.reject(report.CodeQFOAcquireNoRelease, loc,
			report.Objects(acq.ObjectRef(), report.ObjectRef{Type: report.ObjectCommandBuffer, Handle: cb.Handle}),
			"acquire %s has no matching release", acq)
	}
	for _, rel := range cb.Transfers.Releases() {
		pending := v.registry.HasRelease(rel) && !v.consumed[rel]
		if pending || containsBarrier(v.released, rel) {
			v.reject(report.CodeQFOReleasePending, loc,
				report.Objects(rel.ObjectRef(), report.ObjectRef{Type: report.ObjectCommandBuffer, Handle: cb.Handle}),
				"release %s is already pending", rel)
			continue
		}
		v.released = append(v.released, rel)
	}
}

func (v *SubmissionValidator) takeBatchRelease(acq qfo.Barrier) bool {
	for i, rel := range v.released {
		if rel == acq {
			v.released = append(v.released[:i], v.released[i+1:]...)
			return true
		}
	}
	return false
}

func containsBarrier(bs []qfo.Barrier, b qfo.Barrier) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}
