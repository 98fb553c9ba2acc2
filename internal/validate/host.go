package validate

import (
	"fmt"

	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/syncstate"
)

// API entry point names used in host-side rejections.
const (
	CallSignalSemaphore  = "vkSignalSemaphore"
	CallWaitSemaphores   = "vkWaitSemaphores"
	CallResetFences      = "vkResetFences"
	CallDestroySemaphore = "vkDestroySemaphore"
	CallDestroyFence     = "vkDestroyFence"
)

// ValidateSignal checks a host-side signal of a timeline semaphore to value.
func ValidateSignal(sem *syncstate.Semaphore, value uint64, limits Limits) error {
	const loc = CallSignalSemaphore + ".pSignalInfo"
	objs := report.Objects(report.Semaphore(sem.Handle()))

	if sem.Kind() != syncstate.KindTimeline {
		return report.NewRejectError(CallSignalSemaphore, []*report.Violation{
			report.Usage(report.CodeSemaphoreNotTimeline, loc+"->semaphore", objs,
				"semaphore must be a timeline semaphore"),
		})
	}

	var vs []*report.Violation
	if cur := sem.CurrentPayload(); value <= cur {
		vs = append(vs, report.Usage(report.CodeHostSignalNotIncreasing, loc+"->value", objs,
			"value %d must be greater than current value %d", value, cur))
	}
	for _, p := range pendingSignals(sem) {
		if value >= p {
			vs = append(vs, report.Usage(report.CodeHostSignalAbovePending, loc+"->value", objs,
				"value %d must be less than pending signal value %d", value, p))
			break
		}
	}
	if other, bad := limits.firstExceeding(value, timelineValues(sem)); bad {
		vs = append(vs, report.Usage(report.CodeHostSignalMaxDiff, loc+"->value", objs,
			"value %d differs from %d by more than maxTimelineSemaphoreValueDifference (%d)",
			value, other, limits.MaxTimelineDiff))
	}
	return report.NewRejectError(CallSignalSemaphore, vs)
}

// ValidateWaitValues checks a host-side wait on each sems[i] reaching
// values[i].
func ValidateWaitValues(sems []*syncstate.Semaphore, values []uint64, limits Limits) error {
	if len(sems) != len(values) {
		return fmt.Errorf("validate wait values: %d semaphores but %d values", len(sems), len(values))
	}

	var vs []*report.Violation
	for i, sem := range sems {
		objs := report.Objects(report.Semaphore(sem.Handle()))
		if sem.Kind() != syncstate.KindTimeline {
			vs = append(vs, report.Usage(report.CodeSemaphoreNotTimeline,
				fmt.Sprintf("%s.pWaitInfo->pSemaphores[%d]", CallWaitSemaphores, i), objs,
				"semaphore must be a timeline semaphore"))
			continue
		}
		if other, bad := limits.firstExceeding(values[i], timelineValues(sem)); bad {
			vs = append(vs, report.Usage(report.CodeHostWaitMaxDiff,
				fmt.Sprintf("%s.pWaitInfo->pValues[%d]", CallWaitSemaphores, i), objs,
				"wait value %d differs from %d by more than maxTimelineSemaphoreValueDifference (%d)",
				values[i], other, limits.MaxTimelineDiff))
		}
	}
	return report.NewRejectError(CallWaitSemaphores, vs)
}

// ValidateResetFence rejects resetting fences that are still in flight.
func ValidateResetFence(fences []*syncstate.Fence) error {
	var vs []*report.Violation
	for i, f := range fences {
		if f.InUse() {
			vs = append(vs, report.Usage(report.CodeFenceResetInflight,
				fmt.Sprintf("%s.pFences[%d]", CallResetFences, i),
				report.Objects(report.Fence(f.Handle())),
				"fence is in use by a pending submission"))
		}
	}
	return report.NewRejectError(CallResetFences, vs)
}

// Tracked is a primitive whose destruction must wait for pending work.
type Tracked interface {
	Handle() uint64
	InUse() bool
}

// ValidateDestroy rejects destroying a semaphore or fence that a pending
// submission still references.
func ValidateDestroy(obj Tracked) error {
	if !obj.InUse() {
		return nil
	}

	var (
		call string
		code report.Code
		ref  report.ObjectRef
	)
	switch obj.(type) {
	case *syncstate.Fence:
		call, code, ref = CallDestroyFence, report.CodeFenceDestroyInUse, report.Fence(obj.Handle())
	default:
		call, code, ref = CallDestroySemaphore, report.CodeSemaphoreDestroyInUse, report.Semaphore(obj.Handle())
	}
	return report.NewRejectError(call, []*report.Violation{
		report.Usage(code, call, report.Objects(ref), "object is still in use by a pending submission"),
	})
}
