package device

import (
	"context"
	"fmt"

	"github.com/roach88/qsync/internal/completion"
	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/syncstate"
	"github.com/roach88/qsync/internal/trace"
	"github.com/roach88/qsync/internal/validate"
)

// SignalSemaphore signals timeline semaphore h to value from the host.
func (d *Device) SignalSemaphore(h, value uint64) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	s, ok := d.Semaphore(h)
	if !ok {
		return d.reject(0, unknownHandle(validate.CallSignalSemaphore, "pSignalInfo->semaphore", report.ObjectSemaphore, h))
	}
	if err := validate.ValidateSignal(s, value, d.limits); err != nil {
		return d.reject(0, err)
	}
	s.SignalHost(value)

	d.recorder.Emit(context.Background(), trace.Event{
		Kind:    trace.KindHostSignal,
		Object:  report.Semaphore(h).String(),
		Payload: value,
	})
	return nil
}

// WaitSemaphores blocks until timeline semaphores hs reach values: all of
// them when waitAll is set, any one otherwise. Returns false when the wait
// can never be satisfied by pending work (the device call would time out).
func (d *Device) WaitSemaphores(hs, values []uint64, waitAll bool) (bool, error) {
	if len(hs) != len(values) {
		return false, fmt.Errorf("wait semaphores: %d semaphores but %d values", len(hs), len(values))
	}

	d.submitMu.Lock()
	r := &resolver{d: d}
	sems := make([]*syncstate.Semaphore, 0, len(hs))
	for i, h := range hs {
		s, ok := d.Semaphore(h)
		if !ok {
			r.miss(fmt.Sprintf("%s.pWaitInfo->pSemaphores[%d]", validate.CallWaitSemaphores, i), report.ObjectSemaphore, h)
			continue
		}
		sems = append(sems, s)
	}
	err := report.NewRejectError(validate.CallWaitSemaphores, r.violations)
	if err == nil {
		err = validate.ValidateWaitValues(sems, values, d.limits)
	}
	d.submitMu.Unlock()
	if err != nil {
		return false, d.reject(0, err)
	}

	// Blocking happens outside submitMu so other threads can keep
	// submitting the work being waited on.
	if !waitAll {
		return d.waitAnySemaphore(sems, values)
	}
	for i, s := range sems {
		reached := d.observed(s, values[i])
		if !reached {
			reached, err = s.NotifyAndWait(values[i])
			if err != nil {
				return false, fmt.Errorf("wait semaphores: %w", err)
			}
		}
		d.recordHostWait(s, values[i], reached)
		if !reached {
			return false, nil
		}
	}
	return true, nil
}

// waitAnySemaphore requests progress on every target before blocking, then
// returns as soon as any one of them is reached. A target whose signal is
// stuck behind unrelated work never delays a reachable one.
func (d *Device) waitAnySemaphore(sems []*syncstate.Semaphore, values []uint64) (bool, error) {
	for i, s := range sems {
		if d.observed(s, values[i]) {
			d.recordHostWait(s, values[i], true)
			return true, nil
		}
	}

	waiters := make([]*completion.Handle, len(sems))
	live := false
	for i, s := range sems {
		waiters[i] = s.HostWaiter(values[i])
		live = live || waiters[i] != nil
	}
	if !live {
		for i, s := range sems {
			d.recordHostWait(s, values[i], false)
		}
		return false, nil
	}

	i := completion.WaitAny(d.timeout, waiters...)
	if i >= 0 {
		d.recordHostWait(sems[i], values[i], true)
		return true, nil
	}

	objs := make([]report.ObjectRef, len(sems))
	for i, s := range sems {
		objs[i] = report.Semaphore(s.Handle())
	}
	v := report.Internal(report.CodeSemaphoreTimeout, validate.CallWaitSemaphores, objs,
		"timeout waiting for any of %d semaphores", len(sems))
	d.logger.Error("semaphore wait-any timed out", "semaphores", len(sems))
	d.reporter.Report(v)
	return false, fmt.Errorf("wait semaphores: %w", v)
}

// observed reports whether a host wait on s for value is already satisfied.
// For an external semaphore with nothing pending that could reach value, the
// host observing the wait return is taken as the value having been reached.
func (d *Device) observed(s *syncstate.Semaphore, value uint64) bool {
	if s.CurrentPayload() >= value {
		return true
	}
	if s.Scope() != syncstate.ScopeInternal && !s.HasSignalAtOrAbove(value) {
		s.RetireTimeline(value)
		return true
	}
	return false
}

func (d *Device) recordHostWait(s *syncstate.Semaphore, value uint64, reached bool) {
	detail := "reached"
	if !reached {
		detail = "unreachable"
	}
	d.recorder.Emit(context.Background(), trace.Event{
		Kind:    trace.KindHostWait,
		Object:  report.Semaphore(s.Handle()).String(),
		Payload: value,
		Detail:  detail,
	})
}

// WaitForFences blocks until fences hs are signaled: all of them when waitAll
// is set, any one otherwise. Returns false when an unsignaled fence has no
// pending work that could signal it.
func (d *Device) WaitForFences(hs []uint64, waitAll bool) (bool, error) {
	r := &resolver{d: d}
	fences := make([]*syncstate.Fence, 0, len(hs))
	for i, h := range hs {
		if f := r.fence(h, fmt.Sprintf("vkWaitForFences.pFences[%d]", i)); f != nil {
			fences = append(fences, f)
		}
	}
	if len(r.violations) > 0 {
		return false, d.reject(0, report.NewRejectError("vkWaitForFences", r.violations))
	}

	if !waitAll {
		return d.waitAnyFence(fences)
	}
	for _, f := range fences {
		if err := f.NotifyAndWait(); err != nil {
			return false, fmt.Errorf("wait for fences: %w", err)
		}
		done := fenceDone(f)
		d.recordFenceWait(f, done)
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// waitAnyFence is the fence counterpart of waitAnySemaphore.
func (d *Device) waitAnyFence(fences []*syncstate.Fence) (bool, error) {
	for _, f := range fences {
		if fenceDone(f) {
			d.recordFenceWait(f, true)
			return true, nil
		}
	}

	waiters := make([]*completion.Handle, len(fences))
	live := false
	for i, f := range fences {
		waiters[i] = f.HostWaiter()
		live = live || waiters[i] != nil
	}
	if !live {
		for _, f := range fences {
			d.recordFenceWait(f, false)
		}
		return false, nil
	}

	i := completion.WaitAny(d.timeout, waiters...)
	if i >= 0 {
		d.recordFenceWait(fences[i], true)
		return true, nil
	}

	objs := make([]report.ObjectRef, len(fences))
	for i, f := range fences {
		objs[i] = report.Fence(f.Handle())
	}
	v := report.Internal(report.CodeFenceTimeout, "vkWaitForFences", objs,
		"timeout waiting for any of %d fences", len(fences))
	d.logger.Error("fence wait-any timed out", "fences", len(fences))
	d.reporter.Report(v)
	return false, fmt.Errorf("wait for fences: %w", v)
}

// fenceDone reports whether a wait on f returns. Waits on external fences
// are assumed to have been satisfied by the external signaler.
func fenceDone(f *syncstate.Fence) bool {
	return f.State() == syncstate.FenceRetired || f.Scope() != syncstate.ScopeInternal
}

func (d *Device) recordFenceWait(f *syncstate.Fence, done bool) {
	detail := "signaled"
	if !done {
		detail = "unsignaled"
	}
	d.recorder.Emit(context.Background(), trace.Event{
		Kind:   trace.KindFenceWait,
		Object: report.Fence(f.Handle()).String(),
		Detail: detail,
	})
}

// ResetFences returns fences hs to unsignaled. Rejected without effect when
// any of them is still in flight.
func (d *Device) ResetFences(hs []uint64) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	r := &resolver{d: d}
	fences := make([]*syncstate.Fence, 0, len(hs))
	for i, h := range hs {
		if f := r.fence(h, fmt.Sprintf("%s.pFences[%d]", validate.CallResetFences, i)); f != nil {
			fences = append(fences, f)
		}
	}
	if len(r.violations) > 0 {
		return d.reject(0, report.NewRejectError(validate.CallResetFences, r.violations))
	}
	if err := validate.ValidateResetFence(fences); err != nil {
		return d.reject(0, err)
	}

	for _, f := range fences {
		f.Reset()
		d.recorder.Emit(context.Background(), trace.Event{
			Kind:   trace.KindFenceReset,
			Object: report.Fence(f.Handle()).String(),
		})
	}
	return nil
}

// ImportSemaphore records an external payload import into semaphore h.
func (d *Device) ImportSemaphore(h uint64, ht syncstate.HandleType, temporary bool) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	s, ok := d.Semaphore(h)
	if !ok {
		return d.reject(0, unknownHandle("vkImportSemaphoreFdKHR", "semaphore", report.ObjectSemaphore, h))
	}
	s.Import(ht, temporary)
	d.recordTransfer(trace.KindImport, report.Semaphore(h), ht, s.Scope())
	return nil
}

// ExportSemaphore records an external handle export of semaphore h.
func (d *Device) ExportSemaphore(h uint64, ht syncstate.HandleType) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	s, ok := d.Semaphore(h)
	if !ok {
		return d.reject(0, unknownHandle("vkGetSemaphoreFdKHR", "semaphore", report.ObjectSemaphore, h))
	}
	s.Export(ht)
	d.recordTransfer(trace.KindExport, report.Semaphore(h), ht, s.Scope())
	return nil
}

// ImportFence records an external payload import into fence h.
func (d *Device) ImportFence(h uint64, ht syncstate.HandleType, temporary bool) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	f, ok := d.Fence(h)
	if !ok {
		return d.reject(0, unknownHandle("vkImportFenceFdKHR", "fence", report.ObjectFence, h))
	}
	f.Import(ht, temporary)
	d.recordTransfer(trace.KindImport, report.Fence(h), ht, f.Scope())
	return nil
}

// ExportFence records an external handle export of fence h.
func (d *Device) ExportFence(h uint64, ht syncstate.HandleType) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	f, ok := d.Fence(h)
	if !ok {
		return d.reject(0, unknownHandle("vkGetFenceFdKHR", "fence", report.ObjectFence, h))
	}
	f.Export(ht)
	d.recordTransfer(trace.KindExport, report.Fence(h), ht, f.Scope())
	return nil
}

func (d *Device) recordTransfer(kind trace.Kind, obj report.ObjectRef, ht syncstate.HandleType, scope syncstate.Scope) {
	d.logger.Debug("external handle "+string(kind),
		"object", obj.String(),
		"handle_type", ht.String(),
		"scope", scope.String(),
	)
	d.recorder.Emit(context.Background(), trace.Event{
		Kind:   kind,
		Object: obj.String(),
		Detail: ht.String() + " " + scope.String(),
	})
}
