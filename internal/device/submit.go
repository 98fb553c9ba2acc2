package device

import (
	"context"
	"fmt"

	"github.com/roach88/qsync/internal/qfo"
	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/syncstate"
	"github.com/roach88/qsync/internal/trace"
	"github.com/roach88/qsync/internal/validate"
)

// API entry point names used in device-level rejections.
const (
	CallCmdPipelineBarrier = "vkCmdPipelineBarrier"
	CallQueuePresent       = "vkQueuePresentKHR"
	CallAcquireNextImage   = "vkAcquireNextImageKHR"
)

// SemaphoreSubmit names a semaphore and, for timelines, the value waited on
// or signaled.
type SemaphoreSubmit struct {
	Semaphore uint64
	Value     uint64
}

// SubmitInfo is one element of a QueueSubmit batch.
type SubmitInfo struct {
	WaitSemaphores   []SemaphoreSubmit
	CommandBuffers   []uint64
	SignalSemaphores []SemaphoreSubmit
}

// AllocateCommandBuffer creates an empty command buffer for queue family.
func (d *Device) AllocateCommandBuffer(family uint32) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.allocHandle()
	d.cbs[h] = &commandBuffer{family: family, transfers: qfo.NewTransfers(family)}
	return h
}

// RecordBarrier records a buffer or image memory barrier into command buffer
// cb. Only its queue family ownership part is tracked.
func (d *Device) RecordBarrier(cb uint64, b qfo.Barrier) error {
	d.mu.Lock()
	c, ok := d.cbs[cb]
	d.mu.Unlock()
	if !ok {
		return unknownHandle(CallCmdPipelineBarrier, "commandBuffer", report.ObjectCommandBuffer, cb)
	}

	role, v := c.transfers.RecordBarrier(b)
	if v != nil {
		v.Objects = append(v.Objects, report.ObjectRef{Type: report.ObjectCommandBuffer, Handle: cb})
		return d.reject(0, report.NewRejectError(CallCmdPipelineBarrier, []*report.Violation{v}))
	}
	d.logger.Debug("barrier recorded",
		"command_buffer", cb,
		"barrier", b.String(),
		"role", role,
	)
	return nil
}

// ResetCommandBuffer clears every barrier recorded into cb. Submissions that
// already reference cb keep their own copy.
func (d *Device) ResetCommandBuffer(cb uint64) error {
	d.mu.Lock()
	c, ok := d.cbs[cb]
	d.mu.Unlock()
	if !ok {
		return unknownHandle("vkResetCommandBuffer", "commandBuffer", report.ObjectCommandBuffer, cb)
	}
	c.transfers.Reset()
	return nil
}

// resolver turns handles into tracked objects, collecting an unknown-handle
// violation for every miss.
type resolver struct {
	d          *Device
	violations []*report.Violation
}

func (r *resolver) miss(loc, kind string, h uint64) {
	r.violations = append(r.violations, report.Usage(report.CodeUnknownHandle, loc,
		report.Objects(report.ObjectRef{Type: kind, Handle: h}), "unknown %s handle", kind))
}

func (r *resolver) semaphores(in []SemaphoreSubmit, loc string) []syncstate.SemaphoreInfo {
	out := make([]syncstate.SemaphoreInfo, 0, len(in))
	for i, s := range in {
		sem, ok := r.d.Semaphore(s.Semaphore)
		if !ok {
			r.miss(fmt.Sprintf("%s[%d]", loc, i), report.ObjectSemaphore, s.Semaphore)
			continue
		}
		out = append(out, syncstate.SemaphoreInfo{Semaphore: sem, Payload: s.Value})
	}
	return out
}

func (r *resolver) commandBuffers(in []uint64, loc string) []syncstate.CommandBuffer {
	out := make([]syncstate.CommandBuffer, 0, len(in))
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	for i, h := range in {
		c, ok := r.d.cbs[h]
		if !ok {
			r.miss(fmt.Sprintf("%s[%d]", loc, i), report.ObjectCommandBuffer, h)
			continue
		}
		out = append(out, syncstate.CommandBuffer{Handle: h, Transfers: c.transfers.Clone()})
	}
	return out
}

func (r *resolver) fence(h uint64, loc string) *syncstate.Fence {
	if h == 0 {
		return nil
	}
	f, ok := r.d.Fence(h)
	if !ok {
		r.miss(loc, report.ObjectFence, h)
		return nil
	}
	return f
}

// QueueSubmit validates a batch and, when every check passes, enqueues it on
// queue. A zero fence means none. A rejected batch leaves all tracked state
// untouched and returns a *report.RejectError.
func (d *Device) QueueSubmit(queue uint64, submits []SubmitInfo, fence uint64) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	q, ok := d.queue(queue)
	if !ok {
		return d.reject(queue, unknownHandle(validate.CallQueueSubmit, "queue", report.ObjectQueue, queue))
	}

	r := &resolver{d: d}
	subs := make([]*syncstate.Submission, 0, len(submits)+1)
	for i, si := range submits {
		prefix := fmt.Sprintf("%s.pSubmits[%d]", validate.CallQueueSubmit, i)
		subs = append(subs, &syncstate.Submission{
			Waits:          r.semaphores(si.WaitSemaphores, prefix+".pWaitSemaphores"),
			CommandBuffers: r.commandBuffers(si.CommandBuffers, prefix+".pCommandBuffers"),
			Signals:        r.semaphores(si.SignalSemaphores, prefix+".pSignalSemaphores"),
		})
	}
	f := r.fence(fence, validate.CallQueueSubmit+".fence")
	if len(r.violations) > 0 {
		return d.reject(queue, report.NewRejectError(validate.CallQueueSubmit, r.violations))
	}
	if f != nil {
		// A fence-only submit still needs a submission to carry it.
		if len(subs) == 0 {
			subs = append(subs, &syncstate.Submission{})
		}
		subs[len(subs)-1].Fence = f
	}
	if len(subs) == 0 {
		return nil
	}

	v := validate.NewSubmissionValidator(q, d.registry, d.limits, d.logger)
	if err := v.Validate(subs); err != nil {
		return d.reject(queue, err)
	}
	d.commit(q, subs)
	return nil
}

// commit enqueues validated submissions. Caller holds submitMu.
func (d *Device) commit(q *syncstate.Queue, subs []*syncstate.Submission) {
	// Ownership bookkeeping goes first so the worker never retires a
	// release the registry has not seen.
	for _, sub := range subs {
		d.registry.AddPending(sub.Releases())
	}
	for _, sub := range subs {
		for _, acq := range sub.Acquires() {
			d.registry.Consume(acq)
		}
	}

	// Only submitters move q's seq and they all hold submitMu, so the
	// seqs Submit will assign are known here. Recording before Submit
	// keeps every submit event ahead of its retire event.
	next := q.Seq()
	for i, sub := range subs {
		sub.BatchID = d.ids.Generate()
		sub.IsLast = i == len(subs)-1
		d.recorder.Emit(context.Background(), trace.Event{
			Kind:     trace.KindSubmit,
			BatchID:  sub.BatchID,
			Queue:    q.Handle(),
			QueueSeq: next + uint64(i) + 1,
			Detail:   submissionDetail(sub),
		})
	}
	last := q.Submit(subs)

	d.logger.Debug("batch committed",
		"queue", q.Handle(),
		"submits", len(subs),
		"last_seq", last,
	)
}

// submissionDetail summarizes what a submission touches, e.g. "w1 c0 s2 f".
func submissionDetail(sub *syncstate.Submission) string {
	s := fmt.Sprintf("w%d c%d s%d", len(sub.Waits), len(sub.CommandBuffers), len(sub.Signals))
	if sub.Fence != nil {
		s += " f"
	}
	if sub.Image != nil {
		s += " p"
	}
	return s
}

// QueuePresent enqueues a present of swapchain image index on queue after the
// binary semaphores in waits. A later AcquireNextImage of the same image
// depends on this submission.
func (d *Device) QueuePresent(queue uint64, waits []uint64, swapchain uint64, index uint32) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	q, ok := d.queue(queue)
	if !ok {
		return d.reject(queue, unknownHandle(CallQueuePresent, "queue", report.ObjectQueue, queue))
	}
	r := &resolver{d: d}
	in := make([]SemaphoreSubmit, len(waits))
	for i, h := range waits {
		in[i] = SemaphoreSubmit{Semaphore: h}
	}
	sub := &syncstate.Submission{
		Waits: r.semaphores(in, CallQueuePresent+".pWaitSemaphores"),
		Image: &syncstate.SwapchainImage{Swapchain: swapchain, Index: index},
	}
	if len(r.violations) > 0 {
		return d.reject(queue, report.NewRejectError(CallQueuePresent, r.violations))
	}

	v := validate.NewSubmissionValidator(q, d.registry, d.limits, d.logger)
	if err := v.Validate([]*syncstate.Submission{sub}); err != nil {
		return d.reject(queue, err)
	}
	d.commit(q, []*syncstate.Submission{sub})

	d.mu.Lock()
	d.presents[imageKey{swapchain: swapchain, index: index}] = syncstate.SubmissionRef{Queue: q, Seq: sub.Seq}
	d.mu.Unlock()
	return nil
}

// AcquireNextImage records that the presentation engine handed back image
// index of swapchain, signaling sem and fence (either may be zero).
func (d *Device) AcquireNextImage(swapchain uint64, index uint32, sem, fence uint64) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	r := &resolver{d: d}
	var s *syncstate.Semaphore
	if sem != 0 {
		var ok bool
		if s, ok = d.Semaphore(sem); !ok {
			r.miss(CallAcquireNextImage+".semaphore", report.ObjectSemaphore, sem)
		}
	}
	f := r.fence(fence, CallAcquireNextImage+".fence")
	if len(r.violations) > 0 {
		return d.reject(0, report.NewRejectError(CallAcquireNextImage, r.violations))
	}

	var vs []*report.Violation
	if s != nil {
		external := s.Scope() != syncstate.ScopeInternal
		if s.Kind() != syncstate.KindBinary || (!external && !s.CanBinaryBeSignaled()) {
			vs = append(vs, report.Usage(report.CodeAcquireSemaphoreSignaled, CallAcquireNextImage+".semaphore",
				report.Objects(report.Semaphore(sem)),
				"semaphore must be an unsignaled binary semaphore with no pending operations"))
		}
	}
	if f != nil && f.Scope() == syncstate.ScopeInternal {
		if f.InUse() || f.State() != syncstate.FenceUnsignaled {
			vs = append(vs, report.Usage(report.CodeAcquireFenceNotReady, CallAcquireNextImage+".fence",
				report.Objects(report.Fence(fence)),
				"fence must be unsignaled and not associated with other pending work (state %s)", f.State()))
		}
	}
	if err := report.NewRejectError(CallAcquireNextImage, vs); err != nil {
		return d.reject(0, err)
	}

	key := imageKey{swapchain: swapchain, index: index}
	d.mu.Lock()
	present, presented := d.presents[key]
	delete(d.presents, key)
	d.mu.Unlock()

	var payload uint64
	if s != nil {
		payload = s.EnqueueAcquire(CallAcquireNextImage)
	}
	if f != nil {
		var refs []syncstate.SubmissionRef
		if presented {
			refs = append(refs, present)
		}
		f.EnqueueSignalFromAcquire(refs)
	}

	d.recorder.Emit(context.Background(), trace.Event{
		Kind:    trace.KindAcquire,
		Object:  report.ObjectRef{Type: report.ObjectSwapchain, Handle: swapchain}.String(),
		Payload: payload,
		Detail:  fmt.Sprintf("image %d", index),
	})
	return nil
}
