package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/qsync/internal/config"
	"github.com/roach88/qsync/internal/qfo"
	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/syncstate"
	"github.com/roach88/qsync/internal/trace"
	"github.com/roach88/qsync/internal/validate"
)

// commandBuffer is a recorded command buffer.
type commandBuffer struct {
	family    uint32
	transfers *qfo.Transfers
}

// imageKey identifies a swapchain image.
type imageKey struct {
	swapchain uint64
	index     uint32
}

// Device owns every tracked object.
//
// Lock order: submitMu before mu. mu only guards the handle tables and is
// never held while calling into a queue, semaphore or fence.
type Device struct {
	profile  config.Profile
	limits   validate.Limits
	logger   *slog.Logger
	reporter report.Reporter
	timeout  time.Duration
	recorder *trace.Recorder
	ids      trace.IDGenerator
	registry *qfo.Registry
	objOpts  []syncstate.Option

	submitMu sync.Mutex

	mu         sync.RWMutex
	nextHandle uint64
	queues     map[uint64]*syncstate.Queue
	queueOrder []*syncstate.Queue
	semaphores map[uint64]*syncstate.Semaphore
	fences     map[uint64]*syncstate.Fence
	cbs        map[uint64]*commandBuffer
	presents   map[imageKey]syncstate.SubmissionRef
	destroyed  bool
}

// New creates a device with one queue per (family, index) in profile and
// starts their workers. Call Destroy to stop them.
func New(profile config.Profile, opts ...Option) *Device {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.reporter == nil {
		o.reporter = report.NewLogReporter(o.logger)
	}
	if o.ids == nil {
		o.ids = trace.UUIDv7Generator{}
	}
	timeout := profile.WaitTimeout
	if o.hasTimeout {
		timeout = o.timeout
	}

	d := &Device{
		profile:    profile,
		limits:     validate.Limits{MaxTimelineDiff: profile.MaxTimelineDiff},
		logger:     o.logger,
		reporter:   o.reporter,
		timeout:    timeout,
		recorder:   trace.NewRecorder(o.sink, o.clock, o.logger),
		ids:        o.ids,
		registry:   qfo.NewRegistry(),
		queues:     make(map[uint64]*syncstate.Queue),
		semaphores: make(map[uint64]*syncstate.Semaphore),
		fences:     make(map[uint64]*syncstate.Fence),
		cbs:        make(map[uint64]*commandBuffer),
		presents:   make(map[imageKey]syncstate.SubmissionRef),
	}
	d.objOpts = []syncstate.Option{
		syncstate.WithLogger(o.logger),
		syncstate.WithReporter(o.reporter),
		syncstate.WithWaitTimeout(timeout),
	}

	for _, fam := range profile.QueueFamilies {
		for i := uint32(0); i < fam.Count; i++ {
			h := d.allocHandle()
			qopts := append(append([]syncstate.Option(nil), d.objOpts...),
				syncstate.WithRetireHook(d.retireHook(h)))
			q := syncstate.NewQueue(h, fam.Index, i, fam.QueueFlags(), qopts...)
			d.queues[h] = q
			d.queueOrder = append(d.queueOrder, q)
		}
	}

	d.logger.Info("device created",
		"profile", profile.Name,
		"queues", len(d.queueOrder),
		"max_timeline_diff", profile.MaxTimelineDiff,
		"wait_timeout", timeout,
	)
	return d
}

// Profile returns the profile the device was created with.
func (d *Device) Profile() config.Profile { return d.profile }

// Registry returns the queue family ownership registry.
func (d *Device) Registry() *qfo.Registry { return d.registry }

func (d *Device) allocHandle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

// retireHook runs on the worker of queue h for every retired submission.
func (d *Device) retireHook(h uint64) func(*syncstate.Submission) {
	return func(sub *syncstate.Submission) {
		d.registry.Retire(sub.Releases())
		d.recorder.Emit(context.Background(), trace.Event{
			Kind:     trace.KindRetire,
			BatchID:  sub.BatchID,
			Queue:    h,
			QueueSeq: sub.Seq,
		})
	}
}

// reject reports every violation carried by err and records a reject event.
// Returns err unchanged.
func (d *Device) reject(queue uint64, err error) error {
	if err == nil {
		return nil
	}
	var codes []string
	var call string
	var rej *report.RejectError
	if errors.As(err, &rej) {
		call = rej.Call
		for _, v := range rej.Violations {
			d.reporter.Report(v)
			codes = append(codes, string(v.Code))
		}
	}
	d.recorder.Emit(context.Background(), trace.Event{
		Kind:   trace.KindReject,
		Queue:  queue,
		Codes:  codes,
		Detail: call,
	})
	return err
}

func unknownHandle(call, loc, kind string, h uint64) error {
	return report.NewRejectError(call, []*report.Violation{
		report.Usage(report.CodeUnknownHandle, loc,
			report.Objects(report.ObjectRef{Type: kind, Handle: h}),
			"unknown %s handle", kind),
	})
}

// Queue returns the handle of queue index within family.
func (d *Device) Queue(family, index uint32) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, q := range d.queueOrder {
		if q.Family() == family && q.Index() == index {
			return q.Handle(), nil
		}
	}
	return 0, fmt.Errorf("no queue %d in family %d", index, family)
}

// Queues returns every queue handle in creation order.
func (d *Device) Queues() []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]uint64, len(d.queueOrder))
	for i, q := range d.queueOrder {
		out[i] = q.Handle()
	}
	return out
}

func (d *Device) queue(h uint64) (*syncstate.Queue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	q, ok := d.queues[h]
	return q, ok
}

// Semaphore returns the tracked semaphore for h.
func (d *Device) Semaphore(h uint64) (*syncstate.Semaphore, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.semaphores[h]
	return s, ok
}

// Fence returns the tracked fence for h.
func (d *Device) Fence(h uint64) (*syncstate.Fence, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.fences[h]
	return f, ok
}

// CreateSemaphore creates a binary or timeline semaphore. initialValue only
// applies to timeline semaphores.
func (d *Device) CreateSemaphore(kind syncstate.SemaphoreKind, initialValue uint64) uint64 {
	d.mu.Lock()
	h := d.allocHandle()
	d.semaphores[h] = syncstate.NewSemaphore(h, kind, initialValue, d.objOpts...)
	d.mu.Unlock()

	d.logger.Debug("semaphore created", "semaphore", h, "kind", kind.String(), "initial", initialValue)
	return h
}

// CreateFence creates a fence, already signaled when signaled is true.
func (d *Device) CreateFence(signaled bool) uint64 {
	d.mu.Lock()
	h := d.allocHandle()
	d.fences[h] = syncstate.NewFence(h, signaled, d.objOpts...)
	d.mu.Unlock()

	d.logger.Debug("fence created", "fence", h, "signaled", signaled)
	return h
}

// DestroySemaphore stops tracking a semaphore no pending work references.
func (d *Device) DestroySemaphore(h uint64) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	s, ok := d.Semaphore(h)
	if !ok {
		return d.reject(0, unknownHandle(validate.CallDestroySemaphore, "semaphore", report.ObjectSemaphore, h))
	}
	if err := validate.ValidateDestroy(s); err != nil {
		return d.reject(0, err)
	}

	d.mu.Lock()
	delete(d.semaphores, h)
	d.mu.Unlock()
	d.recorder.Emit(context.Background(), trace.Event{Kind: trace.KindDestroy, Object: report.Semaphore(h).String()})
	return nil
}

// DestroyFence stops tracking a fence no pending work references.
func (d *Device) DestroyFence(h uint64) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	f, ok := d.Fence(h)
	if !ok {
		return d.reject(0, unknownHandle(validate.CallDestroyFence, "fence", report.ObjectFence, h))
	}
	if err := validate.ValidateDestroy(f); err != nil {
		return d.reject(0, err)
	}

	d.mu.Lock()
	delete(d.fences, h)
	d.mu.Unlock()
	d.recorder.Emit(context.Background(), trace.Event{Kind: trace.KindDestroy, Object: report.Fence(h).String()})
	return nil
}

// DestroyResource drops outstanding ownership releases for a destroyed
// buffer or image.
func (d *Device) DestroyResource(kind qfo.ResourceKind, h uint64) {
	d.registry.Forget(kind, h)
	ref := qfo.Barrier{Kind: kind, Handle: h}.ObjectRef()
	d.recorder.Emit(context.Background(), trace.Event{Kind: trace.KindDestroy, Object: ref.String()})
}

// QueueWaitIdle retires everything submitted to queue h.
func (d *Device) QueueWaitIdle(h uint64) error {
	q, ok := d.queue(h)
	if !ok {
		return unknownHandle("vkQueueWaitIdle", "queue", report.ObjectQueue, h)
	}
	if err := q.WaitIdle(); err != nil {
		return fmt.Errorf("queue wait idle: %w", err)
	}
	d.recorder.Emit(context.Background(), trace.Event{Kind: trace.KindIdle, Queue: h})
	return nil
}

// DeviceWaitIdle retires everything on every queue, one queue at a time in
// handle order.
func (d *Device) DeviceWaitIdle() error {
	for _, h := range d.Queues() {
		q, _ := d.queue(h)
		if err := q.WaitIdle(); err != nil {
			return fmt.Errorf("device wait idle: %w", err)
		}
	}
	d.recorder.Emit(context.Background(), trace.Event{Kind: trace.KindIdle})
	return nil
}

// Destroy drains and stops every queue. The device must not be used after.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	queues := append([]*syncstate.Queue(nil), d.queueOrder...)
	d.mu.Unlock()

	sort.Slice(queues, func(i, j int) bool { return queues[i].Handle() < queues[j].Handle() })
	for _, q := range queues {
		q.Destroy()
	}
	d.logger.Info("device destroyed", "queues", len(queues))
}
