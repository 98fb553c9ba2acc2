package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/qsync/internal/config"
	"github.com/roach88/qsync/internal/device"
	"github.com/roach88/qsync/internal/qfo"
	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/syncstate"
	"github.com/roach88/qsync/internal/trace"
	"github.com/roach88/qsync/internal/testutil"
)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	profile  *config.Profile
	sink     trace.Sink
	reporter report.Reporter
	logger   *slog.Logger
}

// WithProfile sets the base device profile. A scenario's own profile file
// and max_timeline_diff still take precedence.
func WithProfile(p config.Profile) Option {
	return func(c *runConfig) { c.profile = &p }
}

// WithTraceSink sends trace events to s as well as to the result.
func WithTraceSink(s trace.Sink) Option {
	return func(c *runConfig) { c.sink = s }
}

// WithReporter sends violations to r as well as to the result.
func WithReporter(r report.Reporter) Option {
	return func(c *runConfig) { c.reporter = r }
}

// WithLogger sets the device logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// runner executes one scenario against a fresh device.
type runner struct {
	dev     *device.Device
	handles map[string]uint64
	types   map[string]string
	result  *Result
}

// Run executes a scenario against a fresh device and returns the result.
//
// Each run uses its own device, a deterministic trace clock and counting
// batch ids, so the same scenario always produces the same trace. Returns
// an error only when the scenario cannot be set up; failed expectations and
// assertions are reported in the Result.
//
// Execution flow:
// 1. Resolve the device profile
// 2. Create the declared objects
// 3. Execute steps, checking each against its expect clause
// 4. Evaluate assertions
// 5. Destroy the device
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		// Suppress logs in scenario runs
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	profile, err := resolveProfile(scenario, cfg.profile)
	if err != nil {
		return nil, err
	}

	prefix := scenario.BatchPrefix
	if prefix == "" {
		prefix = "batch"
	}
	mem := trace.NewMemory()
	collector := report.NewCollector()
	dev := device.New(profile,
		device.WithLogger(cfg.logger),
		device.WithReporter(report.Multi(collector, cfg.reporter)),
		device.WithTraceSink(trace.Tee(mem, cfg.sink)),
		device.WithIDGenerator(trace.NewCountingGenerator(prefix)),
		device.WithClock(testutil.NewDeterministicClock()),
	)
	defer dev.Destroy()

	r := &runner{
		dev:     dev,
		handles: make(map[string]uint64),
		types:   make(map[string]string),
		result:  NewResult(),
	}
	r.createObjects(scenario.Objects)

	for i, st := range scenario.Steps {
		r.executeStep(i, st)
	}

	r.result.Trace = mem.Events()
	r.result.Violations = collector.Violations()
	for _, msg := range r.EvaluateAssertions(scenario.Assertions) {
		r.result.AddError(msg)
	}
	return r.result, nil
}

func resolveProfile(s *Scenario, base *config.Profile) (config.Profile, error) {
	var p config.Profile
	switch {
	case s.Profile != "":
		loaded, err := config.LoadProfile(s.ProfilePath())
		if err != nil {
			return config.Profile{}, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		p = loaded
	case base != nil:
		p = *base
	default:
		p = config.DefaultProfile()
	}
	if s.MaxTimelineDiff != nil {
		p.MaxTimelineDiff = *s.MaxTimelineDiff
	}
	return p, nil
}

func (r *runner) createObjects(objs []Object) {
	for _, o := range objs {
		var h uint64
		switch o.Type {
		case ObjectBinarySemaphore:
			h = r.dev.CreateSemaphore(syncstate.KindBinary, 0)
		case ObjectTimelineSemaphore:
			h = r.dev.CreateSemaphore(syncstate.KindTimeline, o.Initial)
		case ObjectFence:
			h = r.dev.CreateFence(o.Signaled)
		case ObjectCommandBuffer:
			h = r.dev.AllocateCommandBuffer(o.Family)
		}
		r.handles[o.Name] = h
		r.types[o.Name] = o.Type
	}
}

// objectRef renders a declared object the way trace events name it.
func (r *runner) objectRef(name string) string {
	h := r.handles[name]
	switch r.types[name] {
	case ObjectFence:
		return report.Fence(h).String()
	case ObjectCommandBuffer:
		return report.ObjectRef{Type: report.ObjectCommandBuffer, Handle: h}.String()
	default:
		return report.Semaphore(h).String()
	}
}

func (r *runner) semaphores(in []SemaphoreValue) []device.SemaphoreSubmit {
	out := make([]device.SemaphoreSubmit, len(in))
	for i, s := range in {
		out[i] = device.SemaphoreSubmit{Semaphore: r.handles[s.Semaphore], Value: s.Value}
	}
	return out
}

func (r *runner) lookup(names []string) []uint64 {
	out := make([]uint64, len(names))
	for i, n := range names {
		out[i] = r.handles[n]
	}
	return out
}

// executeStep runs one step and checks its outcome against the expect clause.
func (r *runner) executeStep(i int, st Step) {
	outcome, err := r.call(st)

	want := CaseAccepted
	if st.Op == OpHostWait || st.Op == OpFenceWait {
		want = CaseSatisfied
	}
	var codes []string
	if st.Expect != nil {
		want = st.Expect.Case
		codes = st.Expect.Codes
	}

	if outcome == "" {
		r.result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, st.Op, err))
		return
	}
	if outcome != want {
		msg := fmt.Sprintf("steps[%d] %s: expected %s, got %s", i, st.Op, want, outcome)
		if err != nil {
			msg += fmt.Sprintf(" (%v)", err)
		}
		r.result.AddError(msg)
		return
	}
	if len(codes) > 0 {
		got := make([]string, 0)
		for _, c := range report.Codes(err) {
			got = append(got, string(c))
		}
		if !slices.Equal(got, codes) {
			r.result.AddError(fmt.Sprintf("steps[%d] %s: expected codes %v, got %v", i, st.Op, codes, got))
		}
	}
}

// call performs the device call for st. The outcome is empty when the call
// failed with something other than a rejection.
func (r *runner) call(st Step) (string, error) {
	waitAll := st.WaitAll == nil || *st.WaitAll

	switch st.Op {
	case OpHostWait:
		ok, err := r.dev.WaitSemaphores(r.lookup(st.Semaphores), st.Values, waitAll)
		return waitOutcome(ok, err)
	case OpFenceWait:
		ok, err := r.dev.WaitForFences(r.lookup(st.Fences), waitAll)
		return waitOutcome(ok, err)
	}

	var err error
	switch st.Op {
	case OpSubmit:
		submits := make([]device.SubmitInfo, len(st.Submits))
		for i, s := range st.Submits {
			submits[i] = device.SubmitInfo{
				WaitSemaphores:   r.semaphores(s.Waits),
				CommandBuffers:   r.lookup(s.CommandBuffers),
				SignalSemaphores: r.semaphores(s.Signals),
			}
		}
		var q uint64
		if q, err = r.dev.Queue(st.Family, st.Index); err == nil {
			err = r.dev.QueueSubmit(q, submits, r.handles[st.Fence])
		}
	case OpBarrier:
		kind, _ := qfo.ParseResourceKind(st.Barrier.Resource)
		err = r.dev.RecordBarrier(r.handles[st.CommandBuffer], qfo.Barrier{
			Kind:      kind,
			Handle:    st.Barrier.Handle,
			SrcFamily: st.Barrier.Src,
			DstFamily: st.Barrier.Dst,
		})
	case OpResetCommandBuffer:
		err = r.dev.ResetCommandBuffer(r.handles[st.CommandBuffer])
	case OpPresent:
		var q uint64
		if q, err = r.dev.Queue(st.Family, st.Index); err == nil {
			err = r.dev.QueuePresent(q, r.lookup(st.Waits), st.Swapchain, st.Image)
		}
	case OpAcquire:
		err = r.dev.AcquireNextImage(st.Swapchain, st.Image, r.handles[st.Semaphore], r.handles[st.Fence])
	case OpHostSignal:
		err = r.dev.SignalSemaphore(r.handles[st.Semaphore], st.Value)
	case OpFenceReset:
		err = r.dev.ResetFences(r.lookup(st.Fences))
	case OpImport, OpExport:
		ht, _ := syncstate.ParseHandleType(st.HandleType)
		h := r.handles[st.Object]
		switch {
		case st.Op == OpImport && r.types[st.Object] == ObjectFence:
			err = r.dev.ImportFence(h, ht, st.Temporary)
		case st.Op == OpImport:
			err = r.dev.ImportSemaphore(h, ht, st.Temporary)
		case r.types[st.Object] == ObjectFence:
			err = r.dev.ExportFence(h, ht)
		default:
			err = r.dev.ExportSemaphore(h, ht)
		}
	case OpDestroy:
		if r.types[st.Object] == ObjectFence {
			err = r.dev.DestroyFence(r.handles[st.Object])
		} else {
			err = r.dev.DestroySemaphore(r.handles[st.Object])
		}
	case OpDestroyResource:
		kind, _ := qfo.ParseResourceKind(st.Resource)
		r.dev.DestroyResource(kind, st.Handle)
	case OpQueueWaitIdle:
		var q uint64
		if q, err = r.dev.Queue(st.Family, st.Index); err == nil {
			err = r.dev.QueueWaitIdle(q)
		}
	case OpDeviceWaitIdle:
		err = r.dev.DeviceWaitIdle()
	default:
		return "", fmt.Errorf("unknown op %q", st.Op)
	}

	var rej *report.RejectError
	switch {
	case err == nil:
		return CaseAccepted, nil
	case errors.As(err, &rej):
		return CaseRejected, err
	default:
		return "", err
	}
}

func waitOutcome(ok bool, err error) (string, error) {
	var rej *report.RejectError
	switch {
	case errors.As(err, &rej):
		return CaseRejected, err
	case err != nil:
		return "", err
	case ok:
		return CaseSatisfied, nil
	default:
		return CaseUnsatisfied, nil
	}
}
