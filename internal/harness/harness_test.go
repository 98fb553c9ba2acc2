package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/testutil"
	"github.com/roach88/qsync/internal/trace"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_MinimalScenario(t *testing.T) {
	s := mustParse(t, `
name: minimal
description: "One signal, one wait"
objects:
  - name: S
    type: binary_semaphore
steps:
  - op: submit
    submits:
      - signals: [{semaphore: S}]
      - waits: [{semaphore: S}]
  - op: queue_wait_idle
`)

	result, err := Run(s)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Violations)

	kinds := make([]trace.Kind, len(result.Trace))
	for i, e := range result.Trace {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []trace.Kind{
		trace.KindSubmit, trace.KindSubmit,
		trace.KindRetire, trace.KindRetire,
		trace.KindIdle,
	}, kinds)
}

func TestRun_UnexpectedRejection(t *testing.T) {
	s := mustParse(t, `
name: unexpected
description: "A wait with no signal is rejected but the step expects acceptance"
objects:
  - name: S
    type: binary_semaphore
steps:
  - op: submit
    submits:
      - waits: [{semaphore: S}]
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] submit: expected accepted, got rejected")
	assert.Equal(t, []string{string(report.CodeBinaryWaitNoSignal)}, result.Codes())
}

func TestRun_ExpectedCodesMismatch(t *testing.T) {
	s := mustParse(t, `
name: codes
description: "Rejected with a different code than expected"
objects:
  - name: S
    type: binary_semaphore
steps:
  - op: submit
    submits:
      - waits: [{semaphore: S}]
    expect:
      case: rejected
      codes: ["VUID-vkQueueSubmit-pWaitSemaphores-00068"]
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected codes")
}

func TestRun_UnknownQueue(t *testing.T) {
	s := mustParse(t, `
name: bad_queue
description: "Family 9 does not exist on the default profile"
steps:
  - op: queue_wait_idle
    family: 9
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] queue_wait_idle")
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/binary_two_queues.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Codes(), second.Codes())
}

func TestRun_ProfileResolution(t *testing.T) {
	s := mustParse(t, `
name: profile
description: "The option profile is used when the scenario names none"
objects:
  - name: T
    type: timeline_semaphore
steps:
  - op: submit
    family: 0
    index: 1
    submits:
      - signals: [{semaphore: T, value: 500}]
    expect:
      case: rejected
      codes: ["VUID-VkTimelineSemaphoreSubmitInfo-pSignalSemaphoreValues-03244"]
`)

	// Two queues in family 0 and a limit of 100.
	result, err := Run(s, WithProfile(testutil.TwoFamilyProfile(100)))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// The scenario's own override wins over the option profile.
	limit := uint64(1000)
	s.MaxTimelineDiff = &limit
	result, err = Run(s, WithProfile(testutil.TwoFamilyProfile(100)))
	require.NoError(t, err)
	assert.False(t, result.Pass)
}

func TestRun_ProfileFileMissing(t *testing.T) {
	s := mustParse(t, `
name: missing_profile
description: "A profile file that does not exist fails setup"
profile: nowhere.cue
steps:
  - op: device_wait_idle
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_profile")
}

func TestRun_ExtraSinkAndReporter(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "binary_same_queue.yaml"))
	require.NoError(t, err)

	mem := trace.NewMemory()
	collector := report.NewCollector()
	result, err := Run(s, WithTraceSink(mem), WithReporter(collector))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	// The extra sink sees everything the result holds, plus any retire
	// events from the final drain.
	assert.GreaterOrEqual(t, len(mem.Events()), len(result.Trace))
	assert.Equal(t, result.Trace, mem.Events()[:len(result.Trace)])
	assert.Equal(t, []report.Code{report.CodeBinaryWaitNoSignal}, collector.Codes())
}

func TestRun_WaitOutcomes(t *testing.T) {
	s := mustParse(t, `
name: waits
description: "Host waits report satisfied or unsatisfied"
objects:
  - name: T
    type: timeline_semaphore
    initial: 2
  - name: F
    type: fence
steps:
  - op: host_wait
    semaphores: [T]
    values: [2]
  - op: host_wait
    semaphores: [T]
    values: [3]
    expect:
      case: unsatisfied
  - op: fence_wait
    fences: [F]
    expect:
      case: unsatisfied
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ImportMakesWaitObservable(t *testing.T) {
	s := mustParse(t, `
name: external
description: "A wait on an imported timeline returns once nothing internal can reach it"
objects:
  - name: T
    type: timeline_semaphore
steps:
  - op: import
    object: T
    handle_type: opaque-fd
  - op: host_wait
    semaphores: [T]
    values: [9]
assertions:
  - type: scope
    object: T
    scope: external-permanent
  - type: payload
    object: T
    value: 9
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("first")
	r.AddError("second")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"first", "second"}, r.Errors)
}

func TestResult_Codes(t *testing.T) {
	r := NewResult()
	assert.Empty(t, r.Codes())

	r.Violations = []*report.Violation{
		report.Usage(report.CodeFenceInUse, "loc", nil, "x"),
		report.Usage(report.CodeBinaryWaitNoSignal, "loc", nil, "y"),
	}
	assert.Equal(t, []string{string(report.CodeFenceInUse), string(report.CodeBinaryWaitNoSignal)}, r.Codes())
}

var _ trace.Sink = sinkFunc(nil)

type sinkFunc func(trace.Event)

func (f sinkFunc) Record(_ context.Context, e trace.Event) error {
	f(e)
	return nil
}

func TestRun_SinkSeesSeqInOrder(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/ownership_transfer.yaml")
	require.NoError(t, err)

	var seqs []int64
	_, err = Run(s, WithTraceSink(sinkFunc(func(e trace.Event) { seqs = append(seqs, e.Seq) })))
	require.NoError(t, err)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}
