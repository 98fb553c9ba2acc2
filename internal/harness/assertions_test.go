package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/trace"
)

const sem3 = "VkSemaphore 0x3"

func sampleTrace() []trace.Event {
	return []trace.Event{
		{Seq: 1, Kind: trace.KindSubmit, BatchID: "batch-1", Queue: 1, QueueSeq: 1},
		{Seq: 2, Kind: trace.KindReject, Queue: 1, Codes: []string{"A", "B"}},
		{Seq: 3, Kind: trace.KindRetire, BatchID: "batch-1", Queue: 1, QueueSeq: 1},
		{Seq: 4, Kind: trace.KindHostWait, Object: sem3, Payload: 5},
		{Seq: 5, Kind: trace.KindIdle},
	}
}

func intPtr(n int) *int { return &n }

func TestAssertTraceContains_Found(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Kind: "host_wait"}, sem3)
	assert.NoError(t, err)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Kind: "fence_wait"}, "")
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_contains", assertErr.Type)
	assert.Contains(t, assertErr.Expected, "fence_wait")
	assert.Equal(t, "not found in trace", assertErr.Actual)
}

func TestAssertTraceContains_WrongObject(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Kind: "host_wait"}, "VkSemaphore 0x4")
	assert.Error(t, err)
}

func TestAssertTraceContains_CodesSubset(t *testing.T) {
	tr := sampleTrace()

	assert.NoError(t, assertTraceContains(tr, Assertion{Kind: "reject", Codes: []string{"B"}}, ""))
	assert.NoError(t, assertTraceContains(tr, Assertion{Kind: "reject", Codes: []string{"A", "B"}}, ""))
	assert.Error(t, assertTraceContains(tr, Assertion{Kind: "reject", Codes: []string{"C"}}, ""))
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Kinds: []string{"submit", "retire", "idle"}})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Kinds: []string{"retire", "submit"}})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_order", assertErr.Type)
	assert.Contains(t, assertErr.Actual, "no submit event")
}

func TestAssertTraceOrder_RepeatedKindNeedsTwoEvents(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Kinds: []string{"submit", "submit"}})
	assert.Error(t, err)
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		kind  string
		count int
		ok    bool
	}{
		{"submit", 1, true},
		{"submit", 2, false},
		{"fence_wait", 0, true},
		{"idle", 0, false},
	}
	for _, tt := range tests {
		err := assertTraceCount(sampleTrace(), Assertion{Kind: tt.kind, Count: intPtr(tt.count)})
		if tt.ok {
			assert.NoError(t, err, "%s x%d", tt.kind, tt.count)
		} else {
			assert.Error(t, err, "%s x%d", tt.kind, tt.count)
		}
	}
}

func TestAssertViolations_Exact(t *testing.T) {
	assert.NoError(t, assertViolations([]string{}, Assertion{}))
	assert.NoError(t, assertViolations([]string{"A", "B"}, Assertion{Codes: []string{"A", "B"}}))
	assert.Error(t, assertViolations([]string{"B", "A"}, Assertion{Codes: []string{"A", "B"}}))
	assert.Error(t, assertViolations([]string{"A"}, Assertion{}))
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 submit events",
		Actual:   "1 events",
		Trace:    sampleTrace()[:2],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 submit events")
	assert.Contains(t, msg, "Actual: 1 events")
	assert.Contains(t, msg, "[1] submit batch-1")
	assert.Contains(t, msg, "[2] reject [A B]")
}

func TestEvaluateAssertions_AgainstDevice(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: evaluate
description: "Assertions read live device state"
objects:
  - name: T
    type: timeline_semaphore
  - name: F
    type: fence
    signaled: true
steps:
  - op: host_signal
    semaphore: T
    value: 7
assertions:
  - type: payload
    object: T
    value: 7
  - type: fence_state
    object: F
    state: retired
  - type: scope
    object: T
    scope: internal
  - type: in_use
    object: T
    expected: false
  - type: outstanding_releases
    count: 0
  - type: trace_contains
    kind: host_signal
    object: T
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: evaluate_fail
description: "Failing assertions are reported by index"
objects:
  - name: T
    type: timeline_semaphore
steps:
  - op: host_signal
    semaphore: T
    value: 7
assertions:
  - type: payload
    object: T
    value: 7
  - type: payload
    object: T
    value: 8
  - type: trace_count
    kind: host_signal
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertions[1]")
	assert.Contains(t, result.Errors[1], "assertions[2]")
}
