package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/qsync/internal/syncstate"
	"github.com/roach88/qsync/internal/trace"
)

// Assertion types.
const (
	AssertViolations    = "violations"
	AssertPayload       = "payload"
	AssertFenceState    = "fence_state"
	AssertScope         = "scope"
	AssertInUse         = "in_use"
	AssertReleases      = "outstanding_releases"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// Assertion checks device state or the trace after the last step.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Object names the primitive for payload, fence_state, scope and
	// in_use; for trace_contains it matches the event's object.
	Object string `yaml:"object,omitempty"`

	// Value is the expected timeline payload (payload).
	Value *uint64 `yaml:"value,omitempty"`

	// State is the expected fence state (fence_state).
	State string `yaml:"state,omitempty"`

	// Scope is the expected scope (scope).
	Scope string `yaml:"scope,omitempty"`

	// Expected is the expected in_use result.
	Expected *bool `yaml:"expected,omitempty"`

	// Codes is the exact list of reported codes (violations) or the
	// codes a reject event must carry (trace_contains).
	Codes []string `yaml:"codes,omitempty"`

	// Kind and Kinds select trace events.
	Kind  string   `yaml:"kind,omitempty"`
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of matches (trace_count,
	// outstanding_releases).
	Count *int `yaml:"count,omitempty"`
}

func validateAssertion(types map[string]string, a *Assertion) error {
	c := checker(types)
	switch a.Type {
	case AssertViolations:
		return nil
	case AssertPayload:
		if a.Value == nil {
			return fmt.Errorf("value is required for payload")
		}
		return c.ref("object", a.Object, ObjectTimelineSemaphore)
	case AssertFenceState:
		if a.State == "" {
			return fmt.Errorf("state is required for fence_state")
		}
		return c.ref("object", a.Object, ObjectFence)
	case AssertScope:
		if _, ok := syncstate.ParseScope(a.Scope); !ok || a.Scope == "" {
			return fmt.Errorf("scope: unknown scope %q", a.Scope)
		}
		return c.ref("object", a.Object, ObjectBinarySemaphore, ObjectTimelineSemaphore, ObjectFence)
	case AssertInUse:
		if a.Expected == nil {
			return fmt.Errorf("expected is required for in_use")
		}
		return c.ref("object", a.Object, ObjectBinarySemaphore, ObjectTimelineSemaphore, ObjectFence)
	case AssertReleases:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count must be non-negative for outstanding_releases")
		}
		return nil
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for trace_contains")
		}
		return nil
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("kinds list is required for trace_order")
		}
		return nil
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for trace_count")
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
		return nil
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Kind)
			if ev.BatchID != "" {
				fmt.Fprintf(&buf, " %s", ev.BatchID)
			}
			if ev.Object != "" {
				fmt.Fprintf(&buf, " %s", ev.Object)
			}
			if len(ev.Codes) > 0 {
				fmt.Fprintf(&buf, " %v", ev.Codes)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// matchEvent reports whether ev satisfies a trace_contains assertion.
// Object and codes are subset matches.
func matchEvent(ev trace.Event, a Assertion, object string) bool {
	if string(ev.Kind) != a.Kind {
		return false
	}
	if object != "" && ev.Object != object {
		return false
	}
	for _, c := range a.Codes {
		if !slices.Contains(ev.Codes, c) {
			return false
		}
	}
	return true
}

func assertTraceContains(tr []trace.Event, a Assertion, object string) error {
	for _, ev := range tr {
		if matchEvent(ev, a, object) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event (object %q, codes %v)", a.Kind, object, a.Codes),
		Actual:   "not found in trace",
		Trace:    tr,
	}
}

// assertTraceOrder checks that each kind occurs after the previous one.
// Kinds don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(tr []trace.Event, a Assertion) error {
	pos := 0
	for _, kind := range a.Kinds {
		found := false
		for pos < len(tr) {
			ev := tr[pos]
			pos++
			if string(ev.Kind) == kind {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Kinds),
				Actual:   fmt.Sprintf("no %s event after the previous match", kind),
				Trace:    tr,
			}
		}
	}
	return nil
}

func assertTraceCount(tr []trace.Event, a Assertion) error {
	count := 0
	for _, ev := range tr {
		if string(ev.Kind) == a.Kind {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", *a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    tr,
		}
	}
	return nil
}

func assertViolations(got []string, a Assertion) error {
	want := a.Codes
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertViolations,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
	}
}

// EvaluateAssertions evaluates all assertions against the run.
// Returns a slice of error messages for failed assertions.
func (r *runner) EvaluateAssertions(assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		if err := r.evaluate(a); err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errors
}

func (r *runner) evaluate(a Assertion) error {
	switch a.Type {
	case AssertViolations:
		return assertViolations(r.result.Codes(), a)

	case AssertPayload:
		s, _ := r.dev.Semaphore(r.handles[a.Object])
		if s == nil {
			return fmt.Errorf("semaphore %q was destroyed", a.Object)
		}
		if got := s.CurrentPayload(); got != *a.Value {
			return &AssertionError{Type: a.Type,
				Expected: fmt.Sprintf("%s at %d", a.Object, *a.Value),
				Actual:   fmt.Sprintf("%d", got)}
		}

	case AssertFenceState:
		f, _ := r.dev.Fence(r.handles[a.Object])
		if f == nil {
			return fmt.Errorf("fence %q was destroyed", a.Object)
		}
		if got := f.State().String(); got != a.State {
			return &AssertionError{Type: a.Type,
				Expected: fmt.Sprintf("%s %s", a.Object, a.State),
				Actual:   got}
		}

	case AssertScope, AssertInUse:
		scope, inUse, err := r.primitive(a.Object)
		if err != nil {
			return err
		}
		if a.Type == AssertScope && scope.String() != a.Scope {
			return &AssertionError{Type: a.Type,
				Expected: fmt.Sprintf("%s %s", a.Object, a.Scope),
				Actual:   scope.String()}
		}
		if a.Type == AssertInUse && inUse != *a.Expected {
			return &AssertionError{Type: a.Type,
				Expected: fmt.Sprintf("%s in use: %t", a.Object, *a.Expected),
				Actual:   fmt.Sprintf("%t", inUse)}
		}

	case AssertReleases:
		if got := r.dev.Registry().Len(); got != *a.Count {
			return &AssertionError{Type: a.Type,
				Expected: fmt.Sprintf("%d outstanding releases", *a.Count),
				Actual:   fmt.Sprintf("%d", got)}
		}

	case AssertTraceContains:
		object := ""
		if a.Object != "" {
			object = r.objectRef(a.Object)
		}
		return assertTraceContains(r.result.Trace, a, object)

	case AssertTraceOrder:
		return assertTraceOrder(r.result.Trace, a)

	case AssertTraceCount:
		return assertTraceCount(r.result.Trace, a)

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// primitive returns the scope and in-use state of a semaphore or fence.
func (r *runner) primitive(name string) (syncstate.Scope, bool, error) {
	h := r.handles[name]
	if r.types[name] == ObjectFence {
		f, ok := r.dev.Fence(h)
		if !ok {
			return 0, false, fmt.Errorf("fence %q was destroyed", name)
		}
		return f.Scope(), f.InUse(), nil
	}
	s, ok := r.dev.Semaphore(h)
	if !ok {
		return 0, false, fmt.Errorf("semaphore %q was destroyed", name)
	}
	return s.Scope(), s.InUse(), nil
}
