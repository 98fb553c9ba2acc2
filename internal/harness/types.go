package harness

import (
	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/trace"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace holds every trace event recorded up to the last step.
	Trace []trace.Event `json:"trace"`

	// Violations holds everything the device reported, in report order.
	Violations []*report.Violation `json:"violations,omitempty"`

	// Errors describes each failed expectation or assertion.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []trace.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Codes returns the codes of every reported violation.
func (r *Result) Codes() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = string(v.Code)
	}
	return out
}
