package report

import (
	"context"
	"log/slog"
	"sync"
)

// Reporter receives every violation qsync detects.
// Implementations must be safe for concurrent use; queue workers report
// internal violations from their own goroutines.
type Reporter interface {
	Report(v *Violation)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(v *Violation)

// Report calls f(v).
func (f ReporterFunc) Report(v *Violation) { f(v) }

// Discard drops every violation.
var Discard Reporter = ReporterFunc(func(*Violation) {})

// LogReporter writes violations to a structured logger.
// Usage violations log at Warn, internal ones at Error.
type LogReporter struct {
	Logger *slog.Logger
}

// NewLogReporter creates a LogReporter. A nil logger uses slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{Logger: logger}
}

// Report logs v.
func (r *LogReporter) Report(v *Violation) {
	level := slog.LevelWarn
	if v.Severity == SeverityInternal {
		level = slog.LevelError
	}
	objs := make([]string, len(v.Objects))
	for i, o := range v.Objects {
		objs[i] = o.String()
	}
	r.Logger.Log(context.Background(), level, v.Message,
		"code", string(v.Code),
		"severity", v.Severity.String(),
		"location", v.Location,
		"objects", objs,
	)
}

// Collector keeps every reported violation in memory.
// Used by the scenario harness and tests.
type Collector struct {
	mu         sync.Mutex
	violations []*Violation
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report appends v.
func (c *Collector) Report(v *Violation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations = append(c.violations, v)
}

// Violations returns a copy of the collected violations.
func (c *Collector) Violations() []*Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Violation, len(c.violations))
	copy(out, c.violations)
	return out
}

// Codes returns the codes of the collected violations in report order.
func (c *Collector) Codes() []Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Code, len(c.violations))
	for i, v := range c.violations {
		out[i] = v.Code
	}
	return out
}

// Reset clears the collector.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations = nil
}

type multiReporter []Reporter

func (m multiReporter) Report(v *Violation) {
	for _, r := range m {
		r.Report(v)
	}
}

// Multi fans a violation out to every non-nil reporter in order.
func Multi(reporters ...Reporter) Reporter {
	var rs multiReporter
	for _, r := range reporters {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return rs
}
