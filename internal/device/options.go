package device

import (
	"log/slog"
	"time"

	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/trace"
)

// Option configures a Device.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	reporter   report.Reporter
	sink       trace.Sink
	ids        trace.IDGenerator
	clock      trace.Ticker
	timeout    time.Duration
	hasTimeout bool
}

// WithLogger sets the structured logger used by the device and everything it
// creates. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReporter sets where violations go. Default: a report.LogReporter.
func WithReporter(r report.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithTraceSink sets where trace events go. Default: trace.Discard.
func WithTraceSink(s trace.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithIDGenerator sets the batch id generator. Default: UUIDv7.
func WithIDGenerator(g trace.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the trace clock. Default: a fresh trace.Clock.
func WithClock(c trace.Ticker) Option {
	return func(o *options) { o.clock = c }
}

// WithWaitTimeout overrides the profile's wait timeout. Zero waits forever.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
		o.hasTimeout = true
	}
}
