package syncstate

import (
	"log/slog"
	"time"

	"github.com/roach88/qsync/internal/report"
)

// Option configures a Semaphore, Fence or Queue.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	reporter report.Reporter
	timeout  time.Duration
	onRetire func(*Submission)
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		reporter: report.Discard,
		timeout:  DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReporter sets where internal-consistency violations go.
func WithReporter(r report.Reporter) Option {
	return func(o *options) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithWaitTimeout bounds every blocking wait. Zero or negative waits forever.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithRetireHook registers a callback the queue worker runs for every
// submission after its waits have retired and before its signals, fence and
// completion handle. Only meaningful for queues.
func WithRetireHook(fn func(*Submission)) Option {
	return func(o *options) {
		o.onRetire = fn
	}
}
