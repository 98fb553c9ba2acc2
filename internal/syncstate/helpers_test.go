package syncstate

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/roach88/qsync/internal/report"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestQueue creates a queue whose worker is stopped when the test ends.
func newTestQueue(t *testing.T, handle uint64, family uint32, opts ...Option) *Queue {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger), WithWaitTimeout(2 * time.Second)}, opts...)
	q := NewQueue(handle, family, 0, QueueGraphics|QueueCompute|QueueTransfer, opts...)
	t.Cleanup(q.Destroy)
	return q
}

func newTestSemaphore(handle uint64, kind SemaphoreKind, initial uint64, c *report.Collector) *Semaphore {
	opts := []Option{WithLogger(quietLogger), WithWaitTimeout(2 * time.Second)}
	if c != nil {
		opts = append(opts, WithReporter(c))
	}
	return NewSemaphore(handle, kind, initial, opts...)
}
