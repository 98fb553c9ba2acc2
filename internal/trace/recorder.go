package trace

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder stamps events with the next clock value and forwards them to a
// sink. Stamping and forwarding happen under one lock so the sink sees events
// in seq order.
//
// Sink failures are logged and never fail the caller: tracing must not change
// validation results.
type Recorder struct {
	mu     sync.Mutex
	sink   Sink
	clock  Ticker
	logger *slog.Logger
}

// NewRecorder creates a recorder. A nil clock uses a fresh Clock and a nil
// logger uses slog.Default().
func NewRecorder(sink Sink, clock Ticker, logger *slog.Logger) *Recorder {
	if sink == nil {
		sink = Discard
	}
	if clock == nil {
		clock = NewClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, clock: clock, logger: logger}
}

// Emit stamps e and records it. Returns the stamped seq.
func (r *Recorder) Emit(ctx context.Context, e Event) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Seq = r.clock.Next()
	if err := r.sink.Record(ctx, e); err != nil {
		r.logger.Error("trace sink failed",
			"seq", e.Seq,
			"kind", string(e.Kind),
			"error", err,
		)
	}
	return e.Seq
}
