package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/trace"
)

// BeginRun registers a run and returns a handle for writing into it.
// Uses ON CONFLICT(id) DO NOTHING so reopening an existing run is allowed.
func (s *Store) BeginRun(ctx context.Context, id, name, profile string) (*Run, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, profile)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, profile)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return &Run{store: s, id: id}, nil
}

// Run writes the events and violations of one run.
//
// Run implements trace.Sink and report.Reporter. Report cannot return an
// error, so the first write failure is kept and returned by Err.
type Run struct {
	store *Store
	id    string

	mu  sync.Mutex
	err error
}

var (
	_ trace.Sink      = (*Run)(nil)
	_ report.Reporter = (*Run)(nil)
)

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Record inserts an event row. Events with an already stored seq are ignored.
func (r *Run) Record(ctx context.Context, e trace.Event) error {
	body, err := e.Canonical()
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	codes := e.Codes
	if codes == nil {
		codes = []string{}
	}
	codesJSON, err := trace.MarshalCanonical(codes)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, batch_id, queue, queue_seq, object, payload, codes, detail, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		r.id,
		e.Seq,
		string(e.Kind),
		e.BatchID,
		int64(e.Queue),
		int64(e.QueueSeq),
		e.Object,
		int64(e.Payload),
		string(codesJSON),
		e.Detail,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Report inserts a violation row.
func (r *Run) Report(v *report.Violation) {
	if err := r.writeViolation(context.Background(), v); err != nil {
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// Err returns the first error Report hit, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) writeViolation(ctx context.Context, v *report.Violation) error {
	objs := make([]any, len(v.Objects))
	for i, o := range v.Objects {
		objs[i] = map[string]any{"type": o.Type, "handle": o.Handle}
	}
	objsJSON, err := trace.MarshalCanonical(objs)
	if err != nil {
		return fmt.Errorf("write violation: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO violations (run_id, code, severity, location, message, objects)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.id,
		string(v.Code),
		v.Severity.String(),
		v.Location,
		v.Message,
		string(objsJSON),
	)
	if err != nil {
		return fmt.Errorf("write violation: %w", err)
	}
	return nil
}
