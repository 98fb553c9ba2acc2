package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/trace"
)

// RunInfo describes a stored run.
type RunInfo struct {
	ID         string
	Name       string
	Profile    string
	Events     int
	Violations int
}

// ReadRuns returns every run in insertion order.
func (s *Store) ReadRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.profile,
			(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id),
			(SELECT COUNT(*) FROM violations v WHERE v.run_id = r.id)
		FROM runs r
		ORDER BY r.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var ri RunInfo
		if err := rows.Scan(&ri.ID, &ri.Name, &ri.Profile, &ri.Events, &ri.Violations); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns the events of a run ordered by seq.
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, batch_id, queue, queue_seq, object, payload, codes, detail
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (trace.Event, error) {
	var (
		e                        trace.Event
		kind, codes              string
		queue, queueSeq, payload int64
	)
	if err := rows.Scan(&e.Seq, &kind, &e.BatchID, &queue, &queueSeq, &e.Object, &payload, &codes, &e.Detail); err != nil {
		return trace.Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.Kind = trace.Kind(kind)
	e.Queue = uint64(queue)
	e.QueueSeq = uint64(queueSeq)
	e.Payload = uint64(payload)
	if err := json.Unmarshal([]byte(codes), &e.Codes); err != nil {
		return trace.Event{}, fmt.Errorf("decode event codes: %w", err)
	}
	if len(e.Codes) == 0 {
		e.Codes = nil
	}
	return e, nil
}

// ReadViolations returns the violations of a run in the order they were
// reported. A non-empty code filters to that code.
func (s *Store) ReadViolations(ctx context.Context, runID string, code report.Code) ([]report.Violation, error) {
	query := `
		SELECT code, severity, location, message, objects
		FROM violations
		WHERE run_id = ?`
	args := []any{runID}
	if code != "" {
		query += ` AND code = ?`
		args = append(args, string(code))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	out := []report.Violation{}
	for rows.Next() {
		var (
			v                    report.Violation
			codeStr, sev, objStr string
		)
		if err := rows.Scan(&codeStr, &sev, &v.Location, &v.Message, &objStr); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.Code = report.Code(codeStr)
		v.Severity = parseSeverity(sev)

		var objs []struct {
			Type   string `json:"type"`
			Handle uint64 `json:"handle"`
		}
		if err := json.Unmarshal([]byte(objStr), &objs); err != nil {
			return nil, fmt.Errorf("decode violation objects: %w", err)
		}
		for _, o := range objs {
			v.Objects = append(v.Objects, report.ObjectRef{Type: o.Type, Handle: o.Handle})
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

func parseSeverity(s string) report.Severity {
	if s == report.SeverityInternal.String() {
		return report.SeverityInternal
	}
	return report.SeverityUsage
}
