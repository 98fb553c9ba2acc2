package trace

import (
	"context"
	"sync"
)

// Kind names what an event records.
type Kind string

const (
	KindSubmit     Kind = "submit"
	KindRetire     Kind = "retire"
	KindReject     Kind = "reject"
	KindHostSignal Kind = "host_signal"
	KindHostWait   Kind = "host_wait"
	KindFenceWait  Kind = "fence_wait"
	KindFenceReset Kind = "fence_reset"
	KindAcquire    Kind = "acquire"
	KindImport     Kind = "import"
	KindExport     Kind = "export"
	KindDestroy    Kind = "destroy"
	KindIdle       Kind = "idle"
)

// Event is one trace record.
type Event struct {
	// Seq is the logical clock value, assigned by the Recorder.
	Seq int64

	Kind Kind

	// BatchID correlates submit and retire records of one submission.
	BatchID string

	// Queue is the queue handle, zero for host-side events.
	Queue uint64

	// QueueSeq is the submission's sequence number on its queue.
	QueueSeq uint64

	// Object names the primitive a host-side event is about,
	// e.g. "VkSemaphore 0x2A".
	Object string

	// Payload is the semaphore value, when one applies.
	Payload uint64

	// Codes lists violation codes for reject events.
	Codes []string

	// Detail is a short free-form note (the API call name for rejects).
	Detail string
}

// Canonical renders e as canonical JSON, omitting zero fields.
func (e Event) Canonical() ([]byte, error) {
	m := map[string]any{
		"seq":  e.Seq,
		"kind": string(e.Kind),
	}
	if e.BatchID != "" {
		m["batch"] = e.BatchID
	}
	if e.Queue != 0 {
		m["queue"] = e.Queue
	}
	if e.QueueSeq != 0 {
		m["queue_seq"] = e.QueueSeq
	}
	if e.Object != "" {
		m["object"] = e.Object
	}
	if e.Payload != 0 {
		m["payload"] = e.Payload
	}
	if len(e.Codes) > 0 {
		m["codes"] = e.Codes
	}
	if e.Detail != "" {
		m["detail"] = e.Detail
	}
	return MarshalCanonical(m)
}

// Sink receives trace events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }

// Tee fans events out to every non-nil sink, stopping at the first error.
func Tee(sinks ...Sink) Sink {
	var out tee
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type tee []Sink

func (t tee) Record(ctx context.Context, e Event) error {
	for _, s := range t {
		if err := s.Record(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Memory keeps events in memory, for tests and golden traces.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends e.
func (m *Memory) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Lines renders every recorded event as one canonical JSON line.
func (m *Memory) Lines() ([]byte, error) {
	return Lines(m.Events())
}

// Lines renders events as canonical JSON lines, each ending in a newline.
func Lines(events []Event) ([]byte, error) {
	var out []byte
	for _, e := range events {
		line, err := e.Canonical()
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}
