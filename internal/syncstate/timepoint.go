package syncstate

import (
	"sort"

	"github.com/roach88/qsync/internal/completion"
)

// TimePoint is one payload slot in a semaphore ledger.
type TimePoint struct {
	Payload uint64

	// Signal is the submission that signals this payload, if any.
	Signal *SubmissionRef

	// Acquire names the image-acquire command that signals this payload.
	// Binary semaphores only; mutually exclusive with Signal.
	Acquire string

	// Waits lists every submission waiting on this payload.
	Waits []SubmissionRef

	done *completion.Handle
}

func newTimePoint(payload uint64) *TimePoint {
	return &TimePoint{Payload: payload, done: completion.New()}
}

// HasSignaler reports whether something will signal this payload.
func (tp *TimePoint) HasSignaler() bool {
	return tp.Signal != nil || tp.Acquire != ""
}

// HasWaiters reports whether any wait is registered on this payload.
func (tp *TimePoint) HasWaiters() bool {
	return len(tp.Waits) > 0
}

// Done returns the completion handle fulfilled when the payload retires.
func (tp *TimePoint) Done() *completion.Handle {
	return tp.done
}

func (tp *TimePoint) signalOp() (SemOp, bool) {
	switch {
	case tp.Signal != nil:
		return SemOp{Kind: OpSignal, Payload: tp.Payload, Submit: *tp.Signal}, true
	case tp.Acquire != "":
		return SemOp{Kind: OpBinaryAcquire, Payload: tp.Payload, Source: tp.Acquire}, true
	default:
		return SemOp{}, false
	}
}

func (tp *TimePoint) waitFrom(q *Queue) SubmissionRef {
	for _, w := range tp.Waits {
		if w.Queue == q {
			return w
		}
	}
	return SubmissionRef{Queue: q}
}

// ledger keeps timepoints sorted by ascending payload.
type ledger struct {
	points []*TimePoint
}

func (l *ledger) len() int { return len(l.points) }

func (l *ledger) search(payload uint64) int {
	return sort.Search(len(l.points), func(i int) bool {
		return l.points[i].Payload >= payload
	})
}

// find returns the timepoint for payload or nil.
func (l *ledger) find(payload uint64) *TimePoint {
	i := l.search(payload)
	if i < len(l.points) && l.points[i].Payload == payload {
		return l.points[i]
	}
	return nil
}

// get returns the timepoint for payload, inserting it if missing.
func (l *ledger) get(payload uint64) *TimePoint {
	i := l.search(payload)
	if i < len(l.points) && l.points[i].Payload == payload {
		return l.points[i]
	}
	tp := newTimePoint(payload)
	l.points = append(l.points, nil)
	copy(l.points[i+1:], l.points[i:])
	l.points[i] = tp
	return tp
}

// last returns the highest timepoint or nil.
func (l *ledger) last() *TimePoint {
	if len(l.points) == 0 {
		return nil
	}
	return l.points[len(l.points)-1]
}

// firstSignalAtOrAbove returns the lowest timepoint with payload >= payload
// that has a signaler.
func (l *ledger) firstSignalAtOrAbove(payload uint64) *TimePoint {
	for i := l.search(payload); i < len(l.points); i++ {
		if l.points[i].HasSignaler() {
			return l.points[i]
		}
	}
	return nil
}

// retireThrough removes every timepoint with payload <= payload and fulfils
// their completion handles.
func (l *ledger) retireThrough(payload uint64) {
	n := 0
	for n < len(l.points) && l.points[n].Payload <= payload {
		l.points[n].done.Fulfil()
		l.points[n] = nil
		n++
	}
	l.points = l.points[n:]
	if len(l.points) == 0 {
		l.points = nil
	}
}
