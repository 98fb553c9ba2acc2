package validate

import "github.com/roach88/qsync/internal/syncstate"

// Limits are the device limits the validators enforce.
type Limits struct {
	// MaxTimelineDiff is maxTimelineSemaphoreValueDifference. Zero disables
	// the check.
	MaxTimelineDiff uint64
}

// exceeds reports whether a and b differ by more than the limit.
func (l Limits) exceeds(a, b uint64) bool {
	if l.MaxTimelineDiff == 0 {
		return false
	}
	if a > b {
		return a-b > l.MaxTimelineDiff
	}
	return b-a > l.MaxTimelineDiff
}

// firstExceeding returns the first value in vs that differs from value by
// more than the limit.
func (l Limits) firstExceeding(value uint64, vs []uint64) (uint64, bool) {
	for _, v := range vs {
		if l.exceeds(value, v) {
			return v, true
		}
	}
	return 0, false
}

// timelineValues returns the current value followed by the payload of every
// pending operation on sem.
func timelineValues(sem *syncstate.Semaphore) []uint64 {
	pending := sem.Pending()
	out := make([]uint64, 0, len(pending)+1)
	out = append(out, sem.CurrentPayload())
	for _, tp := range pending {
		out = append(out, tp.Payload)
	}
	return out
}

// pendingSignals returns the payload of every pending signal on sem.
func pendingSignals(sem *syncstate.Semaphore) []uint64 {
	var out []uint64
	for _, tp := range sem.Pending() {
		if tp.HasSignaler() {
			out = append(out, tp.Payload)
		}
	}
	return out
}
