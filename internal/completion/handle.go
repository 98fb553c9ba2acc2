package completion

import (
	"context"
	"sync"
	"time"
)

// Handle is a one-shot completion signal.
//
// The zero value is not usable; create handles with New.
type Handle struct {
	once sync.Once
	done chan struct{}
}

// New returns an unfulfilled handle.
func New() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Fulfilled returns a handle that is already complete.
func Fulfilled() *Handle {
	h := New()
	h.Fulfil()
	return h
}

// Fulfil marks the handle complete and wakes every waiter.
// Calls after the first are no-ops.
func (h *Handle) Fulfil() {
	h.once.Do(func() { close(h.done) })
}

// Done returns a channel that is closed once the handle is fulfilled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Poll reports whether the handle has been fulfilled without blocking.
func (h *Handle) Poll() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the handle is fulfilled or timeout elapses.
// A timeout <= 0 waits forever. Returns false on timeout.
func (h *Handle) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-h.done
		return true
	}
	if h.Poll() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// WaitContext blocks until the handle is fulfilled or ctx is done.
func (h *Handle) WaitContext(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAny blocks until one of hs is fulfilled or timeout elapses and returns
// that handle's index. Nil handles never fire. Returns -1 on timeout, or at
// once when every handle is nil. A timeout <= 0 waits forever.
func WaitAny(timeout time.Duration, hs ...*Handle) int {
	live := 0
	for i, h := range hs {
		if h == nil {
			continue
		}
		if h.Poll() {
			return i
		}
		live++
	}
	if live == 0 {
		return -1
	}

	fired := make(chan int, len(hs))
	stop := make(chan struct{})
	defer close(stop)
	for i, h := range hs {
		if h == nil {
			continue
		}
		go func() {
			select {
			case <-h.done:
				fired <- i
			case <-stop:
			}
		}()
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case i := <-fired:
		return i
	case <-expired:
		return -1
	}
}
