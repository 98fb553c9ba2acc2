package syncstate

import (
	"math"
	"sync"

	"github.com/roach88/qsync/internal/completion"
	"github.com/roach88/qsync/internal/report"
)

// NotifyAll asks a queue to retire everything submitted so far.
const NotifyAll = math.MaxUint64

// QueueFlags are the capability bits of a queue family.
type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 1 << iota
	QueueCompute
	QueueTransfer
	QueueSparseBinding
	QueueProtected
	QueueVideoDecode
	QueueVideoEncode
)

// Queue owns an ordered submission log and the worker goroutine that retires
// it.
//
// Thread-safety model:
//   - Submit, Notify, Wait, WaitIdle: safe from any goroutine
//   - the worker goroutine is the only one that removes log entries
//
// The worker sleeps until the host requests progress past the oldest
// submission. It uses a buffered signal channel of size 1 so that any number
// of Notify calls coalesce into one wakeup.
type Queue struct {
	handle uint64
	family uint32
	index  uint32
	flags  QueueFlags
	opts   options

	mu          sync.Mutex
	submissions []*Submission
	seq         uint64
	requestSeq  uint64
	exit        bool

	wake chan struct{}
	done chan struct{}
}

// NewQueue creates a queue and starts its worker.
func NewQueue(handle uint64, family, index uint32, flags QueueFlags, opts ...Option) *Queue {
	q := &Queue{
		handle: handle,
		family: family,
		index:  index,
		flags:  flags,
		opts:   newOptions(opts),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Handle returns the queue's handle.
func (q *Queue) Handle() uint64 { return q.handle }

// Family returns the queue family index.
func (q *Queue) Family() uint32 { return q.family }

// Index returns the queue index within its family.
func (q *Queue) Index() uint32 { return q.index }

// Flags returns the queue family capability flags.
func (q *Queue) Flags() QueueFlags { return q.flags }

// Seq returns the sequence number of the most recent submission.
func (q *Queue) Seq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// Pending returns the number of submissions not yet retired.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.submissions)
}

// Submit assigns sequence numbers to subs, registers their waits, signals and
// fences with the referenced primitives, and appends them to the log.
// Returns the sequence number of the last submission.
//
// Callers must validate subs first; Submit never rejects.
func (q *Queue) Submit(subs []*Submission) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, sub := range subs {
		q.seq++
		sub.Seq = q.seq
		sub.done = completion.New()
		ref := SubmissionRef{Queue: q, Seq: sub.Seq}

		for i := range sub.Waits {
			w := &sub.Waits[i]
			w.Payload, _ = w.Semaphore.EnqueueWait(ref, w.Payload)
		}
		for i := range sub.Signals {
			sig := &sub.Signals[i]
			sig.Payload = sig.Semaphore.EnqueueSignal(ref, sig.Payload)
		}
		if sub.Fence != nil {
			sub.Fence.EnqueueSignal(q, sub.Seq)
		}
		q.submissions = append(q.submissions, sub)

		q.opts.logger.Debug("submission enqueued",
			"queue", q.handle,
			"seq", sub.Seq,
			"batch", sub.BatchID,
			"waits", len(sub.Waits),
			"signals", len(sub.Signals),
			"fence", sub.Fence != nil,
		)
	}
	return q.seq
}

// Submission returns the pending submission with the given seq, or nil if it
// has retired or never existed.
func (q *Queue) Submission(seq uint64) *Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findLocked(seq)
}

func (q *Queue) findLocked(seq uint64) *Submission {
	if len(q.submissions) == 0 {
		return nil
	}
	first := q.submissions[0].Seq
	if seq < first || seq-first >= uint64(len(q.submissions)) {
		return nil
	}
	return q.submissions[seq-first]
}

// Notify asks the worker to retire submissions up to untilSeq without
// blocking. NotifyAll means everything submitted so far.
func (q *Queue) Notify(untilSeq uint64) {
	q.mu.Lock()
	if untilSeq == NotifyAll || untilSeq > q.seq {
		untilSeq = q.seq
	}
	if untilSeq > q.requestSeq {
		q.requestSeq = untilSeq
	}
	q.mu.Unlock()

	// Non-blocking: buffer of 1 coalesces multiple notifications
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until the submission with untilSeq has retired. It does not
// request progress by itself; see NotifyAndWait.
// A timeout is reported and returned as an internal violation.
func (q *Queue) Wait(untilSeq uint64) error {
	q.mu.Lock()
	if untilSeq == NotifyAll {
		untilSeq = q.seq
	}
	sub := q.findLocked(untilSeq)
	q.mu.Unlock()
	if sub == nil {
		return nil
	}
	if sub.done.Wait(q.opts.timeout) {
		return nil
	}

	v := report.Internal(report.CodeQueueTimeout, "Queue.Wait",
		report.Objects(report.Queue(q.handle)),
		"timeout waiting for queue state to update (seq %d)", untilSeq)
	q.opts.logger.Error("queue wait timed out",
		"queue", q.handle,
		"seq", untilSeq,
	)
	q.opts.reporter.Report(v)
	return v
}

// NotifyAndWait requests progress up to untilSeq and blocks until it is
// reached.
func (q *Queue) NotifyAndWait(untilSeq uint64) error {
	q.Notify(untilSeq)
	return q.Wait(untilSeq)
}

// WaitIdle retires everything submitted so far.
func (q *Queue) WaitIdle() error {
	return q.NotifyAndWait(NotifyAll)
}

// Destroy drains the log and stops the worker. Blocks until the worker has
// exited.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.exit {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.exit = true
	q.requestSeq = q.seq
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

// next blocks until there is a submission the host asked to retire.
// Returns nil once the queue is shutting down and fully drained.
func (q *Queue) next() *Submission {
	for {
		q.mu.Lock()
		if len(q.submissions) > 0 && q.submissions[0].Seq <= q.requestSeq {
			sub := q.submissions[0]
			q.mu.Unlock()
			return sub
		}
		if q.exit {
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *Queue) run() {
	defer close(q.done)
	q.opts.logger.Info("queue worker starting", "queue", q.handle, "family", q.family, "index", q.index)

	for {
		sub := q.next()
		if sub == nil {
			q.opts.logger.Info("queue worker stopping", "queue", q.handle)
			return
		}
		q.retire(sub)
	}
}

// retire completes sub: waits first, then the retire hook, then signals,
// then the fence. Nothing blocked on sub's signals or fence can wake before
// the hook has run.
// CRITICAL: Called only from the worker goroutine.
func (q *Queue) retire(sub *Submission) {
	for _, w := range sub.Waits {
		// Timeouts are reported inside RetireWait; keep going regardless.
		_ = w.Semaphore.RetireWait(q, w.Payload)
	}
	if q.opts.onRetire != nil {
		q.opts.onRetire(sub)
	}
	for _, sig := range sub.Signals {
		sig.Semaphore.RetireSignal(sig.Payload)
	}
	if sub.Fence != nil {
		sub.Fence.Retire()
	}

	q.mu.Lock()
	q.submissions[0] = nil
	q.submissions = q.submissions[1:]
	if len(q.submissions) == 0 {
		q.submissions = nil
	}
	q.mu.Unlock()
	sub.done.Fulfil()

	q.opts.logger.Debug("submission retired",
		"queue", q.handle,
		"seq", sub.Seq,
		"batch", sub.BatchID,
	)
}
