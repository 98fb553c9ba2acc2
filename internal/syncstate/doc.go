// Package syncstate tracks the host-visible state of queue synchronization
// primitives: binary and timeline semaphores, fences, and the queues that
// signal and wait on them.
//
// # Model
//
// Every Semaphore owns a ledger: an ordered set of TimePoints keyed by
// payload. A TimePoint holds at most one signal (from a queue submission, the
// host, or an image acquire) and any number of waits. Binary semaphores get
// synthetic payloads from a private counter; timeline semaphores use the
// caller's 64-bit values. The most recently retired operation is kept as the
// semaphore's completed record.
//
// Every Queue owns an ordered log of Submissions and a worker goroutine. The
// worker retires submissions oldest first once the host has asked it to make
// progress (Notify), retiring each submission's waits, then its signals, then
// its fence.
//
// # Cross-queue hand-off
//
// A wait whose resolving signal lives on another queue does not complete
// locally: the worker calls Notify on the signaling queue and blocks on the
// TimePoint's completion handle. Queues never lock each other's logs.
//
// # Failure semantics
//
// Nothing in this package rejects user input; that is the validator's job.
// Broken internal invariants and worker timeouts are reported as internal
// violations and the ledger still moves forward.
package syncstate
