// Package completion provides a one-shot, multi-waiter completion handle.
//
// A Handle is fulfilled exactly once. Any number of goroutines may poll it,
// block on it with a timeout, or select on its Done channel. Queues attach one
// handle to every submission and semaphores attach one to every timeline
// point; cross-queue hand-off is a Notify followed by a wait on the handle.
package completion
