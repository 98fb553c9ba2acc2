// Package device is the process-scoped owner of all tracked state: queues,
// semaphores, fences, command buffers, the queue family ownership registry,
// the device limits, the violation reporter and the trace recorder.
//
// Every API-shaped entry point lives on *Device. Each one follows the same
// shape: resolve handles, run the matching validator, and only when it
// accepts, mutate the ledgers. A rejected call returns a *report.RejectError,
// reports each violation, records a reject trace event, and leaves tracked
// state exactly as it was.
//
// Thread-safety: every method is safe for concurrent use. QueueSubmit and the
// other validate-then-commit calls are serialized by a device-wide submit
// lock so that no commit can slip between another call's check and commit.
package device
