// Package validate implements the checks that run before any submission or
// host-side operation is allowed to mutate tracked state.
//
// A SubmissionValidator is created per vkQueueSubmit-style call. It builds a
// transient view of what the batch would do (binary semaphores signaled or
// unsignaled so far, timeline values waited or signaled so far, queue family
// ownership releases produced so far) and checks each entry against both that
// view and the committed ledgers. Nothing is mutated here; the caller commits
// only when Validate returns nil.
//
// Host-side validators (ValidateSignal, ValidateWaitValues,
// ValidateResetFence, ValidateDestroy) are stateless functions.
package validate
