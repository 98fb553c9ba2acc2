package syncstate

import (
	"github.com/roach88/qsync/internal/completion"
	"github.com/roach88/qsync/internal/qfo"
)

// SemaphoreInfo pairs a semaphore with the payload a submission waits on or
// signals. For binary semaphores the payload is filled in when the submission
// is enqueued.
type SemaphoreInfo struct {
	Semaphore *Semaphore
	Payload   uint64
}

// CommandBuffer is a recorded command buffer referenced by a submission.
type CommandBuffer struct {
	Handle uint64

	// Transfers holds the queue family ownership barriers recorded into
	// the command buffer.
	Transfers *qfo.Transfers
}

// SwapchainImage links a submission to a presentable image.
type SwapchainImage struct {
	Swapchain uint64
	Index     uint32
}

// Submission is one accepted batch on a queue.
type Submission struct {
	// BatchID correlates the submission with trace records.
	BatchID string

	// Seq is assigned by the queue when the submission is enqueued.
	Seq uint64

	CommandBuffers []CommandBuffer
	Waits          []SemaphoreInfo
	Signals        []SemaphoreInfo
	Fence          *Fence
	Image          *SwapchainImage

	// IsLast marks the final submission of one API call.
	IsLast bool

	done *completion.Handle
}

// Done returns the completion handle fulfilled when the submission retires.
// Nil until the submission has been enqueued.
func (s *Submission) Done() *completion.Handle {
	return s.done
}

// Releases returns every QFO release barrier recorded by the submission's
// command buffers, in submission order.
func (s *Submission) Releases() []qfo.Barrier {
	var out []qfo.Barrier
	for _, cb := range s.CommandBuffers {
		if cb.Transfers != nil {
			out = append(out, cb.Transfers.Releases()...)
		}
	}
	return out
}

// Acquires returns every QFO acquire barrier recorded by the submission's
// command buffers, in submission order.
func (s *Submission) Acquires() []qfo.Barrier {
	var out []qfo.Barrier
	for _, cb := range s.CommandBuffers {
		if cb.Transfers != nil {
			out = append(out, cb.Transfers.Acquires()...)
		}
	}
	return out
}
