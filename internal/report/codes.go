package report

// Code is a stable identifier for a violation.
type Code string

// Binary semaphore submit checks.
const (
	CodeBinaryWaitNoSignal      Code = "VUID-vkQueueSubmit-pWaitSemaphores-03238"
	CodeBinaryWaitOtherQueue    Code = "VUID-vkQueueSubmit-pWaitSemaphores-00068"
	CodeBinarySignalTimelineDep Code = "UNASSIGNED-vkQueueSubmit-binary-signal-unresolved-timeline-wait"
	CodeBinaryDoubleSignal      Code = "VUID-vkQueueSubmit-pSignalSemaphores-00067"
)

// Timeline semaphore submit checks.
const (
	CodeTimelineSignalNotIncreasing Code = "VUID-VkTimelineSemaphoreSubmitInfo-pSignalSemaphoreValues-03242"
	CodeTimelineWaitMaxDiff         Code = "VUID-VkTimelineSemaphoreSubmitInfo-pWaitSemaphoreValues-03243"
	CodeTimelineSignalMaxDiff       Code = "VUID-VkTimelineSemaphoreSubmitInfo-pSignalSemaphoreValues-03244"
)

// Host-side semaphore operations.
const (
	CodeHostSignalNotIncreasing Code = "VUID-VkSemaphoreSignalInfo-value-03258"
	CodeHostSignalAbovePending  Code = "VUID-VkSemaphoreSignalInfo-value-03259"
	CodeHostSignalMaxDiff       Code = "VUID-VkSemaphoreSignalInfo-value-03260"
	CodeHostWaitMaxDiff         Code = "VUID-VkSemaphoreWaitInfo-pValues-03243"
	CodeSemaphoreNotTimeline    Code = "VUID-VkSemaphoreSignalInfo-semaphore-03257"
)

// Fence checks.
const (
	CodeFenceNotUnsignaled Code = "VUID-vkQueueSubmit-fence-00064"
	CodeFenceInUse         Code = "VUID-vkQueueSubmit-fence-00063"
	CodeFenceResetInflight Code = "VUID-vkResetFences-pFences-01123"
)

// Swapchain image acquire.
const (
	CodeAcquireSemaphoreSignaled Code = "VUID-vkAcquireNextImageKHR-semaphore-01286"
	CodeAcquireFenceNotReady     Code = "VUID-vkAcquireNextImageKHR-fence-01287"
)

// Object lifetime.
const (
	CodeSemaphoreDestroyInUse Code = "VUID-vkDestroySemaphore-semaphore-01137"
	CodeFenceDestroyInUse     Code = "VUID-vkDestroyFence-fence-01120"
	CodeUnknownHandle         Code = "UNASSIGNED-unknown-handle"
)

// Queue family ownership transfers.
const (
	CodeQFODuplicateRelease Code = "UNASSIGNED-qfo-duplicate-release"
	CodeQFODuplicateAcquire Code = "UNASSIGNED-qfo-duplicate-acquire"
	CodeQFOReleasePending   Code = "UNASSIGNED-qfo-release-pending"
	CodeQFOAcquireNoRelease Code = "UNASSIGNED-qfo-acquire-without-release"
)

// Internal consistency.
const (
	CodeQueueTimeout     Code = "UNASSIGNED-VkQueue-state-timeout"
	CodeFenceTimeout     Code = "UNASSIGNED-VkFence-state-timeout"
	CodeSemaphoreTimeout Code = "UNASSIGNED-VkSemaphore-state-timeout"
	CodeInvariant        Code = "UNASSIGNED-internal-invariant"
)
