package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Severity classifies a violation.
type Severity int

const (
	// SeverityUsage marks an application error against the sync contract.
	SeverityUsage Severity = iota + 1
	// SeverityInternal marks a defect or stall inside qsync itself.
	SeverityInternal
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityUsage:
		return "usage"
	case SeverityInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Object type names used in ObjectRef.
const (
	ObjectSemaphore     = "VkSemaphore"
	ObjectFence         = "VkFence"
	ObjectQueue         = "VkQueue"
	ObjectCommandBuffer = "VkCommandBuffer"
	ObjectBuffer        = "VkBuffer"
	ObjectImage         = "VkImage"
	ObjectSwapchain     = "VkSwapchainKHR"
)

// ObjectRef names an object involved in a violation.
type ObjectRef struct {
	Type   string
	Handle uint64
}

// String formats the reference as "VkSemaphore 0x2A".
func (o ObjectRef) String() string {
	return o.Type + " 0x" + strings.ToUpper(strconv.FormatUint(o.Handle, 16))
}

// Violation is a single structured rejection or internal-consistency report.
type Violation struct {
	// Code is the stable identifier.
	Code Code

	// Severity separates usage errors from internal failures.
	Severity Severity

	// Message is a human-readable description.
	Message string

	// Objects lists the offending handles, most relevant first.
	Objects []ObjectRef

	// Location names the API entry point and parameter, e.g.
	// "vkQueueSubmit.pSubmits[0].pWaitSemaphores[1]".
	Location string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	var b strings.Builder
	b.WriteString(string(v.Code))
	b.WriteString(": ")
	if v.Location != "" {
		b.WriteString(v.Location)
		b.WriteString(": ")
	}
	b.WriteString(v.Message)
	if len(v.Objects) > 0 {
		b.WriteString(" [")
		for i, o := range v.Objects {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.String())
		}
		b.WriteString("]")
	}
	return b.String()
}

// Usage creates a usage violation.
func Usage(code Code, loc string, objs []ObjectRef, format string, args ...any) *Violation {
	return &Violation{
		Code:     code,
		Severity: SeverityUsage,
		Message:  fmt.Sprintf(format, args...),
		Objects:  objs,
		Location: loc,
	}
}

// Internal creates an internal-consistency violation.
func Internal(code Code, loc string, objs []ObjectRef, format string, args ...any) *Violation {
	return &Violation{
		Code:     code,
		Severity: SeverityInternal,
		Message:  fmt.Sprintf(format, args...),
		Objects:  objs,
		Location: loc,
	}
}

// Objects is shorthand for building an ObjectRef slice.
func Objects(refs ...ObjectRef) []ObjectRef {
	return refs
}

// Semaphore returns an ObjectRef for a semaphore handle.
func Semaphore(h uint64) ObjectRef { return ObjectRef{Type: ObjectSemaphore, Handle: h} }

// Fence returns an ObjectRef for a fence handle.
func Fence(h uint64) ObjectRef { return ObjectRef{Type: ObjectFence, Handle: h} }

// Queue returns an ObjectRef for a queue handle.
func Queue(h uint64) ObjectRef { return ObjectRef{Type: ObjectQueue, Handle: h} }

// RejectError aggregates every usage violation found while validating one
// API call. The call had no effect on tracked state.
type RejectError struct {
	// Call is the API entry point that was rejected.
	Call string

	// Violations holds each violation in detection order.
	Violations []*Violation
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s rejected: %v", e.Call, e.Violations[0])
	}
	return fmt.Sprintf("%s rejected with %d violations: %v (first)", e.Call, len(e.Violations), e.Violations[0])
}

// Unwrap exposes the individual violations to errors.As and errors.Is.
func (e *RejectError) Unwrap() []error {
	errs := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		errs[i] = v
	}
	return errs
}

// NewRejectError returns nil when vs is empty.
func NewRejectError(call string, vs []*Violation) error {
	if len(vs) == 0 {
		return nil
	}
	return &RejectError{Call: call, Violations: vs}
}

// Codes returns the codes of every violation carried by err.
// Uses errors.As so wrapped errors are handled.
func Codes(err error) []Code {
	var rej *RejectError
	if errors.As(err, &rej) {
		codes := make([]Code, len(rej.Violations))
		for i, v := range rej.Violations {
			codes[i] = v.Code
		}
		return codes
	}
	var v *Violation
	if errors.As(err, &v) {
		return []Code{v.Code}
	}
	return nil
}

// HasCode returns true if err carries a violation with the given code.
func HasCode(err error, code Code) bool {
	for _, c := range Codes(err) {
		if c == code {
			return true
		}
	}
	return false
}

// IsInternal returns true if err carries an internal-consistency violation.
func IsInternal(err error) bool {
	var v *Violation
	if errors.As(err, &v) {
		return v.Severity == SeverityInternal
	}
	return false
}
