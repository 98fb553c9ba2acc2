package qfo

import (
	"fmt"

	"github.com/roach88/qsync/internal/report"
)

// Special queue family indices.
const (
	QueueFamilyIgnored  uint32 = ^uint32(0)
	QueueFamilyExternal uint32 = ^uint32(0) - 1
	QueueFamilyForeign  uint32 = ^uint32(0) - 2
)

// IsRealFamily reports whether f names an actual queue family of the device.
func IsRealFamily(f uint32) bool {
	return f != QueueFamilyIgnored && f != QueueFamilyExternal && f != QueueFamilyForeign
}

// ResourceKind distinguishes buffer from image barriers.
type ResourceKind int

const (
	ResourceBuffer ResourceKind = iota + 1
	ResourceImage
)

// String returns "buffer" or "image".
func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "buffer"
	case ResourceImage:
		return "image"
	default:
		return "unknown"
	}
}

// ParseResourceKind is the inverse of ResourceKind.String.
func ParseResourceKind(s string) (ResourceKind, bool) {
	switch s {
	case "buffer":
		return ResourceBuffer, true
	case "image":
		return ResourceImage, true
	default:
		return 0, false
	}
}

// Barrier is the ownership-transfer part of a memory barrier.
type Barrier struct {
	Kind      ResourceKind
	Handle    uint64
	SrcFamily uint32
	DstFamily uint32
}

// ObjectRef returns the report reference for the barrier's resource.
func (b Barrier) ObjectRef() report.ObjectRef {
	if b.Kind == ResourceImage {
		return report.ObjectRef{Type: report.ObjectImage, Handle: b.Handle}
	}
	return report.ObjectRef{Type: report.ObjectBuffer, Handle: b.Handle}
}

// String formats the barrier for messages.
func (b Barrier) String() string {
	return fmt.Sprintf("%s 0x%x %d->%d", b.Kind, b.Handle, b.SrcFamily, b.DstFamily)
}

type resourceKey struct {
	kind   ResourceKind
	handle uint64
}

func (b Barrier) key() resourceKey {
	return resourceKey{kind: b.Kind, handle: b.Handle}
}

// Role is how a barrier participates in an ownership transfer.
type Role int

const (
	RoleNone Role = iota
	RoleRelease
	RoleAcquire
)

// Classify decides whether b, recorded on a queue of family, is a release,
// an acquire, or not a tracked transfer. Transfers to or from external and
// foreign families are not tracked: the other half happens outside the device.
func Classify(family uint32, b Barrier) Role {
	if b.SrcFamily == b.DstFamily {
		return RoleNone
	}
	if !IsRealFamily(b.SrcFamily) || !IsRealFamily(b.DstFamily) {
		return RoleNone
	}
	switch family {
	case b.SrcFamily:
		return RoleRelease
	case b.DstFamily:
		return RoleAcquire
	default:
		return RoleNone
	}
}

// Transfers holds the release and acquire barriers recorded into one command
// buffer allocated for a given queue family.
type Transfers struct {
	family   uint32
	releases []Barrier
	acquires []Barrier
}

// NewTransfers creates an empty set for a command buffer of family.
func NewTransfers(family uint32) *Transfers {
	return &Transfers{family: family}
}

// Family returns the command buffer's queue family.
func (t *Transfers) Family() uint32 { return t.family }

// RecordBarrier classifies b and keeps it if it is a release or acquire.
// A barrier recorded twice in the same command buffer is returned as a usage
// violation and not kept again.
func (t *Transfers) RecordBarrier(b Barrier) (Role, *report.Violation) {
	role := Classify(t.family, b)
	switch role {
	case RoleRelease:
		if contains(t.releases, b) {
			return role, report.Usage(report.CodeQFODuplicateRelease, "vkCmdPipelineBarrier",
				report.Objects(b.ObjectRef()), "duplicate queue family ownership release %s in command buffer", b)
		}
		t.releases = append(t.releases, b)
	case RoleAcquire:
		if contains(t.acquires, b) {
			return role, report.Usage(report.CodeQFODuplicateAcquire, "vkCmdPipelineBarrier",
				report.Objects(b.ObjectRef()), "duplicate queue family ownership acquire %s in command buffer", b)
		}
		t.acquires = append(t.acquires, b)
	}
	return role, nil
}

// Releases returns the recorded releases.
func (t *Transfers) Releases() []Barrier {
	return append([]Barrier(nil), t.releases...)
}

// Acquires returns the recorded acquires.
func (t *Transfers) Acquires() []Barrier {
	return append([]Barrier(nil), t.acquires...)
}

// Clone returns an independent copy, taken when the command buffer is
// submitted so later re-recording does not change what the submission holds.
func (t *Transfers) Clone() *Transfers {
	return &Transfers{
		family:   t.family,
		releases: append([]Barrier(nil), t.releases...),
		acquires: append([]Barrier(nil), t.acquires...),
	}
}

// Reset clears the set, as when the command buffer is re-recorded.
func (t *Transfers) Reset() {
	t.releases = nil
	t.acquires = nil
}

func contains(bs []Barrier, b Barrier) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}
