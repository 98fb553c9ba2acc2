package syncstate

// SemaphoreKind distinguishes binary from timeline semaphores.
type SemaphoreKind int

const (
	// KindBinary is a signaled/unsignaled semaphore consumed once per signal.
	KindBinary SemaphoreKind = iota + 1
	// KindTimeline is a semaphore with a monotonically increasing payload.
	KindTimeline
)

// String returns "binary" or "timeline".
func (k SemaphoreKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindTimeline:
		return "timeline"
	default:
		return "unknown"
	}
}

// Scope describes how much of a primitive's history qsync can observe.
type Scope int

const (
	// ScopeInternal means every signal and wait goes through qsync.
	ScopeInternal Scope = iota
	// ScopeExternalTemporary is a temporary import; it reverts to internal
	// once the imported payload is consumed (semaphore wait, fence reset).
	ScopeExternalTemporary
	// ScopeExternalPermanent means an external agent may affect the payload
	// for the rest of the primitive's life.
	ScopeExternalPermanent
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeInternal:
		return "internal"
	case ScopeExternalTemporary:
		return "external-temporary"
	case ScopeExternalPermanent:
		return "external-permanent"
	default:
		return "unknown"
	}
}

// ParseScope is the inverse of Scope.String.
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "internal", "":
		return ScopeInternal, true
	case "external-temporary":
		return ScopeExternalTemporary, true
	case "external-permanent":
		return ScopeExternalPermanent, true
	default:
		return ScopeInternal, false
	}
}

// importScope applies the import rule shared by semaphores and fences.
func importScope(current Scope, temporary bool) Scope {
	if current == ScopeExternalPermanent {
		return current
	}
	if temporary {
		if current == ScopeInternal {
			return ScopeExternalTemporary
		}
		return current
	}
	return ScopeExternalPermanent
}

// HandleType is an external handle type used for import and export.
type HandleType int

const (
	HandleTypeOpaqueFD HandleType = iota + 1
	HandleTypeOpaqueWin32
	HandleTypeSyncFD
	HandleTypeD3D12Fence
)

// HasCopyTransference reports whether exporting the handle copies the
// payload out (and consumes it) rather than sharing a reference.
func (h HandleType) HasCopyTransference() bool {
	return h == HandleTypeSyncFD
}

// String returns the handle type name.
func (h HandleType) String() string {
	switch h {
	case HandleTypeOpaqueFD:
		return "opaque-fd"
	case HandleTypeOpaqueWin32:
		return "opaque-win32"
	case HandleTypeSyncFD:
		return "sync-fd"
	case HandleTypeD3D12Fence:
		return "d3d12-fence"
	default:
		return "unknown"
	}
}

// ParseHandleType is the inverse of HandleType.String.
func ParseHandleType(s string) (HandleType, bool) {
	switch s {
	case "opaque-fd":
		return HandleTypeOpaqueFD, true
	case "opaque-win32":
		return HandleTypeOpaqueWin32, true
	case "sync-fd":
		return HandleTypeSyncFD, true
	case "d3d12-fence":
		return HandleTypeD3D12Fence, true
	default:
		return 0, false
	}
}

// OpKind identifies a semaphore operation.
type OpKind int

const (
	OpNone OpKind = iota
	OpWait
	OpSignal
	OpBinaryAcquire
)

// String returns the op name.
func (k OpKind) String() string {
	switch k {
	case OpNone:
		return "none"
	case OpWait:
		return "wait"
	case OpSignal:
		return "signal"
	case OpBinaryAcquire:
		return "acquire"
	default:
		return "unknown"
	}
}

// SubmissionRef is a non-owning reference to a queue submission.
// A nil Queue means the operation came from the host.
type SubmissionRef struct {
	Queue *Queue
	Seq   uint64
}

// IsHost reports whether the reference is a host operation.
func (r SubmissionRef) IsHost() bool {
	return r.Queue == nil
}

// HostRef is the reference used for host-side operations.
var HostRef = SubmissionRef{}

// SemOp is one signal, wait or acquire on a semaphore.
type SemOp struct {
	Kind    OpKind
	Payload uint64
	Submit  SubmissionRef

	// Source names the acquire command for OpBinaryAcquire.
	Source string
}

// IsWait reports whether the op is a wait.
func (o SemOp) IsWait() bool { return o.Kind == OpWait }

// IsSignal reports whether the op signals the semaphore (queue signal,
// host signal, or acquire).
func (o SemOp) IsSignal() bool { return o.Kind == OpSignal || o.Kind == OpBinaryAcquire }

// canSignalBinaryAfter reports whether a binary semaphore may be signaled
// after op completed.
func canSignalBinaryAfter(k OpKind) bool {
	return k == OpNone || k == OpWait
}

// canWaitBinaryAfter reports whether a binary semaphore may be waited after
// op completed.
func canWaitBinaryAfter(k OpKind) bool {
	return k == OpSignal || k == OpBinaryAcquire
}
