package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qsync/internal/qfo"
	"github.com/roach88/qsync/internal/syncstate"
)

// Scenario is a scripted sequence of device calls with expected outcomes.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Profile is an optional CUE device profile, relative to the scenario
	// file.
	Profile string `yaml:"profile,omitempty"`

	// MaxTimelineDiff overrides the profile's
	// maxTimelineSemaphoreValueDifference.
	MaxTimelineDiff *uint64 `yaml:"max_timeline_diff,omitempty"`

	// BatchPrefix prefixes batch ids ("batch" when empty).
	BatchPrefix string `yaml:"batch_prefix,omitempty"`

	// Objects are created, in order, before the first step.
	Objects []Object `yaml:"objects"`

	// Steps run in order on one goroutine.
	Steps []Step `yaml:"steps"`

	// Assertions check the device after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir is the directory the scenario was loaded from.
	dir string
}

// Object type names.
const (
	ObjectBinarySemaphore   = "binary_semaphore"
	ObjectTimelineSemaphore = "timeline_semaphore"
	ObjectFence             = "fence"
	ObjectCommandBuffer     = "command_buffer"
)

// Object declares a named semaphore, fence or command buffer.
type Object struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Initial is the starting value of a timeline semaphore.
	Initial uint64 `yaml:"initial,omitempty"`

	// Signaled creates a fence in the signaled state.
	Signaled bool `yaml:"signaled,omitempty"`

	// Family is the queue family of a command buffer.
	Family uint32 `yaml:"family,omitempty"`
}

// Step operations.
const (
	OpSubmit             = "submit"
	OpBarrier            = "barrier"
	OpResetCommandBuffer = "reset_command_buffer"
	OpPresent            = "present"
	OpAcquire            = "acquire"
	OpHostSignal         = "host_signal"
	OpHostWait           = "host_wait"
	OpFenceWait          = "fence_wait"
	OpFenceReset         = "fence_reset"
	OpImport             = "import"
	OpExport             = "export"
	OpDestroy            = "destroy"
	OpDestroyResource    = "destroy_resource"
	OpQueueWaitIdle      = "queue_wait_idle"
	OpDeviceWaitIdle     = "device_wait_idle"
)

// Step is one device call. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// Family and Index select the queue for submit, present and
	// queue_wait_idle.
	Family uint32 `yaml:"family,omitempty"`
	Index  uint32 `yaml:"index,omitempty"`

	// Submits and Fence describe a submit.
	Submits []SubmitStep `yaml:"submits,omitempty"`
	Fence   string       `yaml:"fence,omitempty"`

	// Semaphore and Value describe host_signal and acquire.
	Semaphore string `yaml:"semaphore,omitempty"`
	Value     uint64 `yaml:"value,omitempty"`

	// Semaphores and Values describe host_wait.
	Semaphores []string `yaml:"semaphores,omitempty"`
	Values     []uint64 `yaml:"values,omitempty"`

	// Fences lists fence_wait and fence_reset targets.
	Fences []string `yaml:"fences,omitempty"`

	// WaitAll selects all-of semantics for waits. Defaults to true.
	WaitAll *bool `yaml:"wait_all,omitempty"`

	// CommandBuffer and Barrier describe barrier and reset_command_buffer.
	CommandBuffer string   `yaml:"command_buffer,omitempty"`
	Barrier       *Barrier `yaml:"barrier,omitempty"`

	// Object, HandleType and Temporary describe import, export and destroy.
	Object     string `yaml:"object,omitempty"`
	HandleType string `yaml:"handle_type,omitempty"`
	Temporary  bool   `yaml:"temporary,omitempty"`

	// Swapchain, Image and Waits describe present and acquire.
	Swapchain uint64   `yaml:"swapchain,omitempty"`
	Image     uint32   `yaml:"image,omitempty"`
	Waits     []string `yaml:"waits,omitempty"`

	// Resource and Handle describe destroy_resource.
	Resource string `yaml:"resource,omitempty"`
	Handle   uint64 `yaml:"handle,omitempty"`

	// Expect is the expected outcome. Nil expects acceptance (or a
	// satisfied wait).
	Expect *Expect `yaml:"expect,omitempty"`
}

// SubmitStep is one element of a submit batch.
type SubmitStep struct {
	Waits          []SemaphoreValue `yaml:"waits,omitempty"`
	CommandBuffers []string         `yaml:"command_buffers,omitempty"`
	Signals        []SemaphoreValue `yaml:"signals,omitempty"`
}

// SemaphoreValue names a semaphore and a timeline value.
type SemaphoreValue struct {
	Semaphore string `yaml:"semaphore"`
	Value     uint64 `yaml:"value,omitempty"`
}

// Barrier is the ownership-transfer part of a recorded barrier.
type Barrier struct {
	Resource string `yaml:"resource"`
	Handle   uint64 `yaml:"handle"`
	Src      uint32 `yaml:"src"`
	Dst      uint32 `yaml:"dst"`
}

// Step outcomes.
const (
	CaseAccepted    = "accepted"
	CaseRejected    = "rejected"
	CaseSatisfied   = "satisfied"
	CaseUnsatisfied = "unsatisfied"
)

// Expect is the expected outcome of a step.
type Expect struct {
	// Case is one of accepted, rejected, satisfied, unsatisfied.
	Case string `yaml:"case"`

	// Codes are the violation codes of a rejection, in order.
	Codes []string `yaml:"codes,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ProfilePath returns the scenario's profile file resolved against the
// scenario's directory, or "" when it names none.
func (s *Scenario) ProfilePath() string {
	if s.Profile == "" || filepath.IsAbs(s.Profile) || s.dir == "" {
		return s.Profile
	}
	return filepath.Join(s.dir, s.Profile)
}

// ParseScenario parses scenario YAML. A relative profile path resolves
// against the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and every name a
// step uses is declared.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	types := make(map[string]string, len(s.Objects))
	for i, o := range s.Objects {
		if o.Name == "" {
			return fmt.Errorf("objects[%d]: name is required", i)
		}
		if _, dup := types[o.Name]; dup {
			return fmt.Errorf("objects[%d]: duplicate name %q", i, o.Name)
		}
		switch o.Type {
		case ObjectBinarySemaphore, ObjectTimelineSemaphore, ObjectFence, ObjectCommandBuffer:
		default:
			return fmt.Errorf("objects[%d]: unknown type %q", i, o.Type)
		}
		types[o.Name] = o.Type
	}

	for i := range s.Steps {
		if err := validateStep(types, &s.Steps[i]); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(types, &s.Assertions[i]); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

// checker verifies that names refer to declared objects of an allowed type.
type checker map[string]string

func (c checker) ref(field, name string, allowed ...string) error {
	if name == "" {
		return fmt.Errorf("%s is required", field)
	}
	typ, ok := c[name]
	if !ok {
		return fmt.Errorf("%s: undeclared object %q", field, name)
	}
	for _, a := range allowed {
		if typ == a {
			return nil
		}
	}
	return fmt.Errorf("%s: %q is a %s, want %v", field, name, typ, allowed)
}

func (c checker) optional(field, name string, allowed ...string) error {
	if name == "" {
		return nil
	}
	return c.ref(field, name, allowed...)
}

func (c checker) semaphore(field, name string) error {
	return c.ref(field, name, ObjectBinarySemaphore, ObjectTimelineSemaphore)
}

func validateStep(types map[string]string, st *Step) error {
	c := checker(types)
	var err error
	switch st.Op {
	case OpSubmit:
		for i, sub := range st.Submits {
			for j, w := range sub.Waits {
				if err = c.semaphore(fmt.Sprintf("submits[%d].waits[%d]", i, j), w.Semaphore); err != nil {
					return err
				}
			}
			for j, cb := range sub.CommandBuffers {
				if err = c.ref(fmt.Sprintf("submits[%d].command_buffers[%d]", i, j), cb, ObjectCommandBuffer); err != nil {
					return err
				}
			}
			for j, sig := range sub.Signals {
				if err = c.semaphore(fmt.Sprintf("submits[%d].signals[%d]", i, j), sig.Semaphore); err != nil {
					return err
				}
			}
		}
		err = c.optional("fence", st.Fence, ObjectFence)
	case OpBarrier:
		if err = c.ref("command_buffer", st.CommandBuffer, ObjectCommandBuffer); err != nil {
			return err
		}
		if st.Barrier == nil {
			return fmt.Errorf("barrier is required")
		}
		if _, ok := qfo.ParseResourceKind(st.Barrier.Resource); !ok {
			return fmt.Errorf("barrier.resource: unknown resource %q", st.Barrier.Resource)
		}
	case OpResetCommandBuffer:
		err = c.ref("command_buffer", st.CommandBuffer, ObjectCommandBuffer)
	case OpPresent:
		for i, w := range st.Waits {
			if err = c.ref(fmt.Sprintf("waits[%d]", i), w, ObjectBinarySemaphore); err != nil {
				return err
			}
		}
	case OpAcquire:
		if err = c.optional("semaphore", st.Semaphore, ObjectBinarySemaphore, ObjectTimelineSemaphore); err != nil {
			return err
		}
		err = c.optional("fence", st.Fence, ObjectFence)
	case OpHostSignal:
		err = c.semaphore("semaphore", st.Semaphore)
	case OpHostWait:
		if len(st.Semaphores) == 0 || len(st.Semaphores) != len(st.Values) {
			return fmt.Errorf("host_wait needs matching semaphores and values")
		}
		for i, name := range st.Semaphores {
			if err = c.semaphore(fmt.Sprintf("semaphores[%d]", i), name); err != nil {
				return err
			}
		}
	case OpFenceWait, OpFenceReset:
		if len(st.Fences) == 0 {
			return fmt.Errorf("fences is required")
		}
		for i, name := range st.Fences {
			if err = c.ref(fmt.Sprintf("fences[%d]", i), name, ObjectFence); err != nil {
				return err
			}
		}
	case OpImport, OpExport:
		if err = c.ref("object", st.Object, ObjectBinarySemaphore, ObjectTimelineSemaphore, ObjectFence); err != nil {
			return err
		}
		if _, ok := syncstate.ParseHandleType(st.HandleType); !ok {
			return fmt.Errorf("handle_type: unknown handle type %q", st.HandleType)
		}
	case OpDestroy:
		err = c.ref("object", st.Object, ObjectBinarySemaphore, ObjectTimelineSemaphore, ObjectFence)
	case OpDestroyResource:
		if _, ok := qfo.ParseResourceKind(st.Resource); !ok {
			return fmt.Errorf("resource: unknown resource %q", st.Resource)
		}
	case OpQueueWaitIdle, OpDeviceWaitIdle:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	if err != nil {
		return err
	}

	if st.Expect != nil {
		switch st.Expect.Case {
		case CaseAccepted, CaseRejected, CaseSatisfied, CaseUnsatisfied:
		case "":
			return fmt.Errorf("expect: case is required")
		default:
			return fmt.Errorf("expect: unknown case %q", st.Expect.Case)
		}
		if len(st.Expect.Codes) > 0 && st.Expect.Case != CaseRejected {
			return fmt.Errorf("expect: codes only apply to case %q", CaseRejected)
		}
	}
	return nil
}
