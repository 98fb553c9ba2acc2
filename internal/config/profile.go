package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/qsync/internal/syncstate"
)

//go:embed profile.cue
var profileSchema string

// QueueFamily describes one queue family of the simulated device.
type QueueFamily struct {
	Index uint32   `json:"index"`
	Count uint32   `json:"count"`
	Flags []string `json:"flags"`
}

// QueueFlags converts the flag names to syncstate flags.
func (f QueueFamily) QueueFlags() syncstate.QueueFlags {
	var out syncstate.QueueFlags
	for _, name := range f.Flags {
		out |= queueFlagNames[name]
	}
	return out
}

var queueFlagNames = map[string]syncstate.QueueFlags{
	"graphics":       syncstate.QueueGraphics,
	"compute":        syncstate.QueueCompute,
	"transfer":       syncstate.QueueTransfer,
	"sparse_binding": syncstate.QueueSparseBinding,
	"protected":      syncstate.QueueProtected,
	"video_decode":   syncstate.QueueVideoDecode,
	"video_encode":   syncstate.QueueVideoEncode,
}

// Profile is a resolved device profile.
type Profile struct {
	Name            string        `json:"name"`
	MaxTimelineDiff uint64        `json:"maxTimelineSemaphoreValueDifference"`
	WaitTimeout     time.Duration `json:"-"`
	QueueFamilies   []QueueFamily `json:"queueFamilies"`
}

// rawProfile mirrors #Profile for decoding.
type rawProfile struct {
	Name            string        `json:"name"`
	MaxTimelineDiff uint64        `json:"maxTimelineSemaphoreValueDifference"`
	WaitTimeout     string        `json:"waitTimeout"`
	QueueFamilies   []QueueFamily `json:"queueFamilies"`
}

// ProfileError reports an invalid profile, with its CUE position when known.
type ProfileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ProfileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DefaultProfile returns the profile with every field at its default.
func DefaultProfile() Profile {
	p, err := ParseProfile("default.cue", nil)
	if err != nil {
		// The embedded schema is fixed at build time.
		panic(fmt.Sprintf("config: default profile: %v", err))
	}
	return p
}

// LoadProfile reads and resolves the CUE profile at path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(path, data)
}

// ParseProfile unifies src with #Profile and decodes the result. filename is
// used in error positions.
func ParseProfile(filename string, src []byte) (Profile, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(profileSchema, cue.Filename("profile.cue"))
	if err := schema.Err(); err != nil {
		return Profile{}, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Profile"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Profile{}, formatCUEError(err)
	}

	v := def.Unify(user)
	if err := v.Validate(); err != nil {
		return Profile{}, formatCUEError(err)
	}

	var raw rawProfile
	if err := v.Decode(&raw); err != nil {
		return Profile{}, formatCUEError(err)
	}
	return raw.resolve(v)
}

func (raw rawProfile) resolve(v cue.Value) (Profile, error) {
	timeout, err := time.ParseDuration(raw.WaitTimeout)
	if err != nil {
		return Profile{}, &ProfileError{
			Field:   "waitTimeout",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("waitTimeout")).Pos(),
		}
	}
	if len(raw.QueueFamilies) == 0 {
		return Profile{}, &ProfileError{
			Field:   "queueFamilies",
			Message: "at least one queue family is required",
			Pos:     v.LookupPath(cue.ParsePath("queueFamilies")).Pos(),
		}
	}
	seen := make(map[uint32]bool)
	for _, f := range raw.QueueFamilies {
		if seen[f.Index] {
			return Profile{}, &ProfileError{
				Field:   "queueFamilies",
				Message: fmt.Sprintf("duplicate queue family index %d", f.Index),
				Pos:     v.LookupPath(cue.ParsePath("queueFamilies")).Pos(),
			}
		}
		seen[f.Index] = true
	}

	return Profile{
		Name:            raw.Name,
		MaxTimelineDiff: raw.MaxTimelineDiff,
		WaitTimeout:     timeout,
		QueueFamilies:   raw.QueueFamilies,
	}, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &ProfileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
