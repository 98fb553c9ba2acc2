package testutil

import (
	"time"

	"github.com/roach88/qsync/internal/config"
)

// TwoFamilyProfile is the device most tests run against: family 0 has two
// general queues, family 1 has one transfer queue. Queues are created
// first, so their handles are 1 and 2 (family 0) and 3 (family 1).
//
// The wait timeout is short enough that a broken hand-off fails the test
// instead of hanging it.
func TwoFamilyProfile(maxDiff uint64) config.Profile {
	return config.Profile{
		Name:            "test",
		MaxTimelineDiff: maxDiff,
		WaitTimeout:     2 * time.Second,
		QueueFamilies: []config.QueueFamily{
			{Index: 0, Count: 2, Flags: []string{"graphics", "compute", "transfer"}},
			{Index: 1, Count: 1, Flags: []string{"transfer"}},
		},
	}
}
