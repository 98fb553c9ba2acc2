//go:build qsyncdebug

package syncstate

import "time"

// DefaultWaitTimeout is unbounded in debug builds so a stuck worker can be
// inspected with a debugger.
const DefaultWaitTimeout time.Duration = 0
