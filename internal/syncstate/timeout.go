//go:build !qsyncdebug

package syncstate

import "time"

// DefaultWaitTimeout bounds host and worker waits. It is large enough that
// only a stuck worker model hits it.
const DefaultWaitTimeout = 10 * time.Second
