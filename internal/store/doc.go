// Package store provides SQLite-backed durable storage for qsync traces.
//
// A database holds any number of runs. Each run owns an ordered event log
// (trace.Event rows keyed by the run's logical seq) and the violations
// reported while it ran. A Run value implements both trace.Sink and
// report.Reporter, so a device can write straight into it.
//
// # Ordering
//
// All ordering uses the logical seq column, never timestamps. Event queries
// ORDER BY seq ASC; violation queries ORDER BY id ASC (insertion order).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Handles are uint64 on the wire and stored bit-for-bit in INTEGER columns.
package store
