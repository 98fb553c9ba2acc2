// Package report defines the structured violations produced by qsync and the
// reporters that surface them.
//
// Violations come in two severities:
//
//   - Usage: the application broke the synchronization contract (double
//     signal, wait without signal, non-monotonic timeline value, unmatched
//     ownership-transfer acquire). Usage violations are detected before any
//     state is mutated.
//   - Internal: qsync itself is stuck or inconsistent (a worker timed out, a
//     ledger invariant broke). Internal violations are reported and then the
//     core keeps making forward progress.
//
// Every violation carries a stable Code so callers and tests can match on it
// with HasCode rather than on message text.
package report
