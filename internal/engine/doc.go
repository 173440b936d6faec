// Package engine implements the pipeline orchestration core.
//
// The engine drives articles through the fixed linear state chain. One
// Tick claims at most one eligible article, runs the stage handler
// registered for its current state, and interprets the outcome:
//
//  1. Success: merge the handler's field updates, advance to the next
//     state, reset retry bookkeeping, append a state_changed event -
//     all in one store transaction.
//  2. Failure: bump retry_count and record the error, leaving the state
//     unchanged for a later tick; after max retries, move the article
//     to the failed state.
//
// Handler errors never escape the engine - a panicking handler is
// converted into an ordinary failure outcome. The two errors that DO
// propagate are configuration errors (no handler registered for a
// runnable state - a deployment bug, fatal) and store errors (the
// system as a whole cannot make progress).
//
// CONCURRENCY:
//
// Correctness rests entirely on the store's atomic per-article claim,
// not on there being a single scheduler. Any number of concurrent
// Tick callers - goroutines or separate processes sharing the database
// - are safe: the claim guarantees at most one handler execution per
// article at a time, and state transitions for one article are totally
// ordered. There is no ordering guarantee across articles.
//
// RecoverStuck retrospectively detects stalled work via the updated_at
// watermark. A stale article is fed through the same failure
// bookkeeping as a handler failure, so the retry policy cannot tell a
// timeout from an ordinary error. The sweep is idempotent: recovering
// an article refreshes its watermark, so an immediate second sweep
// finds nothing.
package engine
