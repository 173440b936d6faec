// Package store provides SQLite-backed durable storage for the content
// pipeline: article records, topic records, and an append-only event
// log.
//
// The store exclusively owns persisted state. The engine holds no
// long-lived in-memory copy of an article beyond one tick's processing,
// and any caching elsewhere is a read-through convenience, never the
// system of record.
//
// # Concurrency model
//
// Correctness of the whole system rests on two store guarantees:
//
//   - ClaimNext is atomic: a single UPDATE-with-subselect marks the
//     oldest eligible unclaimed article as claimed, so two concurrent
//     schedulers can never both select the same article.
//   - All mutating operations on a single article are serialized by
//     SQLite's single-writer discipline, while operations on different
//     articles never block each other logically.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// All timestamps are stored in UTC so SQLite's lexicographic DATETIME
// comparisons are well ordered.
package store
