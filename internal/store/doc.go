// Package store provides the SQLite archive for chash audit trails.
//
// The archive is append-only and holds three kinds of rows:
//   - Runs: one row per `chash run`, keyed by a UUIDv7 run ID
//   - Entries: every audit log entry of a run, keyed by (run_id, seq)
//   - Snapshots: the final sorted records of a run
//
// The archive never feeds a new run: every run starts with an empty record
// store. It exists for inspection (trace) and offline reconstruction (replay).
//
// # Ordering
//
// Entries are always read ORDER BY seq ASC. Seq is assigned by the audit log
// while the emitting task holds the coordinator lock, so seq order is the
// order in which critical sections actually ran.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
