// Package store provides SQLite-backed durable storage for recorded runs.
//
// The store implements an append-only log with:
//   - Runs: rule tree digest, player count, seed and initial state snapshot
//   - Steps: one state-machine operation with its canonical input, the
//     resulting state snapshot, and its state and trace digests
//   - Trace entries: the trigger log of each step, in execution order
//
// # Ordering
//
// All ordering uses the step seq (a logical clock), never timestamps, so a
// replay reads steps in exactly the order they were recorded. Steps of a run
// are append-only: AppendStep rejects a seq that is not after the last one.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// # Migrations
//
// PRAGMA user_version records the schema version. Open applies each newer
// migration in its own transaction; migrations are no-ops on databases
// created from the current schema.
//
// Digests are computed by the ir package over canonical JSON with domain
// separation; the store only keeps them.
package store
