// Package ledger records successful release batches in SQLite so the
// cumulative privacy usage of an analysis survives the process.
//
// The ledger is append-only:
//   - analyses: one row per analysis id with its privacy definition
//   - releases: one row per (analysis_id, batch), written once
//
// Rows are ordered by batch, the analysis's logical clock, never by wall
// time. Each row carries the graph fingerprint computed by
// protocol.Fingerprint, so a batch can be matched to the exact graph that
// produced it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package ledger
