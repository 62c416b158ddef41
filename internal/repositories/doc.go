// Package repositories implements SQLite persistence for the run ledger.
//
// Key Implementations:
//   - [RunRepository] : one row per sync run with its counters and terminal status
//   - [SeriesRepository] : series added (or planned by a dry run) per run
//   - [Ledger] : adapter the sync engine writes through
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of IDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
