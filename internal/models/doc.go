// Package models defines domain entities and persistence types for the ComicVine to Mylar sync.
//
// The package contains three categories of types:
//
// 1. Catalog values: immutable data flowing through the pipeline
//   - [CharacterID] : ComicVine character identifier supplied by configuration
//   - [Volume] : Candidate series from ComicVine
//   - [TargetSeriesID] : Mylar series identifier ("4050-<volume id>")
//   - [ExistingSet] : Snapshot of the series Mylar tracks at run start
//
// 2. Run state: values owned by the orchestrator and the checkpoint store
//   - [FilterConfig] : Acceptance criteria, fixed for the run
//   - [Checkpoint] : Resume snapshot, replaced wholesale after each page
//   - [RunSummary] : Outcome counters emitted at run end
//
// 3. Persistent Entities: rows of the SQLite run ledger
//   - [SyncRun] : One row per run with its final counters
//   - [TrackedSeries] : Series added (or would-add) by a run
//
// Persistent entities implement the Model interface.
package models
