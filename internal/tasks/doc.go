// Package tasks runs the sync pipeline between the reference catalog and the target catalog.
//
// # Pipeline
//
// [SyncEngine.Run] drives one run through these states:
//
//  1. Init : validate options and generate a run ID
//  2. Resuming : load the checkpoint and restore the evaluated set
//  3. Streaming : fetch the next page of candidate volumes
//  4. Filtering : apply the filter engine, fetching detail when a criterion needs it
//  5. Diffing : compare accepted volumes against the target's existing series
//  6. Acting : add missing series, or only record them on a dry run
//  7. Checkpointing : persist the cursor after a completed page
//
// The run ends in Done when the stream is exhausted, or early when the query budget runs out,
// the context is cancelled or a fatal error occurs. A budget stop mid-page saves the same cursor
// with the volumes evaluated so far; an interrupted page is not saved.
//
// # Progress Reporting
//
// Progress is sent as [ProgressUpdate] values on an optional channel. Sends use select with
// default so a slow reader never blocks the pipeline.
//
// # Ledger
//
// The optional [Ledger] records run history. Ledger errors are logged and otherwise ignored.
package tasks
