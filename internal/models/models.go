// package models defines the data model for the ComicVine to Mylar sync
package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for all persistent models in the run ledger.
// Implementations are [SyncRun] and [TrackedSeries].
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// SyncRun is the persisted record of one sync run.
type SyncRun struct {
	id        string
	sequence  int
	summary   RunSummary
	createdAt time.Time
	updatedAt time.Time
}

// NewSyncRun wraps a run summary for persistence.
func NewSyncRun(summary RunSummary) *SyncRun {
	now := time.Now()
	return &SyncRun{id: summary.RunID, summary: summary, createdAt: now, updatedAt: now}
}

// RestoreSyncRun rebuilds a SyncRun from stored columns.
func RestoreSyncRun(sequence int, summary RunSummary, createdAt, updatedAt time.Time) *SyncRun {
	return &SyncRun{id: summary.RunID, sequence: sequence, summary: summary, createdAt: createdAt, updatedAt: updatedAt}
}

func (r *SyncRun) ID() string { return r.id }
func (r *SyncRun) Sequence() int { return r.sequence }
func (r *SyncRun) Summary() RunSummary { return r.summary }
func (r *SyncRun) CreatedAt() time.Time { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time { return r.updatedAt }
func (r *SyncRun) SetSequence(seq int) { r.sequence = seq }
func (r *SyncRun) SetUpdatedAt(t time.Time) { r.updatedAt = t }

// SetSummary replaces the counters of the run, keeping its identity.
func (r *SyncRun) SetSummary(s RunSummary) {
	s.RunID = r.id
	r.summary = s
}

// Validate checks the run has an identifier and a status.
func (r *SyncRun) Validate() error {
	if r.id == "" {
		return fmt.Errorf("sync run id is required")
	}
	if r.summary.Status == "" {
		return fmt.Errorf("sync run status is required")
	}
	return nil
}

// TrackedSeries records a series this tool added (or would have added in a dry run) to the target.
type TrackedSeries struct {
	id        string
	sequence  int
	runID     string
	seriesID  TargetSeriesID
	name      string
	dryRun    bool
	createdAt time.Time
	updatedAt time.Time
}

// NewTrackedSeries creates a ledger entry for an added series.
func NewTrackedSeries(runID string, seriesID TargetSeriesID, name string, dryRun bool) *TrackedSeries {
	now := time.Now()
	return &TrackedSeries{
		runID:     runID,
		seriesID:  seriesID,
		name:      name,
		dryRun:    dryRun,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreTrackedSeries rebuilds a TrackedSeries from stored columns.
func RestoreTrackedSeries(id string, sequence int, runID string, seriesID TargetSeriesID, name string, dryRun bool, createdAt, updatedAt time.Time) *TrackedSeries {
	return &TrackedSeries{
		id:        id,
		sequence:  sequence,
		runID:     runID,
		seriesID:  seriesID,
		name:      name,
		dryRun:    dryRun,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (t *TrackedSeries) ID() string { return t.id }
func (t *TrackedSeries) Sequence() int { return t.sequence }
func (t *TrackedSeries) RunID() string { return t.runID }
func (t *TrackedSeries) SeriesID() TargetSeriesID { return t.seriesID }
func (t *TrackedSeries) Name() string { return t.name }
func (t *TrackedSeries) DryRun() bool { return t.dryRun }
func (t *TrackedSeries) CreatedAt() time.Time { return t.createdAt }
func (t *TrackedSeries) UpdatedAt() time.Time { return t.updatedAt }
func (t *TrackedSeries) SetID(id string) { t.id = id }
func (t *TrackedSeries) SetSequence(seq int) { t.sequence = seq }

// Validate checks the entry references a run and a well-formed series id.
func (t *TrackedSeries) Validate() error {
	if t.runID == "" {
		return fmt.Errorf("run id is required")
	}
	if _, err := t.seriesID.VolumeID(); err != nil {
		return err
	}
	return nil
}
