package models

import (
	"slices"
	"time"
)

// sampleLimit caps the example series kept per outcome for the final report.
const sampleLimit = 5

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusDone        RunStatus = "done"
	RunStatusPartial     RunStatus = "partial"
	RunStatusAborted     RunStatus = "aborted"
	RunStatusInterrupted RunStatus = "interrupted"
)

// SeriesRef names a series in the run report.
type SeriesRef struct {
	ID    TargetSeriesID `json:"id"`
	Name  string         `json:"name"`
	Error string         `json:"error,omitempty"`
}

// RunSummary accumulates the outcome counts of a run. It is reported whatever way the run ends.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	Characters     []CharacterID `json:"characters"`
	DryRun         bool          `json:"dry_run"`
	Resumed        bool          `json:"resumed"`
	Status         RunStatus     `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	Seen           int           `json:"seen"`
	Filtered       int           `json:"filtered"`
	AlreadyPresent int           `json:"already_present"`
	Added          int           `json:"added"`
	Errors         int           `json:"errors"`
	Pages          int           `json:"pages"`
	QueriesUsed    int           `json:"queries_used"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	PresentSamples []SeriesRef   `json:"present_samples,omitempty"`
	AddedSamples   []SeriesRef   `json:"added_samples,omitempty"`
	ErrorSamples   []SeriesRef   `json:"error_samples,omitempty"`
}

// NewRunSummary starts a summary for a run.
func NewRunSummary(runID string, characters []CharacterID, dryRun bool, now time.Time) *RunSummary {
	return &RunSummary{
		RunID:      runID,
		Characters: slices.Clone(characters),
		DryRun:     dryRun,
		Status:     RunStatusRunning,
		StartedAt:  now.UTC(),
	}
}

// RecordSeen counts a candidate volume pulled from the reference stream.
func (s *RunSummary) RecordSeen() { s.Seen++ }

// RecordFiltered counts a volume rejected by the filter.
func (s *RunSummary) RecordFiltered() { s.Filtered++ }

// RecordPresent counts a volume the target already tracks.
func (s *RunSummary) RecordPresent(ref SeriesRef) {
	s.AlreadyPresent++
	s.PresentSamples = appendSample(s.PresentSamples, ref)
}

// RecordAdded counts a volume added (or, in a dry run, that would be added).
func (s *RunSummary) RecordAdded(ref SeriesRef) {
	s.Added++
	s.AddedSamples = appendSample(s.AddedSamples, ref)
}

// RecordError counts a per-item or per-page failure.
func (s *RunSummary) RecordError(ref SeriesRef, err error) {
	s.Errors++
	if err != nil {
		ref.Error = err.Error()
	}
	s.ErrorSamples = appendSample(s.ErrorSamples, ref)
}

// Finish stamps the terminal status.
func (s *RunSummary) Finish(status RunStatus, reason string, now time.Time) {
	s.Status = status
	s.Reason = reason
	s.FinishedAt = now.UTC()
}

// Partial reports whether the run stopped before exhausting the reference stream.
func (s *RunSummary) Partial() bool {
	return s.Status != RunStatusDone
}

// Duration returns the wall time of a finished run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func appendSample(samples []SeriesRef, ref SeriesRef) []SeriesRef {
	if len(samples) >= sampleLimit {
		return samples
	}
	return append(samples, ref)
}
