package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/cv2mylar/internal/models"
)

// Ledger records sync runs and the series they add.
type Ledger struct {
	runs   *RunRepository
	series *SeriesRepository
}

// NewLedger creates a ledger over db. Migrations must already be applied.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{runs: NewRunRepository(db), series: NewSeriesRepository(db)}
}

// Runs exposes the run repository for history queries.
func (l *Ledger) Runs() *RunRepository { return l.runs }

// Series exposes the tracked series repository.
func (l *Ledger) Series() *SeriesRepository { return l.series }

// StartRun inserts the run row.
func (l *Ledger) StartRun(ctx context.Context, summary *models.RunSummary) error {
	return l.runs.Create(ctx, models.NewSyncRun(*summary))
}

// RecordSeries stores one added (or would-add) series for runID.
func (l *Ledger) RecordSeries(ctx context.Context, runID string, ref models.SeriesRef, dryRun bool) error {
	return l.series.Create(ctx, models.NewTrackedSeries(runID, ref.ID, ref.Name, dryRun))
}

// FinishRun stores the final counters and status.
func (l *Ledger) FinishRun(ctx context.Context, summary *models.RunSummary) error {
	return l.runs.Update(ctx, models.NewSyncRun(*summary))
}
