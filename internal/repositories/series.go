package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

// SeriesRepository stores [models.TrackedSeries] rows in tracked_series.
type SeriesRepository struct {
	db *sql.DB
}

// NewSeriesRepository creates a new SeriesRepository with the given database connection
func NewSeriesRepository(db *sql.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

// Create inserts a series entry with a generated ID and sequence.
func (r *SeriesRepository) Create(ctx context.Context, series *models.TrackedSeries) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "tracked_series")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	series.SetID(id)
	series.SetSequence(sequence)

	query := `
		INSERT INTO tracked_series (id, sequence, run_id, series_id, name, dry_run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		series.RunID(),
		string(series.SeriesID()),
		series.Name(),
		series.DryRun(),
		series.CreatedAt(),
		series.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracked series: %w", err)
	}

	return nil
}

// ListByRun returns the series recorded by a run in insertion order.
func (r *SeriesRepository) ListByRun(ctx context.Context, runID string) ([]*models.TrackedSeries, error) {
	query := `
		SELECT id, sequence, run_id, series_id, name, dry_run, created_at, updated_at
		FROM tracked_series
		WHERE run_id = ?
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked series: %w", err)
	}
	defer rows.Close()

	var out []*models.TrackedSeries
	for rows.Next() {
		var (
			id        string
			sequence  int
			run       string
			seriesID  string
			name      string
			dryRun    bool
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &sequence, &run, &seriesID, &name, &dryRun, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked series: %w", err)
		}
		out = append(out, models.RestoreTrackedSeries(id, sequence, run, models.TargetSeriesID(seriesID), name, dryRun, createdAt, updatedAt))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}
