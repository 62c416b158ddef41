package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

const runColumns = `id, sequence, characters, dry_run, resumed, status, reason, seen, filtered, already_present,
	added, errors, pages, queries_used, started_at, finished_at, created_at, updated_at`

// RunRepository stores [models.SyncRun] rows in sync_runs.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run with a generated sequence.
func (r *RunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.SetSequence(sequence)

	s := run.Summary()
	query := `
		INSERT INTO sync_runs (id, sequence, characters, dry_run, resumed, status, reason, seen, filtered,
			already_present, added, errors, pages, queries_used, started_at, finished_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID(),
		sequence,
		joinCharacters(s.Characters),
		s.DryRun,
		s.Resumed,
		string(s.Status),
		s.Reason,
		s.Seen,
		s.Filtered,
		s.AlreadyPresent,
		s.Added,
		s.Errors,
		s.Pages,
		s.QueriesUsed,
		s.StartedAt,
		nullTime(s.FinishedAt),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	return nil
}

// Update writes the counters and terminal status of an existing run.
func (r *RunRepository) Update(ctx context.Context, run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	s := run.Summary()
	query := `
		UPDATE sync_runs
		SET resumed = ?, status = ?, reason = ?, seen = ?, filtered = ?, already_present = ?, added = ?,
			errors = ?, pages = ?, queries_used = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		s.Resumed,
		string(s.Status),
		s.Reason,
		s.Seen,
		s.Filtered,
		s.AlreadyPresent,
		s.Added,
		s.Errors,
		s.Pages,
		s.QueriesUsed,
		nullTime(s.FinishedAt),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: sync run %s", shared.ErrNotFound, run.ID())
	}

	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// List returns the most recent runs first. A limit of zero or less returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

func scanRun(row scanner) (*models.SyncRun, error) {
	var (
		s          models.RunSummary
		sequence   int
		characters string
		status     string
		finishedAt sql.NullTime
		createdAt  time.Time
		updatedAt  time.Time
	)

	err := row.Scan(&s.RunID, &sequence, &characters, &s.DryRun, &s.Resumed, &status, &s.Reason,
		&s.Seen, &s.Filtered, &s.AlreadyPresent, &s.Added, &s.Errors, &s.Pages, &s.QueriesUsed,
		&s.StartedAt, &finishedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	s.Characters = splitCharacters(characters)
	s.Status = models.RunStatus(status)
	if finishedAt.Valid {
		s.FinishedAt = finishedAt.Time
	}

	return models.RestoreSyncRun(sequence, s, createdAt, updatedAt), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
