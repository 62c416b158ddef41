package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cv2mylar/internal/filtering"
	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/services"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

// CheckpointStore persists pipeline progress between runs.
type CheckpointStore interface {
	Load() (models.Checkpoint, error)
	Save(cp models.Checkpoint) error
	Clear() error
}

// Budget reports reference query usage for the run.
type Budget interface {
	Remaining() int
	Used() int
	Max() int
}

// Ledger records run history. Ledger failures are logged and never change the run outcome.
type Ledger interface {
	StartRun(ctx context.Context, summary *models.RunSummary) error
	RecordSeries(ctx context.Context, runID string, ref models.SeriesRef, dryRun bool) error
	FinishRun(ctx context.Context, summary *models.RunSummary) error
}

// SyncOptions configures a single run.
type SyncOptions struct {
	RunID          string               // generated when empty
	Characters     []models.CharacterID // ordered reference characters to stream
	DryRun         bool                 // record intended adds without calling the target
	ConflictPolicy string               // shared.ConflictSuccess or shared.ConflictError
}

// SyncEngine runs the read, filter, diff, act pipeline.
type SyncEngine struct {
	reference services.ReferenceCatalog
	target    services.TargetCatalog
	filter    *filtering.Engine
	store     CheckpointStore
	budget    Budget
	ledger    Ledger
	logger    *log.Logger
	now       func() time.Time
}

// EngineOption configures a [SyncEngine].
type EngineOption func(*SyncEngine)

// WithLedger records runs and added series in ledger.
func WithLedger(ledger Ledger) EngineOption {
	return func(e *SyncEngine) { e.ledger = ledger }
}

// WithLogger sets the logger for per-volume decisions.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *SyncEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *SyncEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewSyncEngine creates a SyncEngine. The budget must be the one the reference catalog consumes.
func NewSyncEngine(reference services.ReferenceCatalog, target services.TargetCatalog, filter *filtering.Engine, store CheckpointStore, budget Budget, opts ...EngineOption) *SyncEngine {
	e := &SyncEngine{
		reference: reference,
		target:    target,
		filter:    filter,
		store:     store,
		budget:    budget,
		logger:    shared.NewLogger(io.Discard),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// stop is why the pipeline left the streaming loop early.
type stop int

const (
	keepGoing stop = iota
	stopExhausted
	stopBudget
	stopInterrupted
	stopAborted
)

// run holds the mutable state of one Run call.
type run struct {
	opts     SyncOptions
	summary  *models.RunSummary
	cp       models.Checkpoint
	existing models.ExistingSet
	// handled covers every volume decided or failed in this process, including volumes
	// restored from the checkpoint.
	handled   map[int64]struct{}
	attempted map[models.TargetSeriesID]struct{}
	progress  chan<- ProgressUpdate
	pages     int
	err       error
}

// Run executes a sync and returns its summary.
//
// The summary is always returned, also when the run stops early. The error is nil for completed
// and budget-limited runs, the context error for interrupted runs and the fatal error for aborted ones.
func (e *SyncEngine) Run(ctx context.Context, opts SyncOptions, progress chan<- ProgressUpdate) (*models.RunSummary, error) {
	if len(opts.Characters) == 0 {
		return nil, fmt.Errorf("%w: no character ids", shared.ErrInvalidInput)
	}
	if opts.RunID == "" {
		opts.RunID = shared.GenerateID()
	}
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = shared.ConflictSuccess
	}

	r := &run{
		opts:      opts,
		summary:   models.NewRunSummary(opts.RunID, opts.Characters, opts.DryRun, e.now()),
		handled:   make(map[int64]struct{}),
		attempted: make(map[models.TargetSeriesID]struct{}),
		progress:  progress,
	}
	logger := e.logger.With("run", opts.RunID)

	e.sendProgress(progress, initUpdate(opts.Characters, opts.DryRun))
	logger.Info("sync started", "characters", opts.Characters, "dry_run", opts.DryRun, "budget", e.budget.Max())

	reason := e.runPipeline(ctx, logger, r)
	return e.finish(ctx, logger, r, reason)
}

func (e *SyncEngine) runPipeline(ctx context.Context, logger *log.Logger, r *run) stop {
	if reason := e.resume(logger, r); reason != keepGoing {
		return reason
	}
	e.recordLedger(ctx, logger, "start run", func(l Ledger) error { return l.StartRun(ctx, r.summary) })

	existing, err := e.target.ExistingSeries(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return r.interrupt(ctx)
		}
		return r.fail(fmt.Errorf("read %s index: %w", e.target.Name(), err))
	}
	r.existing = existing
	logger.Info("existing series loaded", "target", e.target.Name(), "count", existing.Len())

	cursor := r.cp.Cursor
	for {
		if ctx.Err() != nil {
			return r.interrupt(ctx)
		}
		if e.budget.Remaining() <= 0 {
			return e.budgetStop(logger, r, nil)
		}

		e.sendProgress(r.progress, streamingUpdate(r.pages, e.budget.Max(), cursor))
		page, err := e.reference.FetchVolumes(ctx, r.opts.Characters, cursor)
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrBudgetExceeded):
				return e.budgetStop(logger, r, nil)
			case ctx.Err() != nil:
				return r.interrupt(ctx)
			case shared.IsFatal(err):
				return r.fail(err)
			}

			character := r.character(cursor)
			logger.Error("page failed, skipping", "character", character, "page", cursor, "err", err)
			r.summary.RecordError(models.SeriesRef{Name: fmt.Sprintf("page %s %s", character, cursor)}, err)
			next := e.reference.SkipPage(r.opts.Characters, cursor)
			if reason := e.completePage(logger, r, next, nil); reason != keepGoing {
				return reason
			}
			cursor = *next
			continue
		}

		pending, reason := e.processPage(ctx, logger, r, page)
		if reason != keepGoing {
			return reason
		}
		if reason := e.completePage(logger, r, page.Next, pending); reason != keepGoing {
			return reason
		}
		cursor = *page.Next
	}
}

// resume loads the checkpoint and restores the evaluated set.
func (e *SyncEngine) resume(logger *log.Logger, r *run) stop {
	cp, err := e.store.Load()
	if err != nil {
		return r.fail(err)
	}
	if !cp.IsZero() && !cp.Matches(r.opts.Characters) {
		logger.Warn("checkpoint was written for different characters, starting over", "checkpoint", cp.Characters)
		cp = models.Checkpoint{}
	}
	if cp.IsZero() {
		cp = models.NewCheckpoint(r.opts.RunID, r.opts.Characters)
	} else {
		r.summary.Resumed = true
		logger.Info("resuming from checkpoint", "character", cp.Cursor.Character, "offset", cp.Cursor.Offset, "evaluated", len(cp.Evaluated), "queries_used", cp.QueriesUsed)
	}

	r.cp = cp
	for id := range cp.EvaluatedSet() {
		r.handled[id] = struct{}{}
	}
	e.sendProgress(r.progress, resumingUpdate(cp))
	return keepGoing
}

// processPage runs filter, diff and act over a page. It returns the volume IDs to persist as
// evaluated, or a stop reason when the page could not be completed.
//
// A page cut short by the query budget keeps its cursor in the checkpoint together with the
// volumes decided so far, so a page costing more than one run's budget still completes over
// several runs. An interrupted page is not saved.
func (e *SyncEngine) processPage(ctx context.Context, logger *log.Logger, r *run, page *services.VolumePage) ([]int64, stop) {
	e.sendProgress(r.progress, filteringUpdate(r.pages, e.budget.Max(), len(page.Volumes)))

	pending := make([]int64, 0, len(page.Volumes))
	for _, v := range page.Volumes {
		if ctx.Err() != nil {
			return nil, r.interrupt(ctx)
		}
		if _, ok := r.handled[v.ID]; ok {
			continue
		}

		evaluated, reason := e.processVolume(ctx, logger, r, v)
		if reason == stopBudget {
			return nil, e.budgetStop(logger, r, pending)
		}
		if reason != keepGoing {
			return nil, reason
		}
		r.handled[v.ID] = struct{}{}
		if evaluated {
			pending = append(pending, v.ID)
		}
	}
	return pending, keepGoing
}

// processVolume decides one volume. evaluated is false when the volume failed and should be
// retried by a later run.
func (e *SyncEngine) processVolume(ctx context.Context, logger *log.Logger, r *run, v models.Volume) (evaluated bool, reason stop) {
	r.summary.RecordSeen()
	ref := models.SeriesRef{ID: v.TargetID(), Name: v.Name}
	vlog := logger.With("series", ref.ID, "name", v.Name)

	if e.filter.NeedsDetail() {
		detail, err := e.reference.FetchVolumeDetail(ctx, v.ID)
		if err != nil {
			return e.volumeError(ctx, vlog, r, ref, err)
		}
		v = v.Merge(detail)
		ref.Name = v.Name
	}

	decision := e.filter.Evaluate(ctx, v)
	if decision.Err != nil {
		return e.volumeError(ctx, vlog, r, ref, decision.Err)
	}
	if !decision.Accepted {
		r.summary.RecordFiltered()
		vlog.Debug("rejected", "reason", decision.Reason)
		return true, keepGoing
	}
	vlog.Debug("accepted", "publisher", v.PublisherName, "start_year", v.StartYear, "issues", v.IssueCount)

	e.sendProgress(r.progress, diffingUpdate(r.pages, e.budget.Max(), v))
	if r.existing.Has(ref.ID) {
		r.summary.RecordPresent(ref)
		vlog.Debug("present")
		return true, keepGoing
	}
	if _, ok := r.attempted[ref.ID]; ok {
		return true, keepGoing
	}
	r.attempted[ref.ID] = struct{}{}

	e.sendProgress(r.progress, actingUpdate(r.pages, e.budget.Max(), ref, r.opts.DryRun))
	if r.opts.DryRun {
		r.summary.RecordAdded(ref)
		vlog.Info("would-add")
		e.recordLedger(ctx, vlog, "record series", func(l Ledger) error { return l.RecordSeries(ctx, r.opts.RunID, ref, true) })
		return true, keepGoing
	}

	err := e.target.AddSeries(ctx, ref.ID, ref.Name)
	switch {
	case err == nil:
		r.summary.RecordAdded(ref)
		r.existing.Add(ref.ID)
		vlog.Info("added")
		e.recordLedger(ctx, vlog, "record series", func(l Ledger) error { return l.RecordSeries(ctx, r.opts.RunID, ref, false) })
		return true, keepGoing
	case errors.Is(err, shared.ErrConflict) && r.opts.ConflictPolicy == shared.ConflictSuccess:
		r.summary.RecordPresent(ref)
		r.existing.Add(ref.ID)
		vlog.Info("present", "reason", "target reported duplicate")
		return true, keepGoing
	default:
		return e.volumeError(ctx, vlog, r, ref, err)
	}
}

// volumeError classifies a per-volume failure: fatal errors stop the run, the rest are counted and skipped.
func (e *SyncEngine) volumeError(ctx context.Context, logger *log.Logger, r *run, ref models.SeriesRef, err error) (bool, stop) {
	switch {
	case errors.Is(err, shared.ErrBudgetExceeded):
		return false, stopBudget
	case ctx.Err() != nil:
		return false, r.interrupt(ctx)
	case shared.IsFatal(err):
		return false, r.fail(err)
	}

	r.summary.RecordError(ref, err)
	logger.Error("error", "err", err)
	return false, keepGoing
}

// completePage advances the checkpoint past a finished (or skipped) page. A nil next means the
// stream is exhausted and the checkpoint is cleared instead.
func (e *SyncEngine) completePage(logger *log.Logger, r *run, next *models.Cursor, evaluated []int64) stop {
	r.pages++
	if next == nil {
		if err := e.store.Clear(); err != nil {
			return r.fail(err)
		}
		return stopExhausted
	}

	cp := r.cp.WithPage(*next, evaluated, e.budget.Used(), e.now())
	if err := e.store.Save(cp); err != nil {
		return r.fail(err)
	}
	r.cp = cp
	logger.Debug("checkpoint saved", "character", next.Character, "offset", next.Offset, "evaluated", len(cp.Evaluated))
	e.sendProgress(r.progress, checkpointingUpdate(r.pages, e.budget.Max(), cp))
	return keepGoing
}

// budgetStop ends the run gracefully. evaluated holds the volumes decided on the unfinished
// page; they join the checkpoint while its cursor stays on that page.
func (e *SyncEngine) budgetStop(logger *log.Logger, r *run, evaluated []int64) stop {
	if !r.cp.IsZero() || len(evaluated) > 0 {
		cp := r.cp.WithProgress(evaluated, e.budget.Used(), e.now())
		if err := e.store.Save(cp); err != nil {
			return r.fail(err)
		}
		r.cp = cp
	}
	logger.Warn("query budget exhausted, stopping", "used", e.budget.Used(), "max", e.budget.Max(), "page_progress", len(evaluated))
	return stopBudget
}

func (r *run) character(cursor models.Cursor) models.CharacterID {
	if cursor.Character < 0 || cursor.Character >= len(r.opts.Characters) {
		return ""
	}
	return r.opts.Characters[cursor.Character]
}

func (r *run) interrupt(ctx context.Context) stop {
	r.err = ctx.Err()
	return stopInterrupted
}

func (r *run) fail(err error) stop {
	r.err = err
	return stopAborted
}

func (e *SyncEngine) finish(ctx context.Context, logger *log.Logger, r *run, reason stop) (*models.RunSummary, error) {
	summary := r.summary
	summary.Pages = r.pages
	summary.QueriesUsed = e.budget.Used()

	switch reason {
	case stopExhausted:
		summary.Finish(models.RunStatusDone, "", e.now())
	case stopBudget:
		summary.Finish(models.RunStatusPartial, "query budget exhausted", e.now())
	case stopInterrupted:
		summary.Finish(models.RunStatusInterrupted, "interrupted", e.now())
	default:
		summary.Finish(models.RunStatusAborted, r.err.Error(), e.now())
	}

	e.recordLedger(context.WithoutCancel(ctx), logger, "finish run", func(l Ledger) error {
		return l.FinishRun(context.WithoutCancel(ctx), summary)
	})
	e.sendProgress(r.progress, finishedUpdate(r.pages, e.budget.Max(), summary))

	kv := []any{
		"status", summary.Status, "seen", summary.Seen, "filtered", summary.Filtered,
		"present", summary.AlreadyPresent, "added", summary.Added, "errors", summary.Errors,
		"pages", summary.Pages, "queries", summary.QueriesUsed,
	}
	switch reason {
	case stopAborted:
		logger.Error("sync aborted", append(kv, "err", r.err)...)
		return summary, r.err
	case stopInterrupted:
		logger.Warn("sync interrupted", kv...)
		return summary, r.err
	default:
		logger.Info("sync finished", kv...)
		return summary, nil
	}
}

func (e *SyncEngine) recordLedger(ctx context.Context, logger *log.Logger, what string, fn func(Ledger) error) {
	if e.ledger == nil {
		return
	}
	if err := fn(e.ledger); err != nil {
		logger.Warn("ledger write failed", "op", what, "err", err)
	}
}
