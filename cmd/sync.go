package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cv2mylar/internal/checkpoint"
	"github.com/desertthunder/cv2mylar/internal/filtering"
	"github.com/desertthunder/cv2mylar/internal/formatter"
	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/repositories"
	"github.com/desertthunder/cv2mylar/internal/services"
	"github.com/desertthunder/cv2mylar/internal/shared"
	"github.com/desertthunder/cv2mylar/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync runs one ComicVine to Mylar sync and prints the summary.
//
// SIGINT and SIGTERM stop the run between volumes; progress up to the last completed page is kept.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	applySyncFlags(config, cmd)
	if err := config.Validate(); err != nil {
		return err
	}

	logger, closer, err := shared.NewRunLogger(shared.LogOptions{
		Level:   config.Behavior.LogLevel,
		Dir:     config.Paths.LogDir,
		Console: r.console,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	store := checkpointStore(config, logger)
	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	if cmd.Bool("reset") {
		if err := store.Clear(); err != nil {
			return err
		}
		logger.Info("checkpoint cleared", "path", store.Path())
	}

	budget := services.NewQueryBudget(config.Behavior.QueryBudget)
	common := r.serviceOptions(config, logger)
	reference := services.NewComicVineService(config.ComicVine.APIKey, config.ComicVine.BaseURL, append(common,
		services.WithUserAgent(config.ComicVine.UserAgent),
		services.WithRateLimiter(services.NewRateLimiter(config.RateDelay())),
		services.WithQueryBudget(budget),
	)...)
	reference.SetIssueFallback(config.Behavior.UseIssueFallback)
	target := services.NewMylarService(config.Mylar.APIKey, config.Mylar.BaseURL, common...)

	filter, err := filtering.NewEngine(config.FilterConfig(), reference)
	if err != nil {
		return err
	}

	engineOpts := []tasks.EngineOption{tasks.WithLogger(logger)}
	if db, err := shared.OpenLedger(ctx, config.Database); err != nil {
		logger.Warn("run ledger unavailable, history will not be recorded", "path", config.Database.Path, "err", err)
	} else {
		defer db.Close()
		engineOpts = append(engineOpts, tasks.WithLedger(repositories.NewLedger(db)))
	}

	engine := tasks.NewSyncEngine(reference, target, filter, store, budget, engineOpts...)

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			logger.Debug(update.Message, "phase", update.Phase, "page", update.Step)
		}
	}()

	summary, runErr := engine.Run(ctx, tasks.SyncOptions{
		Characters:     config.Characters(),
		DryRun:         config.Behavior.DryRun,
		ConflictPolicy: config.Behavior.ConflictPolicy,
	}, progress)
	close(progress)
	<-done

	if summary != nil {
		if err := r.writeSummary(cmd.Bool("json"), summary, budget.Max()); err != nil {
			logger.Error("failed to write summary", "err", err)
		}
	}
	return runErr
}

func (r *Runner) writeSummary(asJSON bool, summary *models.RunSummary, budget int) error {
	if asJSON {
		return formatter.WriteSummaryJSON(r.output, summary)
	}
	return formatter.WriteSummary(r.output, summary, budget)
}

// applySyncFlags overrides configuration with flags given on the command line.
func applySyncFlags(config *shared.Config, cmd *cli.Command) {
	if cmd.IsSet("dry-run") {
		config.Behavior.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("character-ids") {
		config.ComicVine.CharacterIDs = cmd.String("character-ids")
	}
	if cmd.IsSet("issue-fallback") {
		config.Behavior.UseIssueFallback = cmd.Bool("issue-fallback")
	}
	if cmd.IsSet("state-dir") {
		config.Paths.StateDir = cmd.String("state-dir")
	}
	if cmd.IsSet("log-dir") {
		config.Paths.LogDir = cmd.String("log-dir")
	}
	if cmd.IsSet("log-level") {
		config.Behavior.LogLevel = cmd.String("log-level")
	}
}

// checkpointStore returns the live or dry-run store for the configured state directory.
func checkpointStore(config *shared.Config, logger *log.Logger) *checkpoint.Store {
	name := checkpoint.FileName
	if config.Behavior.DryRun {
		name = checkpoint.DryRunFileName
	}
	return checkpoint.NewNamedStore(config.Paths.StateDir, name, logger)
}

// serviceOptions builds the HTTP options shared by both catalog clients.
func (r *Runner) serviceOptions(config *shared.Config, logger *log.Logger) []services.Option {
	opts := []services.Option{
		services.WithTimeout(config.RequestTimeout()),
		services.WithMaxRetries(config.Behavior.MaxRetries),
		services.WithLogger(logger),
	}
	if r.httpClient != nil {
		opts = append(opts, services.WithHTTPClient(r.httpClient))
	}
	if r.newBackOff != nil {
		opts = append(opts, services.WithBackOff(r.newBackOff))
	}
	return opts
}
