package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/cv2mylar/internal/formatter"
	"github.com/desertthunder/cv2mylar/internal/repositories"
	"github.com/desertthunder/cv2mylar/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recent runs from the ledger.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := shared.OpenLedger(ctx, config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	if cmd.Bool("json") {
		summaries := make([]any, 0, len(runs))
		for _, run := range runs {
			summaries = append(summaries, run.Summary())
		}
		return r.writeJSON(summaries, true)
	}
	return formatter.WriteHistory(r.output, runs)
}

// HistoryShow exports one run and the series it recorded.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.Args().First()
	if runID == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := shared.OpenLedger(ctx, config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ledger := repositories.NewLedger(db)
	run, err := ledger.Runs().Get(ctx, runID)
	if err != nil {
		return err
	}
	series, err := ledger.Series().ListByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	var data []byte
	switch format := cmd.String("format"); format {
	case "markdown", "md":
		data = formatter.ExportToMarkdown(run, series)
	case "csv":
		if data, err = formatter.ExportToCSV(series); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
	}

	if path := cmd.String("output"); path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		r.logger.Info("run exported", "run", runID, "path", path)
		return nil
	}
	_, err = r.output.Write(data)
	return err
}
