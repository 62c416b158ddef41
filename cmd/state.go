package main

import (
	"context"

	"github.com/desertthunder/cv2mylar/internal/formatter"
	"github.com/urfave/cli/v3"
)

// StateShow prints the saved checkpoint.
func (r *Runner) StateShow(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	applySyncFlags(config, cmd)

	store := checkpointStore(config, r.logger)
	cp, err := store.Load()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(cp, true)
	}
	return formatter.WriteCheckpoint(r.output, store.Path(), cp)
}

// StateClear removes the saved checkpoint so the next sync starts from the beginning.
func (r *Runner) StateClear(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	applySyncFlags(config, cmd)

	store := checkpointStore(config, r.logger)
	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	if err := store.Clear(); err != nil {
		return err
	}
	r.logger.Info("checkpoint cleared", "path", store.Path())
	return r.writePlain("Checkpoint cleared: %s\n", store.Path())
}
