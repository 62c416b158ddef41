package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/cv2mylar/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes a configuration file from the embedded template.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			r.logger.Warn("config file already exists, leaving it untouched", "path", configPath)
			return nil
		}
		return err
	}

	r.logger.Info("config file created", "path", configPath)
	r.writePlain("Config written to %s\n", configPath)
	r.writePlain("Set comicvine.api_key and mylar.api_key (or COMICVINE_API_KEY and MYLAR_API_KEY) before syncing.\n")
	return nil
}

// SetupDatabase initializes the run ledger and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.OpenLedger(ctx, config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(ctx, db); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
	}

	applied, err := shared.AppliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("Database ready at %s (%d migrations applied)\n", config.Database.Path, len(applied))
}
