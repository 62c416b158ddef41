// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// syncCommand runs the ComicVine to Mylar sync
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Add ComicVine volumes for the configured characters to Mylar",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report what would be added without calling Mylar",
			},
			&cli.StringFlag{
				Name:  "character-ids",
				Usage: "Comma-separated ComicVine character ids (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "issue-fallback",
				Usage: "Page through every issue crediting a character after its volume credits",
			},
			&cli.StringFlag{
				Name:  "state-dir",
				Usage: "Directory for the checkpoint",
			},
			&cli.StringFlag{
				Name:  "log-dir",
				Usage: "Directory for the rotating log file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run summary as JSON",
			},
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "Discard saved progress and start from the beginning",
			},
		},
		Action: r.Sync,
	}
}

// stateCommand inspects and clears the checkpoint
func stateCommand(r *Runner) *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Use the dry-run checkpoint",
			},
			&cli.StringFlag{
				Name:  "state-dir",
				Usage: "Directory for the checkpoint",
			},
		}
	}

	return &cli.Command{
		Name:  "state",
		Usage: "Checkpoint operations",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show saved sync progress",
				Flags: append(flags(), &cli.BoolFlag{
					Name:  "json",
					Usage: "Output raw JSON",
				}),
				Action: r.StateShow,
			},
			{
				Name:   "clear",
				Usage:  "Discard saved sync progress",
				Flags:  flags(),
				Action: r.StateClear,
			},
		},
	}
}

// historyCommand reads the run ledger
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List past sync runs",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Export the series recorded by a run",
				ArgsUsage: "<run-id>",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: markdown or csv",
						Value:   "markdown",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.HistoryShow,
			},
		},
	}
}

// setupCommand initializes configuration and the run ledger
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create configuration and initialize the run ledger",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a configuration file from the template",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Create the run ledger and run migrations",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}
