package main

import (
	"context"
	"os"

	"github.com/desertthunder/cv2mylar/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "cv2mylar",
		Usage:    "Sync ComicVine character volumes into Mylar",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("cv2mylar failed", "err", err)
	}
	os.Exit(shared.ExitCode(err))
}
