package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/cv2mylar/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	logger     *log.Logger
	output     io.Writer
	console    io.Writer
	lookupEnv  func(string) (string, bool)
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger     *log.Logger
	Output     io.Writer                   // command results, defaults to stdout
	Console    io.Writer                   // run logs, defaults to stderr
	LookupEnv  func(string) (string, bool) // defaults to [os.LookupEnv]
	HTTPClient *http.Client                // optional; services build their own when nil
	BackOff    func() backoff.BackOff      // optional retry schedule override
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	return &Runner{
		logger:     opts.Logger,
		output:     opts.Output,
		console:    opts.Console,
		lookupEnv:  opts.LookupEnv,
		httpClient: opts.HTTPClient,
		newBackOff: opts.BackOff,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, stateCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the configuration file named by --config with environment overrides.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	path := cmd.String("config")
	config, err := shared.ResolveConfig(path, r.lookupEnv)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("configuration loaded", "path", path)
	return config, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
