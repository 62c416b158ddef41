// package shared defines shared helpers
package shared

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the name of the rotating log file inside the log directory.
const LogFileName = "cv2mylar.log"

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// LogOptions configures [NewRunLogger].
type LogOptions struct {
	Level      string    // debug, info, warn, error
	Dir        string    // directory for the rotating log file; empty disables the file sink
	Console    io.Writer // defaults to [os.Stderr]
	MaxSizeMB  int       // rotate after this many megabytes (default 1)
	MaxBackups int       // rotated files to keep (default 5)
}

// NewRunLogger creates the logger for a sync run. Entries go to the console and, when Dir is set,
// to a size-rotated file. The console gets the text formatter on a terminal and logfmt otherwise.
//
// The returned closer releases the log file and must be called when the run ends.
func NewRunLogger(opts LogOptions) (*log.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 1
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}

	var closer io.Closer = nopCloser{}
	w := opts.Console
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to create log directory: %v", ErrStorage, err)
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, LogFileName),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		closer = file
		w = io.MultiWriter(opts.Console, file)
	}

	formatter := log.LogfmtFormatter
	if isTerminal(opts.Console) && opts.Dir == "" {
		formatter = log.TextFormatter
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Formatter:       formatter,
		Prefix:          "cv2mylar",
	})
	return logger, closer, nil
}

// ParseLevel converts a configured level name into a [log.Level].
// WARNING and CRITICAL are accepted as aliases for warn and fatal.
func ParseLevel(level string) (log.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "":
		return log.InfoLevel, nil
	case "warning":
		normalized = "warn"
	case "critical":
		normalized = "fatal"
	}
	l, err := log.ParseLevel(normalized)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("%w: log level %q", ErrInvalidConfig, level)
	}
	return l, nil
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
