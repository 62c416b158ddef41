package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Catalog errors
	ErrAuth           = fmt.Errorf("authentication failed")
	ErrTransientFetch = fmt.Errorf("transient fetch failure")
	ErrFetch          = fmt.Errorf("fetch failed")
	ErrBudgetExceeded = fmt.Errorf("query budget exceeded")
	ErrTargetWrite    = fmt.Errorf("target write failed")
	ErrConflict       = fmt.Errorf("series already exists")

	// Local state errors
	ErrCorruptCheckpoint = fmt.Errorf("corrupt checkpoint")
	ErrCheckpointLocked  = fmt.Errorf("checkpoint is locked by another run")
	ErrStorage           = fmt.Errorf("local storage failure")
	ErrNotFound          = fmt.Errorf("record not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitAborted     = 1
	ExitConfig      = 2
	ExitInterrupted = 130
)

// ExitCode maps a run error onto the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrMissingConfig):
		return ExitConfig
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitAborted
	}
}

// IsFatal reports whether err must abort a run: authentication failures and local storage failures.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrStorage) || errors.Is(err, ErrCheckpointLocked)
}
