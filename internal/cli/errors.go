// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/lock"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a wrong passcode or an active backoff
	ExitAuthError = 4
	// ExitStorageError indicates the vault or a content store failed
	ExitStorageError = 5
	// ExitNotFoundError indicates an unknown preset or disguise
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

var (
	// ErrIncorrectPasscode is returned when authentication fails. It never
	// says which code was tried or how many attempts remain.
	ErrIncorrectPasscode = errors.New("incorrect passcode")
	// ErrTryLater is returned while the attempt backoff is running.
	ErrTryLater = errors.New("too many attempts")
	// ErrCancelled is returned when the user backs out of a flow.
	ErrCancelled = errors.New("cancelled")
	// ErrConfig wraps a config file that failed to load or validate.
	ErrConfig = errors.New("configuration error")
	// ErrNotInteractive is returned when a command needs a terminal.
	ErrNotInteractive = errors.New("this command needs an interactive terminal")
)

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "preset")
	Action  string // Action being performed (e.g., "set")
	Err     error  // Underlying error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// usageError builds a ValidationError for a bad subcommand.
func usageError(cmd Command, sub, example string) error {
	return &ValidationError{
		Field:   cmd.String() + " action",
		Value:   sub,
		Reason:  "unknown action",
		Example: example,
	}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var valErr *ValidationError
	switch {
	case errors.As(err, &valErr):
		return ExitUsageError
	case errors.Is(err, ErrConfig):
		return ExitConfigError
	case errors.Is(err, ErrIncorrectPasscode), errors.Is(err, ErrTryLater):
		return ExitAuthError
	case errors.Is(err, credential.ErrStorageFailure):
		return ExitStorageError
	case errors.Is(err, decoy.ErrUnknownPreset), errors.Is(err, lock.ErrUnknownDisguise):
		return ExitNotFoundError
	default:
		return ExitGeneralError
	}
}

// DisplayError writes err to w, or a JSON error envelope in JSON mode.
func DisplayError(w io.Writer, cmd Command, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(cmd.String(), err).Write(w)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
