// SPDX-License-Identifier: MPL-2.0

// Package types holds small value types shared by the CLI and its libraries.
package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

// Process exit statuses. Every failure class has its own code so scripts
// can tell a bad configuration from a flaky mirror.
const (
	ExitSuccess       ExitCode = 0
	ExitFailure       ExitCode = 1
	ExitConfiguration ExitCode = 2
	ExitEnvironment   ExitCode = 3
	ExitSignature     ExitCode = 4
	ExitNetwork       ExitCode = 5
	ExitIO            ExitCode = 6
)

type (
	// ExitCode represents a process exit status code.
	// Exit codes are in the range 0-255 on POSIX systems.
	// The zero value (0) means success.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range (0-255).
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate returns an error if the ExitCode is outside the valid range (0-255).
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsSuccess returns true if the exit code indicates success.
func (c ExitCode) IsSuccess() bool { return c == ExitSuccess }

// Name returns a short label for the known codes, "exit N" otherwise.
func (c ExitCode) Name() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitFailure:
		return "failure"
	case ExitConfiguration:
		return "configuration"
	case ExitEnvironment:
		return "environment"
	case ExitSignature:
		return "signature"
	case ExitNetwork:
		return "network"
	case ExitIO:
		return "io"
	default:
		return "exit " + c.String()
	}
}

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
