// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/sfxpack/sfxpack/pkg/types"
)

// ExitError carries the process exit status out of a RunE handler. Execute
// translates it into os.Exit; tests inspect Code directly.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Code.Name() + " (exit status " + e.Code.String() + ")"
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }
