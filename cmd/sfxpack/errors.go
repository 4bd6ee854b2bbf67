// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/issue"
	"github.com/sfxpack/sfxpack/internal/server"
	"github.com/sfxpack/sfxpack/pkg/types"
)

// exitCodeFor maps an error to the process exit status of its kind. A
// failing server script passes its own status through.
func exitCodeFor(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var scriptErr *server.ScriptError
	if errors.As(err, &scriptErr) {
		if code := types.ExitCode(scriptErr.ExitCode); code.Validate() == nil && !code.IsSuccess() {
			return code
		}
		return types.ExitFailure
	}
	switch issue.KindOf(err) {
	case issue.KindConfiguration:
		return types.ExitConfiguration
	case issue.KindEnvironment:
		return types.ExitEnvironment
	case issue.KindSignature:
		return types.ExitSignature
	case issue.KindNetwork:
		return types.ExitNetwork
	case issue.KindIO:
		return types.ExitIO
	default:
		return types.ExitFailure
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// fail prints err to stderr and turns it into an *ExitError, silencing
// cobra's own error and usage output.
func (a *App) fail(cmd *cobra.Command, err error) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error:")+" "+formatErrorForDisplay(err, a.verbose))
	code := exitCodeFor(err)
	if a.verbose {
		if entry := issue.ForKind(issue.KindOf(err)); entry != nil {
			fmt.Fprintln(a.stderr, VerboseStyle.Render(fmt.Sprintf("See `sfxpack issues %d` for troubleshooting.", entry.Id())))
		}
	}
	return &ExitError{Code: code, Err: err}
}

// errorHandler stays quiet for errors fail already printed and defers to
// fang for everything else, such as unknown flags.
func errorHandler(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}
