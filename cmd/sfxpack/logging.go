// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// newLogger returns a slog.Logger backed by a charmbracelet/log handler
// writing to w. verbose lowers the level to debug.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Prefix: "sfxpack",
		Level:  log.WarnLevel,
	})
	if verbose {
		handler.SetLevel(log.DebugLevel)
		handler.SetReportTimestamp(true)
	}
	return slog.New(handler)
}
