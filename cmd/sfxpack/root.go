// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/registry"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// commands holds every top-level command; files register from init.
	commands = registry.New[*App]()
)

// NewRootCommand builds the root command with every registered subcommand
// bound to app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "sfxpack",
		Short: "Package an application tree into a signed archive or a standalone binary",
		Long: TitleStyle.Render("sfxpack") + SubtitleStyle.Render(" - self-contained artifact builder") + `

sfxpack bundles a project directory into a single archive behind an
executable stub, and glues that archive to a prebuilt runtime image to
produce a standalone binary.

` + SubtitleStyle.Render("Examples:") + `
  sfxpack build:archive            Build the archive into build/
  sfxpack build:binary 8.3         Build a binary on runtime 8.3
  sfxpack get:runtime              Download the runtime interpreter
  sfxpack config show --format toml`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.setVerbose(app.verbose)
		},
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (replaces the user and project config files)")

	root.SetIn(app.stdin)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	root.AddCommand(commands.Build(app)...)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with the command's status.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	app.ownsDefaultLogger = true
	slog.SetDefault(app.logger)

	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}
