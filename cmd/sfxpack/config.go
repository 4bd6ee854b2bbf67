// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/config"
	"github.com/sfxpack/sfxpack/internal/issue"
)

func init() {
	commands.Register("config", newConfigCommand)
}

// newConfigCommand creates the `sfxpack config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sfxpack configuration",
		Long: `Manage sfxpack configuration.

The user configuration is stored in:
  - Linux: ~/.config/sfxpack/config.cue
  - macOS: ~/Library/Application Support/sfxpack/config.cue
  - Windows: %APPDATA%\sfxpack\config.cue

A sfxpack.cue file in the working directory is layered on top, and
SFXPACK_* environment variables override both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			if err := showConfig(cmd.Context(), app, config.Format(format)); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	show.Flags().String("format", string(config.FormatCUE), "output format: "+formatList())
	cfgCmd.AddCommand(show)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration files in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := showConfigPath(cmd.Context(), app); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default user configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(app.stdout); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	})

	return cfgCmd
}

func formatList() string {
	names := make([]string, 0, len(config.Formats()))
	for _, f := range config.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func showConfig(ctx context.Context, app *App, format config.Format) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}
	out, err := config.Render(cfg, format)
	if err != nil {
		return issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("render configuration").
			WithSuggestion("Use --format " + formatList()).
			Wrap(err).
			BuildError()
	}
	fmt.Fprint(app.stdout, out)
	return nil
}

func showConfigPath(ctx context.Context, app *App) error {
	base, err := app.baseDir()
	if err != nil {
		return err
	}
	loaded, err := config.Sources(ctx, config.LoadOptions{ConfigFilePath: app.configPath, BaseDir: base})
	if err != nil {
		return err
	}
	if len(loaded) > 0 {
		for _, p := range loaded {
			fmt.Fprintln(app.stdout, p)
		}
		return nil
	}

	dir, err := config.ConfigDir()
	if err != nil {
		return issue.NewErrorContext().WithKind(issue.KindEnvironment).WithOperation("locate config directory").Wrap(err).BuildError()
	}
	fmt.Fprintf(app.stdout, "%s %s\n",
		filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt),
		SubtitleStyle.Render("(not created; using defaults)"))
	return nil
}

func initConfig(stdout io.Writer) error {
	path, err := config.CreateDefaultConfig("")
	if err != nil {
		return issue.NewErrorContext().
			WithKind(issue.KindIO).
			WithOperation("create config file").
			Wrap(err).
			BuildError()
	}
	fmt.Fprintf(stdout, "%s %s\n", SuccessStyle.Render("Config file:"), CmdStyle.Render(path))
	return nil
}
