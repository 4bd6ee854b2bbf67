// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/companion"
	"github.com/sfxpack/sfxpack/internal/issue"
)

func init() {
	commands.Register("version", newVersionCommand)
}

// companionPlugin is the plugins key holding extra companion packages.
const companionPlugin = "companions"

type versionParams struct {
	stdout  io.Writer
	dir     string
	catalog []companion.Known
}

func newVersionCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the versions of the companion packages installed in the project",
		Long: `Show the versions of the server, engine and framework packages installed
in a project, read from vendor/composer/installed.json or composer.lock.

Extra packages can be listed under plugins.companions.packages as a map
from package name to display label.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			base, err := app.baseDir()
			if err != nil {
				return app.fail(cmd, err)
			}
			if dir == "" {
				dir = base
			} else if !filepath.IsAbs(dir) {
				dir = filepath.Join(base, dir)
			}

			p := versionParams{
				stdout:  app.stdout,
				dir:     dir,
				catalog: companion.Catalog(cfg.Plugin(companionPlugin).StringMap("packages")),
			}
			if err := runVersion(p); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "project directory (default is the working directory)")
	return cmd
}

func runVersion(p versionParams) error {
	pkgs, err := companion.Detect(p.dir, p.catalog)
	if err != nil {
		kind := issue.KindIO
		if errors.Is(err, companion.ErrNoMetadata) {
			kind = issue.KindConfiguration
		}
		return issue.NewErrorContext().
			WithKind(kind).
			WithOperation("read installed packages").
			WithResource(p.dir).
			WithSuggestion("Run composer install, or pass the project with --dir").
			Wrap(err).
			BuildError()
	}

	if len(pkgs) == 0 {
		fmt.Fprintln(p.stdout, WarningStyle.Render("No companion packages installed"))
		return nil
	}

	table := tablewriter.NewWriter(p.stdout)
	table.SetHeader([]string{"Component", "Package", "Version"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoWrapText(false)
	for _, pkg := range pkgs {
		table.Append([]string{pkg.Label, pkg.Name, pkg.Version})
	}
	table.Render()
	return nil
}
