// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/inifix"
	"github.com/sfxpack/sfxpack/internal/issue"
)

func init() {
	commands.Register("fix-disable-functions", newFixDisableFunctionsCommand)
}

// nameColumn is the width re-enabled function names are padded to.
const nameColumn = 30

type fixParams struct {
	stdout     io.Writer
	explicit   string
	configured string
	hostBinary string
}

func newFixDisableFunctionsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix-disable-functions",
		Short: "Re-enable the functions the server needs in the runtime ini file",
		Long: `Remove the process, signal and socket functions the application server
depends on from the disable_functions directive of the runtime ini file.

The ini file is taken from --ini, then runtime.ini_file, then the file the
host interpreter reports as loaded. The file is left untouched when no
required function is disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			iniFlag, _ := cmd.Flags().GetString("ini")

			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			p := fixParams{
				stdout:     app.stdout,
				explicit:   iniFlag,
				configured: cfg.Runtime.IniFile,
				hostBinary: cfg.Runtime.HostBinary,
			}
			if err := runFixDisableFunctions(cmd.Context(), p); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().String("ini", "", "path of the ini file to fix")
	return cmd
}

func runFixDisableFunctions(ctx context.Context, p fixParams) error {
	path, err := inifix.Locate(ctx, p.explicit, p.configured, p.hostBinary)
	if err != nil {
		return issue.NewErrorContext().
			WithKind(issue.KindEnvironment).
			WithOperation("locate runtime ini file").
			WithResource(firstNonEmpty(p.explicit, p.configured)).
			WithSuggestions(
				"Pass the file explicitly: sfxpack fix-disable-functions --ini /etc/php/php.ini",
				"Set runtime.ini_file in the configuration",
			).
			Wrap(err).
			BuildError()
	}

	fmt.Fprintf(p.stdout, "%s %s\n", SubtitleStyle.Render("ini file:"), CmdStyle.Render(path))

	res, err := inifix.Fix(path)
	if err != nil {
		kind := issue.KindIO
		if errors.Is(err, inifix.ErrEmptyIni) {
			kind = issue.KindEnvironment
		}
		ec := issue.NewErrorContext().
			WithKind(kind).
			WithOperation("fix disable_functions").
			WithResource(path)
		if errors.Is(err, os.ErrPermission) {
			ec = ec.WithSuggestion("Re-run with permission to write the ini file, e.g. with sudo")
		}
		return ec.Wrap(err).BuildError()
	}

	if !res.Changed() {
		fmt.Fprintln(p.stdout, SuccessStyle.Render("Nothing to do: no required function is disabled"))
		return nil
	}
	for _, fn := range res.Removed {
		fmt.Fprintf(p.stdout, "%-*s %s\n", nameColumn, fn, SuccessStyle.Render("enabled"))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
