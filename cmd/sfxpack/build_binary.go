// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	commands.Register("build:binary", newBuildBinaryCommand)
}

func newBuildBinaryCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build:binary [version]",
		Short: "Build a standalone binary from the archive and a runtime image",
		Long: `Build the archive, then prepend a prebuilt runtime image to produce a
standalone executable.

The runtime version comes from the argument, build.runtime_version, or the
host interpreter, in that order. Versions below runtime.min_version are
replaced by runtime.fallback_version. Runtime images are cached in the
output directory and reused on later builds.`,
		Example: `  # Use the host interpreter's version
  sfxpack build:binary

  # Pin the runtime version
  sfxpack build:binary 8.3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			allowWrite, _ := cmd.Flags().GetBool("allow-write")
			var version string
			if len(args) > 0 {
				version = args[0]
			}

			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			rep := newReporter(app.stdout, cfg.UI.Progress)
			b, err := app.newBuilder(cfg, allowWrite, rep.Event)
			if err != nil {
				return app.fail(cmd, err)
			}
			p := buildParams{stdout: app.stdout, builder: b, reporter: rep, version: version}
			if err := runBuildBinary(cmd.Context(), p); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("allow-write", false, "build even when build.readonly is set")
	return cmd
}

func runBuildBinary(ctx context.Context, p buildParams) error {
	start := time.Now()
	fmt.Fprintln(p.stdout, TitleStyle.Render("Building binary"))

	res, err := p.builder.BuildBinary(ctx, p.version)
	p.reporter.finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(p.stdout, "%s %s\n", SuccessStyle.Render("Binary written:"), CmdStyle.Render(res.BinaryPath))
	fmt.Fprintf(p.stdout, "%s %s\n", SubtitleStyle.Render("Runtime:"), res.RuntimeVersion)
	fmt.Fprintf(p.stdout, "%s %s\n", SubtitleStyle.Render("Elapsed:"), time.Since(start).Round(time.Millisecond))
	return nil
}
