// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/builder"
)

func init() {
	commands.Register("build:archive", newBuildArchiveCommand)
}

// buildParams bundles what runBuildArchive and runBuildBinary need, so the
// core logic can be tested without cobra.
type buildParams struct {
	stdout   io.Writer
	builder  *builder.Builder
	reporter *reporter
	version  string
}

func newBuildArchiveCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build:archive",
		Short: "Package the input directory into a signed archive",
		Long: `Package the input directory into a single archive behind an executable stub.

Files matching the inclusion pattern are collected, the exclusion list and
the framework's scaffolding commands are removed, and the archive is signed
with the configured algorithm. The previous archive is replaced only when
the new one is complete.`,
		Example: `  # Build with the configured settings
  sfxpack build:archive

  # Build even though build.readonly is set
  sfxpack build:archive --allow-write

  # Rebuild whenever a packaged file changes
  sfxpack build:archive --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			allowWrite, _ := cmd.Flags().GetBool("allow-write")
			watchMode, _ := cmd.Flags().GetBool("watch")

			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			rep := newReporter(app.stdout, cfg.UI.Progress)
			b, err := app.newBuilder(cfg, allowWrite, rep.Event)
			if err != nil {
				return app.fail(cmd, err)
			}
			p := buildParams{stdout: app.stdout, builder: b, reporter: rep}
			if err := runBuildArchive(cmd.Context(), p); err != nil {
				return app.fail(cmd, err)
			}
			if !watchMode {
				return nil
			}
			if err := runWatch(cmd.Context(), p, app.stderr, app.logger, app.verbose); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("allow-write", false, "build even when build.readonly is set")
	cmd.Flags().BoolP("watch", "w", false, "rebuild when files in the input directory change")
	return cmd
}

func runBuildArchive(ctx context.Context, p buildParams) error {
	start := time.Now()
	fmt.Fprintln(p.stdout, TitleStyle.Render("Building archive"))

	res, err := p.builder.BuildArchive(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(p.stdout, "%s %s\n", SuccessStyle.Render("Archive written:"), CmdStyle.Render(res.ArchivePath))
	fmt.Fprintf(p.stdout, "%s %d files, %s signature\n", SubtitleStyle.Render("Contents:"), len(res.Entries), res.Algorithm)
	fmt.Fprintf(p.stdout, "%s %s\n", SubtitleStyle.Render("Elapsed:"), time.Since(start).Round(time.Millisecond))
	return nil
}
