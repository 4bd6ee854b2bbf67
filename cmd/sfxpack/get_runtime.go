// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/config"
	"github.com/sfxpack/sfxpack/internal/fetch"
	"github.com/sfxpack/sfxpack/internal/issue"
)

func init() {
	commands.Register("get:runtime", newGetRuntimeCommand)
}

type getRuntimeParams struct {
	stdout      io.Writer
	cfg         config.RuntimeConfig
	source      fetch.Source
	version     string
	outputDir   string
	hostVersion func(context.Context) string
	reporter    *reporter
	logger      *slog.Logger
}

func newGetRuntimeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get:runtime [version] [output_dir]",
		Short: "Download the runtime interpreter",
		Long: `Download a standalone runtime interpreter into a directory.

Without a version argument the host interpreter's version is used, not
runtime.min_version; only when no host interpreter answers does the
download fall back to runtime.min_version. Any version below
runtime.min_version is raised to it. The output directory defaults to the
working directory. Nothing is downloaded when the interpreter is already
present; otherwise the compressed file is fetched, unpacked, deleted, and
the interpreter is made executable.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			base, err := app.baseDir()
			if err != nil {
				return app.fail(cmd, err)
			}

			p := getRuntimeParams{
				stdout:    app.stdout,
				cfg:       cfg.Runtime,
				outputDir: base,
				reporter:  newReporter(app.stdout, cfg.UI.Progress),
				logger:    app.logger,
				hostVersion: func(ctx context.Context) string {
					return app.HostVersion(ctx, cfg.Runtime.HostBinary)
				},
			}
			if len(args) > 0 {
				p.version = args[0]
			}
			if len(args) > 1 {
				p.outputDir = args[1]
				if !filepath.IsAbs(p.outputDir) {
					p.outputDir = filepath.Join(base, p.outputDir)
				}
			}

			if err := runGetRuntime(cmd.Context(), p); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
}

func runGetRuntime(ctx context.Context, p getRuntimeParams) error {
	start := time.Now()

	requested := p.version
	if requested == "" && p.hostVersion != nil {
		requested = p.hostVersion(ctx)
	}
	version, err := fetch.ClampVersion(requested, p.cfg.MinVersion)
	if err != nil {
		return issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("resolve runtime version").
			WithResource(requested).
			WithSuggestion("Pass a version like 8.2").
			Wrap(err).
			BuildError()
	}
	compression, err := fetch.ParseCompression(p.cfg.ImageArchive)
	if err != nil {
		return issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("select runtime archive format").
			Wrap(err).
			BuildError()
	}
	timeout, err := p.cfg.TimeoutDuration()
	if err != nil {
		return issue.NewErrorContext().WithKind(issue.KindConfiguration).WithOperation("read runtime.timeout").Wrap(err).BuildError()
	}

	src := p.source
	if src == nil {
		if src, err = fetch.NewSource(p.cfg.CLIBaseURL, fetch.WithUserAgent(userAgent())); err != nil {
			return issue.NewErrorContext().
				WithKind(issue.KindConfiguration).
				WithOperation("configure runtime source").
				WithResource(p.cfg.CLIBaseURL).
				WithSuggestion("Set runtime.cli_base_url to an http(s), s3 or file URL").
				Wrap(err).
				BuildError()
		}
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return issue.NewErrorContext().
			WithKind(issue.KindIO).
			WithOperation("create output directory").
			WithResource(p.outputDir).
			Wrap(err).
			BuildError()
	}

	name := fetch.ImageName(p.cfg.CLIName, version)
	req := fetch.Request{
		Name:        name + compression.Ext(),
		Compression: compression,
		Dest:        filepath.Join(p.outputDir, name),
		Executable:  true,
	}

	fmt.Fprintf(p.stdout, "%s %s\n", TitleStyle.Render("Runtime"), version)
	dl := fetch.NewDownloader(src,
		fetch.WithTimeout(timeout),
		fetch.WithLogger(p.logger),
		fetch.WithProgress(func(written, total int64) {
			p.reporter.Download(req.Name, written, total)
		}),
	)
	res, err := dl.Ensure(ctx, req)
	p.reporter.finish()
	if err != nil {
		kind, op := issue.KindIO, "install runtime"
		if fetch.IsTransferError(err) {
			kind, op = issue.KindNetwork, "download runtime"
		}
		return issue.NewErrorContext().
			WithKind(kind).
			WithOperation(op).
			WithResource(src.Location(req.Name)).
			WithSuggestion("Check network access to runtime.cli_base_url").
			Wrap(err).
			BuildError()
	}

	if !res.Downloaded && !res.Extracted {
		fmt.Fprintf(p.stdout, "%s %s\n", WarningStyle.Render("Already present:"), CmdStyle.Render(res.Path))
		return nil
	}
	fmt.Fprintf(p.stdout, "%s %s (%d bytes)\n", SuccessStyle.Render("Installed:"), CmdStyle.Render(res.Path), res.Bytes)
	fmt.Fprintf(p.stdout, "%s %s\n", SubtitleStyle.Render("Elapsed:"), time.Since(start).Round(time.Millisecond))
	return nil
}
