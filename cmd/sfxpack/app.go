// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sfxpack/sfxpack/internal/builder"
	"github.com/sfxpack/sfxpack/internal/config"
	"github.com/sfxpack/sfxpack/internal/fetch"
	"github.com/sfxpack/sfxpack/internal/issue"
)

type (
	// HostVersionFunc reports the MAJOR.MINOR version of the host
	// interpreter binary, or "" when it cannot be determined.
	HostVersionFunc func(ctx context.Context, binary string) string

	// App wires CLI services and shared dependencies. Every command
	// constructor receives the App and loads configuration through it.
	App struct {
		Config      config.Provider
		HostVersion HostVersionFunc
		stdin       io.Reader
		stdout      io.Writer
		stderr      io.Writer
		workDir     string
		logger      *slog.Logger

		// set from persistent flags
		configPath string
		verbose    bool

		// ownsDefaultLogger makes verbosity changes replace slog's default.
		ownsDefaultLogger bool
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config      config.Provider
		HostVersion HostVersionFunc
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
		// WorkDir is the project directory; empty means the process working directory.
		WorkDir string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.HostVersion == nil {
		deps.HostVersion = fetch.HostVersion
	}
	return &App{
		Config:      deps.Config,
		HostVersion: deps.HostVersion,
		stdin:       deps.Stdin,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
		workDir:     deps.WorkDir,
		logger:      newLogger(deps.Stderr, false),
	}
}

// baseDir is where relative configuration paths are resolved from.
func (a *App) baseDir() (string, error) {
	if a.workDir != "" {
		return a.workDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", issue.NewErrorContext().
			WithKind(issue.KindEnvironment).
			WithOperation("determine working directory").
			Wrap(err).
			BuildError()
	}
	return wd, nil
}

// loadConfig loads the effective configuration. ui.verbose turns on debug
// logging when --verbose was not given.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	base, err := a.baseDir()
	if err != nil {
		return nil, err
	}
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath, BaseDir: base})
	if err != nil {
		return nil, err
	}
	if cfg.UI.Verbose && !a.verbose {
		a.setVerbose(true)
	}
	return cfg, nil
}

func (a *App) setVerbose(v bool) {
	a.verbose = v
	a.logger = newLogger(a.stderr, v)
	if a.ownsDefaultLogger {
		slog.SetDefault(a.logger)
	}
}

// newBuilder resolves cfg into a builder for the working directory.
func (a *App) newBuilder(cfg *config.Config, allowWrite bool, progress builder.ProgressFunc) (*builder.Builder, error) {
	base, err := a.baseDir()
	if err != nil {
		return nil, err
	}
	bc, err := builder.FromConfig(cfg, base)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("resolve build settings").
			WithSuggestion("Use Go duration syntax for runtime.timeout, e.g. \"90s\"").
			Wrap(err).
			BuildError()
	}
	bc.AllowWrite = allowWrite

	host := bc.Runtime.HostBinary
	return builder.New(bc,
		builder.WithLogger(a.logger),
		builder.WithUserAgent(userAgent()),
		builder.WithProgress(progress),
		builder.WithHostVersion(func(ctx context.Context) string {
			return a.HostVersion(ctx, host)
		}),
	), nil
}

func userAgent() string {
	return fmt.Sprintf("sfxpack/%s", Version)
}
