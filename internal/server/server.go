// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

// ErrNotConfigured is returned when neither a script nor a pid file is set
// for the requested action.
var ErrNotConfigured = errors.New("no server control configured")

// Environment variables carrying command flags into scripts.
const (
	EnvDaemon   = "SFXPACK_DAEMON"
	EnvGraceful = "SFXPACK_GRACEFUL"
	EnvLive     = "SFXPACK_LIVE"
)

type (
	// Settings configures the controller.
	Settings struct {
		Restart string
		Status  string
		PidFile string
		Workdir string
	}

	// Controller runs restart and status for one configured server.
	Controller struct {
		settings Settings
		environ  []string
		stdin    io.Reader
		stdout   io.Writer
		stderr   io.Writer
	}

	// Option configures a Controller during construction.
	Option func(*Controller)

	// RestartOptions are the restart command flags.
	RestartOptions struct {
		Daemon   bool
		Graceful bool
	}

	// StatusOptions are the status command flags.
	StatusOptions struct {
		Live bool
	}

	// StatusReport is the outcome of Status. Process is nil without a pid file.
	StatusReport struct {
		RanScript bool
		Process   *ProcessInfo
	}
)

// WithIO sets the standard streams scripts run with.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(c *Controller) {
		c.stdin, c.stdout, c.stderr = stdin, stdout, stderr
	}
}

// WithEnviron replaces the base environment (default os.Environ()).
func WithEnviron(env []string) Option {
	return func(c *Controller) {
		c.environ = env
	}
}

// New creates a Controller.
func New(s Settings, opts ...Option) *Controller {
	c := &Controller{
		settings: s,
		environ:  os.Environ(),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate parses every configured script, so a typo in either one is
// reported before anything runs.
func (c *Controller) Validate() error {
	for _, s := range []Script{
		{Name: "restart", Source: c.settings.Restart},
		{Name: "status", Source: c.settings.Status},
	} {
		if s.Source == "" {
			continue
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Restart runs the restart script.
func (c *Controller) Restart(ctx context.Context, opts RestartOptions) error {
	if c.settings.Restart == "" {
		return ErrNotConfigured
	}
	var args []string
	if opts.Daemon {
		args = append(args, "-d")
	}
	if opts.Graceful {
		args = append(args, "-g")
	}
	slog.Debug("running restart script", "daemon", opts.Daemon, "graceful", opts.Graceful)
	return c.script("restart", c.settings.Restart, args,
		EnvDaemon+"="+flag(opts.Daemon),
		EnvGraceful+"="+flag(opts.Graceful),
	).Run(ctx)
}

// Status runs the status script when configured and inspects the pid file
// when configured. At least one of the two must be set.
func (c *Controller) Status(ctx context.Context, opts StatusOptions) (*StatusReport, error) {
	if c.settings.Status == "" && c.settings.PidFile == "" {
		return nil, ErrNotConfigured
	}

	report := &StatusReport{}
	if c.settings.Status != "" {
		var args []string
		if opts.Live {
			args = append(args, "-d")
		}
		report.RanScript = true
		if err := c.script("status", c.settings.Status, args, EnvLive+"="+flag(opts.Live)).Run(ctx); err != nil {
			return report, err
		}
	}

	if c.settings.PidFile != "" {
		pid, err := ReadPidFile(c.settings.PidFile)
		if errors.Is(err, os.ErrNotExist) {
			// No pid file means the server is not running.
			report.Process = &ProcessInfo{}
			return report, nil
		}
		if err != nil {
			return report, err
		}
		info, err := Inspect(ctx, pid)
		if err != nil {
			return report, err
		}
		report.Process = info
	}
	return report, nil
}

func (c *Controller) script(name, source string, args []string, extraEnv ...string) Script {
	env := append(append([]string{}, c.environ...), extraEnv...)
	return Script{
		Name:   name,
		Source: source,
		Dir:    c.settings.Workdir,
		Env:    env,
		Args:   args,
		Stdin:  c.stdin,
		Stdout: c.stdout,
		Stderr: c.stderr,
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
