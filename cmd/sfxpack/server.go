// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/config"
	"github.com/sfxpack/sfxpack/internal/issue"
	"github.com/sfxpack/sfxpack/internal/server"
)

func init() {
	commands.Register("restart", newRestartCommand)
	commands.Register("status", newStatusCommand)
}

func newRestartCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the application server",
		Long: `Restart the application server by running the server.restart script.

The flags reach the script as positional parameters (-d, -g) and as the
SFXPACK_DAEMON and SFXPACK_GRACEFUL environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			daemon, _ := cmd.Flags().GetBool("daemon")
			graceful, _ := cmd.Flags().GetBool("graceful")

			ctl, err := app.serverController(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			if err := ctl.Restart(cmd.Context(), server.RestartOptions{Daemon: daemon, Graceful: graceful}); err != nil {
				return app.fail(cmd, serverFailure("restart server", err))
			}
			return nil
		},
	}
	cmd.Flags().BoolP("daemon", "d", false, "run the server in daemon mode")
	cmd.Flags().BoolP("graceful", "g", false, "restart gracefully")
	return cmd
}

func newStatusCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the application server status",
		Long: `Show the application server status by running the server.status script
and, when server.pid_file is set, inspecting the recorded process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			live, _ := cmd.Flags().GetBool("live")

			ctl, err := app.serverController(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			report, err := ctl.Status(cmd.Context(), server.StatusOptions{Live: live})
			if err != nil {
				return app.fail(cmd, serverFailure("query server status", err))
			}
			printProcess(app.stdout, report.Process)
			return nil
		},
	}
	cmd.Flags().BoolP("live", "d", false, "show live status")
	return cmd
}

func (a *App) serverController(ctx context.Context) (*server.Controller, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	base, err := a.baseDir()
	if err != nil {
		return nil, err
	}
	ctl := server.New(serverSettings(cfg.Server, base), server.WithIO(a.stdin, a.stdout, a.stderr))
	if err := ctl.Validate(); err != nil {
		return nil, serverFailure("load server scripts", err)
	}
	return ctl, nil
}

// serverSettings resolves relative paths in s against base.
func serverSettings(s config.ServerConfig, base string) server.Settings {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	workdir := abs(s.Workdir)
	if workdir == "" {
		workdir = base
	}
	return server.Settings{
		Restart: s.Restart,
		Status:  s.Status,
		PidFile: abs(s.PidFile),
		Workdir: workdir,
	}
}

func serverFailure(op string, err error) error {
	ec := issue.NewErrorContext().WithOperation(op)
	var scriptErr *server.ScriptError
	switch {
	case errors.Is(err, server.ErrNotConfigured):
		ec = ec.WithKind(issue.KindConfiguration).
			WithSuggestions(
				"Set server.restart and server.status to the commands that control your server",
				"Set server.pid_file to report the running process",
			)
	case errors.As(err, &scriptErr):
		// exit status passes through; no kind
	case errors.Is(err, server.ErrInvalidScript):
		ec = ec.WithKind(issue.KindConfiguration).WithSuggestion("Fix the shell syntax of server.restart and server.status")
	case errors.Is(err, server.ErrInvalidPidFile):
		ec = ec.WithKind(issue.KindConfiguration).WithSuggestion("Check that server.pid_file points at the server's pid file")
	default:
		ec = ec.WithKind(issue.KindIO)
	}
	return ec.Wrap(err).BuildError()
}

func printProcess(w io.Writer, info *server.ProcessInfo) {
	if info == nil {
		return
	}
	if info.PID == 0 {
		fmt.Fprintln(w, WarningStyle.Render("Stopped:")+" no pid file")
		return
	}
	if !info.Running {
		fmt.Fprintf(w, "%s pid %d is not running\n", WarningStyle.Render("Stopped:"), info.PID)
		return
	}
	fmt.Fprintf(w, "%s pid %d (%s)\n", SuccessStyle.Render("Running:"), info.PID, info.Name)
	fmt.Fprintf(w, "  %-8s %.1f MiB\n", "memory", float64(info.RSS)/(1<<20))
	fmt.Fprintf(w, "  %-8s %.1f%%\n", "cpu", info.CPUPercent)
	if !info.Started.IsZero() {
		fmt.Fprintf(w, "  %-8s %s (up %s)\n", "started", info.Started.Format(time.RFC3339), time.Since(info.Started).Round(time.Second))
	}
}
