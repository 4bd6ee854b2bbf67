// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func newController(t *testing.T, s Settings) (*Controller, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := New(s, WithIO(strings.NewReader(""), &out, &out), WithEnviron([]string{"HOME=" + t.TempDir()}))
	return c, &out
}

func TestRestart_PassesFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts RestartOptions
		want string
	}{
		{"plain", RestartOptions{}, "args=[] daemon=0 graceful=0"},
		{"daemon", RestartOptions{Daemon: true}, "args=[-d] daemon=1 graceful=0"},
		{"both", RestartOptions{Daemon: true, Graceful: true}, "args=[-d -g] daemon=1 graceful=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, out := newController(t, Settings{
				Restart: `echo "args=[$*] daemon=$SFXPACK_DAEMON graceful=$SFXPACK_GRACEFUL"`,
			})
			if err := c.Restart(context.Background(), tt.opts); err != nil {
				t.Fatalf("Restart() error: %v", err)
			}
			if got := strings.TrimSpace(out.String()); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRestart_Workdir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, _ := newController(t, Settings{Restart: `echo started > marker.txt`, Workdir: dir})
	if err := c.Restart(context.Background(), RestartOptions{}); err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "marker.txt"))
	if err != nil || strings.TrimSpace(string(data)) != "started" {
		t.Errorf("marker = %q, %v", data, err)
	}
}

func TestRestart_ExitStatus(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, Settings{Restart: "exit 7"})
	err := c.Restart(context.Background(), RestartOptions{})
	var se *ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *ScriptError", err)
	}
	if se.ExitCode != 7 || se.Name != "restart" {
		t.Errorf("ScriptError = %+v", se)
	}
}

func TestRestart_ParseError(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, Settings{Restart: "if then fi ("})
	err := c.Restart(context.Background(), RestartOptions{})
	if !errors.Is(err, ErrInvalidScript) || !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %v, want parse failure", err)
	}
}

func TestControllerValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings Settings
		wantErr  string
	}{
		{"nothing configured", Settings{}, ""},
		{"valid scripts", Settings{Restart: "echo restart", Status: "echo status"}, ""},
		{"broken restart", Settings{Restart: "echo $(", Status: "echo status"}, "restart"},
		{"broken status", Settings{Restart: "echo restart", Status: "if then fi ("}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, out := newController(t, tt.settings)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidScript) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want invalid %s script", err, tt.wantErr)
			}
			if out.Len() != 0 {
				t.Errorf("Validate() ran something: %q", out.String())
			}
		})
	}
}

func TestNotConfigured(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, Settings{})
	if err := c.Restart(context.Background(), RestartOptions{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Restart() error = %v, want ErrNotConfigured", err)
	}
	if _, err := c.Status(context.Background(), StatusOptions{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Status() error = %v, want ErrNotConfigured", err)
	}
}

func TestStatus_ScriptAndPidFile(t *testing.T) {
	t.Parallel()

	pidFile := filepath.Join(t.TempDir(), "server.pid")
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, out := newController(t, Settings{Status: `echo "live=$SFXPACK_LIVE $1"`, PidFile: pidFile})
	report, err := c.Status(context.Background(), StatusOptions{Live: true})
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if !report.RanScript || strings.TrimSpace(out.String()) != "live=1 -d" {
		t.Errorf("script output = %q, ran = %v", out.String(), report.RanScript)
	}
	if report.Process == nil || !report.Process.Running {
		t.Fatalf("own process should be reported running: %+v", report.Process)
	}
	if report.Process.PID != int32(os.Getpid()) {
		t.Errorf("PID = %d, want %d", report.Process.PID, os.Getpid())
	}
}

func TestStatus_StalePidFile(t *testing.T) {
	t.Parallel()

	pidFile := filepath.Join(t.TempDir(), "server.pid")
	// Above any pid_max the kernel allows.
	if err := os.WriteFile(pidFile, []byte("2147483000"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, _ := newController(t, Settings{PidFile: pidFile})
	report, err := c.Status(context.Background(), StatusOptions{})
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if report.RanScript || report.Process == nil || report.Process.Running {
		t.Errorf("stale pid should be reported stopped: %+v", report)
	}
}

func TestReadPidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		content string
		want    int32
		wantErr bool
	}{
		{"42\n", 42, false},
		{"  17 ", 17, false},
		{"", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for i, tt := range tests {
		path := filepath.Join(dir, strconv.Itoa(i)+".pid")
		if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := ReadPidFile(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("ReadPidFile(%q) error = %v, wantErr %v", tt.content, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidPidFile) {
			t.Errorf("ReadPidFile(%q) error = %v, want ErrInvalidPidFile", tt.content, err)
		}
		if got != tt.want {
			t.Errorf("ReadPidFile(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}

	if _, err := ReadPidFile(filepath.Join(dir, "missing.pid")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing pid file error = %v", err)
	}
}

func TestScriptValidate(t *testing.T) {
	t.Parallel()

	if err := (Script{Name: "ok", Source: "echo hi"}).Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := (Script{Name: "bad", Source: "echo $("}).Validate(); err == nil {
		t.Error("Validate() should reject unterminated substitution")
	}
}

func TestStatus_MissingPidFile(t *testing.T) {
	t.Parallel()

	c, _ := newController(t, Settings{PidFile: filepath.Join(t.TempDir(), "absent.pid")})
	report, err := c.Status(context.Background(), StatusOptions{})
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if report.Process == nil || report.Process.Running || report.Process.PID != 0 {
		t.Errorf("missing pid file should read as stopped: %+v", report.Process)
	}
}
