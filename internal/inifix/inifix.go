// SPDX-License-Identifier: MPL-2.0

// Package inifix re-enables the runtime functions a long-running server needs
// by pruning them from the disable_functions directive of an ini file.
package inifix

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/sfxpack/sfxpack/pkg/platform"
)

// RequiredFunctions must not be disabled for the server to run. Disabled
// entries starting with any of these names are removed.
var RequiredFunctions = []string{
	"stream_socket_server",
	"stream_socket_accept",
	"stream_socket_client",
	"pcntl_signal_dispatch",
	"pcntl_signal",
	"pcntl_alarm",
	"pcntl_fork",
	"posix_getuid",
	"posix_getpwuid",
	"posix_kill",
	"posix_setsid",
	"posix_getpid",
	"posix_getpwnam",
	"posix_getgrnam",
	"posix_getgid",
	"posix_setgid",
	"posix_initgroups",
	"posix_setuid",
	"posix_isatty",
	"proc_open",
	"proc_get_status",
	"proc_close",
	"shell_exec",
	"exec",
}

var (
	// ErrIniNotFound is returned when no ini file can be located.
	ErrIniNotFound = errors.New("runtime ini file not found")

	// ErrEmptyIni is returned for ini files without content.
	ErrEmptyIni = errors.New("runtime ini file is empty")
)

var (
	directiveRe  = regexp.MustCompile(`(?m)^([ \t]*)disable_functions[ \t]*=([^\r\n]*)`)
	loadedFileRe = regexp.MustCompile(`(?m)^Loaded Configuration File:\s*(.+?)\s*$`)
)

const locateTimeout = 10 * time.Second

// Result describes what Fix changed.
type Result struct {
	Path string
	// Removed lists re-enabled entries in the order they appeared.
	Removed []string
	// Remaining lists entries still disabled.
	Remaining []string
}

// Changed reports whether the file was rewritten.
func (r *Result) Changed() bool {
	return len(r.Removed) > 0
}

// Fix rewrites every disable_functions directive in the file at path. The
// file is left untouched when nothing needs re-enabling.
func Fix(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyIni, path)
	}

	out, removed, remaining := Rewrite(content)
	res := &Result{Path: path, Removed: removed, Remaining: remaining}
	if !res.Changed() {
		return res, nil
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return res, nil
}

// Rewrite prunes required functions from every disable_functions directive
// in content. Comment lines are ignored.
func Rewrite(content []byte) (out []byte, removed, remaining []string) {
	out = directiveRe.ReplaceAllFunc(content, func(line []byte) []byte {
		m := directiveRe.FindSubmatch(line)
		value, quote := unquote(strings.TrimSpace(string(m[2])))

		var kept []string
		changed := false
		for _, fn := range strings.Split(value, ",") {
			fn = strings.TrimSpace(fn)
			if fn == "" {
				continue
			}
			if isRequired(fn) {
				changed = true
				if !slices.Contains(removed, fn) {
					removed = append(removed, fn)
				}
				continue
			}
			kept = append(kept, fn)
			remaining = append(remaining, fn)
		}
		if !changed {
			return line
		}
		return fmt.Appendf(nil, "%sdisable_functions = %s%s%s", m[1], quote, strings.Join(kept, ","), quote)
	})
	return out, removed, remaining
}

func isRequired(fn string) bool {
	for _, prefix := range RequiredFunctions {
		if strings.HasPrefix(fn, prefix) {
			return true
		}
	}
	return false
}

// unquote strips matching surrounding quotes and returns the quote used.
func unquote(v string) (string, string) {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1], v[:1]
	}
	return v, ""
}

// Locate picks the ini file: explicit, then configured, then the file the
// host interpreter reports as loaded.
func Locate(ctx context.Context, explicit, configured, hostBinary string) (string, error) {
	for _, p := range []string{explicit, configured} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s", ErrIniNotFound, p)
		}
		return p, nil
	}

	if hostBinary == "" {
		return "", ErrIniNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, locateTimeout)
	defer cancel()

	name, args := platform.HostCommand(hostBinary, "--ini")
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%w: running %s --ini: %w", ErrIniNotFound, hostBinary, err)
	}
	return parseLoadedFile(out)
}

// parseLoadedFile extracts the loaded ini path from `php --ini` output.
func parseLoadedFile(out []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := loadedFileRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		if m[1] == "(none)" {
			break
		}
		return m[1], nil
	}
	return "", ErrIniNotFound
}
