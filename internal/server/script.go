// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ErrInvalidScript is returned for scripts that are not valid shell.
var ErrInvalidScript = errors.New("invalid server script")

// ScriptError reports a script that ran but exited non-zero.
type ScriptError struct {
	Name     string
	ExitCode int
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s script exited with status %d", e.Name, e.ExitCode)
}

// Script is a shell script plus everything it runs with.
type Script struct {
	Name   string
	Source string
	Dir    string
	Env    []string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Validate parses the script without running it.
func (s Script) Validate() error {
	_, err := s.parse()
	return err
}

func (s Script) parse() (*syntax.File, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(s.Source), s.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s script: %w", ErrInvalidScript, s.Name, err)
	}
	return prog, nil
}

// Run executes the script. A non-zero exit yields *ScriptError.
func (s Script) Run(ctx context.Context) error {
	prog, err := s.parse()
	if err != nil {
		return err
	}

	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(s.Env...)),
		interp.StdIO(s.Stdin, s.Stdout, s.Stderr),
	}
	if s.Dir != "" {
		opts = append(opts, interp.Dir(s.Dir))
	}
	// "--" keeps flag-like arguments such as -d from being read as shell options.
	if len(s.Args) > 0 {
		opts = append(opts, interp.Params(append([]string{"--"}, s.Args...)...))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return &ScriptError{Name: s.Name, ExitCode: int(status)}
		}
		return fmt.Errorf("%s script failed: %w", s.Name, err)
	}
	return nil
}
