// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type (
	// ActionableError is a user-facing failure: the operation that failed,
	// the path or URL it failed on, a Kind for exit-code classification and
	// concrete steps the user can take.
	ActionableError struct {
		Kind Kind
		// Operation is a verb phrase such as "build archive".
		Operation string
		// Resource is the file, directory or URL involved, if any.
		Resource    string
		Suggestions []string
		Cause       error
	}

	// ErrorContext assembles an ActionableError step by step:
	//
	//	return issue.NewErrorContext().
	//		WithKind(issue.KindConfiguration).
	//		WithOperation("read input directory").
	//		WithResource(dir).
	//		WithSuggestion("Set build.input_dir to an existing directory").
	//		Wrap(err).
	//		BuildError()
	ErrorContext struct {
		ae ActionableError
	}
)

// NewErrorContext starts an empty ErrorContext.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error renders "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of e's kind, so errors.Is(err, issue.ErrNetwork)
// holds anywhere up the chain of a network-kind error.
func (e *ActionableError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && target == s
}

// HasSuggestions reports whether e carries remediation steps.
func (e *ActionableError) HasSuggestions() bool {
	return len(e.Suggestions) > 0
}

// Format renders the message followed by the suggestions as a bulleted
// list. Verbose output also lists every error in the cause chain.
func (e *ActionableError) Format(verbose bool) string {
	var sb strings.Builder
	sb.WriteString(e.Error())

	if e.HasSuggestions() {
		sb.WriteString("\n")
		for _, s := range e.Suggestions {
			sb.WriteString("\n  • " + s)
		}
	}

	if verbose && e.Cause != nil {
		sb.WriteString("\n\nCaused by:")
		for i, err := 1, e.Cause; err != nil; i, err = i+1, errors.Unwrap(err) {
			fmt.Fprintf(&sb, "\n  %d. %s", i, err)
		}
	}
	return sb.String()
}

func (c *ErrorContext) WithKind(k Kind) *ErrorContext {
	c.ae.Kind = k
	return c
}

func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.ae.Operation = op
	return c
}

func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.ae.Resource = res
	return c
}

// WithSuggestion appends one remediation step; repeated steps are kept once.
func (c *ErrorContext) WithSuggestion(s string) *ErrorContext {
	return c.WithSuggestions(s)
}

// WithSuggestions appends remediation steps, skipping empty and repeated ones.
func (c *ErrorContext) WithSuggestions(ss ...string) *ErrorContext {
	for _, s := range ss {
		if s != "" && !slices.Contains(c.ae.Suggestions, s) {
			c.ae.Suggestions = append(c.ae.Suggestions, s)
		}
	}
	return c
}

func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.ae.Cause = err
	return c
}

// Build returns the assembled error, or nil when no operation was set.
// An unset Kind is inherited from the wrapped cause.
func (c *ErrorContext) Build() *ActionableError {
	if c.ae.Operation == "" {
		return nil
	}
	ae := c.ae
	ae.Suggestions = slices.Clone(c.ae.Suggestions)
	if ae.Kind == KindUnknown {
		ae.Kind = KindOf(ae.Cause)
	}
	return &ae
}

// BuildError is Build returning a plain error, so a missing operation yields
// an untyped nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}
