// SPDX-License-Identifier: MPL-2.0

package sfxar

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

const (
	// HaltToken terminates the executable part of every stub.
	HaltToken = "__HALT_COMPILER();"

	haltSuffix = " ?>\r\n"
)

// DefaultStubTemplate maps the archive under its alias and, when an entry
// script is set, runs it.
const DefaultStubTemplate = `#!/usr/bin/env php
<?php
define('IN_PHAR', true);
Phar::mapPhar('{{.Alias}}');
{{- if .Entry}}
require 'phar://{{.Alias}}/{{.Entry}}';
{{- end}}
` + HaltToken + `
`

// ErrMissingHaltToken is returned for stubs that do not contain HaltToken.
var ErrMissingHaltToken = errors.New("stub does not contain " + HaltToken)

// StubData is the input of a stub template.
type StubData struct {
	// Alias is the name the runtime maps the archive under.
	Alias string
	// Entry is the script executed from inside the archive; empty for
	// library-only archives.
	Entry string
}

// RenderStub executes tmpl (DefaultStubTemplate when empty) with data.
func RenderStub(tmpl string, data StubData) (string, error) {
	if tmpl == "" {
		tmpl = DefaultStubTemplate
	}
	t, err := template.New("stub").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing stub template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering stub template: %w", err)
	}
	return buf.String(), nil
}

// normalizeStub cuts everything after HaltToken and appends the fixed suffix
// so readers can find where the payload starts.
func normalizeStub(stub string) ([]byte, error) {
	idx := strings.Index(stub, HaltToken)
	if idx < 0 {
		return nil, ErrMissingHaltToken
	}
	return []byte(stub[:idx+len(HaltToken)] + haltSuffix), nil
}
