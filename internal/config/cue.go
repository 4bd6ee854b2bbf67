// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
)

// maxConfigFileSize bounds config files read from disk.
const maxConfigFileSize = 1 << 20

// schemaDef compiles the embedded #Config definition once per process. A
// CUE context is not safe for concurrent use, so callers hold schemaMu.
var (
	schemaMu  sync.Mutex
	schemaDef = sync.OnceValues(func() (cue.Value, error) {
		v := cuecontext.New().CompileString(configSchema)
		if v.Err() != nil {
			return cue.Value{}, fmt.Errorf("compiling config schema: %w", v.Err())
		}
		return v.LookupPath(cue.ParsePath("#Config")), nil
	})
)

// loadCUEIntoViper validates the CUE file at path and merges it over the
// values already in v, so defaults survive and env overrides still apply.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("%s: %d bytes is over the %d byte limit", path, info.Size(), maxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	m, err := decodeCUE(data, path)
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}
	return nil
}

// decodeCUE unifies data with #Config and decodes the result. Fields need
// not be concrete since every setting is optional.
func decodeCUE(data []byte, path string) (map[string]any, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	schema, err := schemaDef()
	if err != nil {
		return nil, err
	}
	doc := schema.Context().CompileBytes(data, cue.Filename(path))
	if doc.Err() != nil {
		return nil, formatCUEError(doc.Err(), path)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err, path)
	}
	var out map[string]any
	if err := unified.Decode(&out); err != nil {
		return nil, formatCUEError(err, path)
	}
	return out, nil
}

// formatCUEError renders CUE errors as "<file>: <field.path>: <message>" lines.
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", path, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.Join(cueerrors.Path(e), ".")
		msg := e.Error()
		if field != "" {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, field), ":"))
			lines = append(lines, field+": "+msg)
			continue
		}
		lines = append(lines, msg)
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", path, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", path, strings.Join(lines, "\n  "))
}
