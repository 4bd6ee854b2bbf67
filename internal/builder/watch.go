// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"path/filepath"
	"strings"

	"github.com/sfxpack/sfxpack/internal/issue"
)

// IgnoreFunc reports whether a change to the slash-separated path rel,
// relative to the input directory, can affect the next build.
type IgnoreFunc func(rel string, isDir bool) bool

// WatchFilter returns the ignore rule for rebuild-on-change: the output
// directory, VCS metadata and the builder's own artifacts are ignored, as
// are files the inclusion pattern would not collect.
func (b *Builder) WatchFilter() (IgnoreFunc, error) {
	m, err := NewMatcher(b.cfg.ExcludePattern)
	if err != nil {
		return nil, failure(issue.KindConfiguration, "compile exclude pattern", "", err,
			"Fix build.exclude_pattern or remove it to use the default exclusions")
	}

	return func(rel string, isDir bool) bool {
		if rel == "." || rel == "" {
			return false
		}
		abs := filepath.Join(b.cfg.InputDir, filepath.FromSlash(rel))
		if out := b.cfg.OutputDir; out != "" && out != b.cfg.InputDir {
			if abs == out || strings.HasPrefix(abs, out+string(filepath.Separator)) {
				return true
			}
		}
		if first, _, _ := strings.Cut(rel, "/"); first == ".git" {
			return true
		}
		if isDir {
			return false
		}
		if b.isOwnOutput(abs) {
			return true
		}
		ok, err := m.Include(rel)
		return err != nil || !ok
	}, nil
}
