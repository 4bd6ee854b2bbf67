// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"slices"
	"testing"
)

func TestIsReservedName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bool
	}{
		{"con", true},
		{"CON.phar", true},
		{"nul.bin", true},
		{"com1.tar.gz", true},
		{"lpt9", true},
		{"localzet.phar", false},
		{"console.bin", false},
		{"com10", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsReservedName(tt.input); got != tt.expected {
			t.Errorf("IsReservedName(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestDetectSandboxFrom(t *testing.T) {
	t.Parallel()

	missing := func(string) error { return errors.New("missing") }
	present := func(string) error { return nil }
	noEnv := func(string) string { return "" }
	snapEnv := func(k string) string {
		if k == "SNAP_NAME" {
			return "sfxpack"
		}
		return ""
	}

	if got := detectSandboxFrom(noEnv, missing); got != SandboxNone {
		t.Errorf("no sandbox: got %q", got)
	}
	if got := detectSandboxFrom(snapEnv, missing); got != SandboxSnap {
		t.Errorf("snap: got %q", got)
	}
	if got := detectSandboxFrom(snapEnv, present); got != SandboxFlatpak {
		t.Errorf("flatpak should take precedence: got %q", got)
	}
}

func TestHostCommandFor(t *testing.T) {
	t.Parallel()

	name, args := hostCommandFor(SandboxNone, "php", "--ini")
	if name != "php" || !slices.Equal(args, []string{"--ini"}) {
		t.Errorf("no sandbox: got %s %v", name, args)
	}

	name, args = hostCommandFor(SandboxFlatpak, "php", "--ini")
	if name != "flatpak-spawn" || !slices.Equal(args, []string{"--host", "php", "--ini"}) {
		t.Errorf("flatpak: got %s %v", name, args)
	}
}
