// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/sfxpack/sfxpack/pkg/platform"
)

const hostVersionTimeout = 10 * time.Second

// hostVersionScript prints MAJOR.MINOR of the running interpreter.
const hostVersionScript = `echo PHP_MAJOR_VERSION . "." . PHP_MINOR_VERSION;`

// ErrInvalidVersion is returned for strings that are not MAJOR[.MINOR[.PATCH]].
var ErrInvalidVersion = errors.New("invalid runtime version")

// NormalizeVersion reduces v to MAJOR.MINOR. "8" becomes "8.0"; a leading
// "v" and any patch component are dropped.
func NormalizeVersion(v string) (string, error) {
	canon := "v" + strings.TrimPrefix(strings.TrimSpace(v), "v")
	if !semver.IsValid(canon) || semver.Prerelease(canon) != "" || semver.Build(canon) != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return strings.TrimPrefix(semver.MajorMinor(canon), "v"), nil
}

// CompareVersions compares two MAJOR.MINOR versions like semver.Compare.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// ResolveVersion normalizes v and replaces anything below floor with
// fallback. An empty v resolves to fallback.
func ResolveVersion(v, floor, fallback string) (string, error) {
	fb, err := NormalizeVersion(fallback)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return fb, nil
	}
	nv, err := NormalizeVersion(v)
	if err != nil {
		return "", err
	}
	fl, err := NormalizeVersion(floor)
	if err != nil {
		return "", err
	}
	if CompareVersions(nv, fl) < 0 {
		return fb, nil
	}
	return nv, nil
}

// ClampVersion returns the larger of v and floor.
func ClampVersion(v, floor string) (string, error) {
	fl, err := NormalizeVersion(floor)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return fl, nil
	}
	nv, err := NormalizeVersion(v)
	if err != nil {
		return "", err
	}
	if CompareVersions(nv, fl) < 0 {
		return fl, nil
	}
	return nv, nil
}

// HostVersion asks the host interpreter for its MAJOR.MINOR version.
// It returns "" when the interpreter is missing or prints something else.
func HostVersion(ctx context.Context, binary string) string {
	if binary == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, hostVersionTimeout)
	defer cancel()

	name, args := platform.HostCommand(binary, "-r", hostVersionScript)
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	v, err := NormalizeVersion(string(out))
	if err != nil {
		return ""
	}
	return v
}

// ImageName substitutes version into a "{version}" name template.
func ImageName(template, version string) string {
	return strings.ReplaceAll(template, "{version}", version)
}

// IsImageFile reports whether base names a runtime image produced from
// template for some version, in unpacked, packed or in-flight form.
func IsImageFile(template, base string) bool {
	base = strings.TrimSuffix(base, partSuffix)
	for _, c := range []Compression{CompressionZip, CompressionZstd} {
		base = strings.TrimSuffix(base, c.Ext())
	}
	prefix, suffix, ok := strings.Cut(template, "{version}")
	if !ok {
		return base == template
	}
	if len(base) <= len(prefix)+len(suffix) {
		return false
	}
	return strings.HasPrefix(base, prefix) && strings.HasSuffix(base, suffix)
}
