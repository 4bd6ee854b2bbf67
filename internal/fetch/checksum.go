// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxManifestSize bounds checksum manifests read from a source.
const maxManifestSize = 1 << 20

var (
	// ErrChecksumMismatch indicates a downloaded image does not hash to the published value.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrNoChecksum indicates the manifest has no line for the requested image.
	ErrNoChecksum = errors.New("image not listed in checksum manifest")
)

// ChecksumError describes a failed digest comparison.
// It wraps ErrChecksumMismatch and ErrCorrupt.
type ChecksumError struct {
	Name     string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.Name, e.Expected, e.Got)
}

// Unwrap reports both the mismatch and the corrupt-image classification.
func (e *ChecksumError) Unwrap() []error { return []error{ErrChecksumMismatch, ErrCorrupt} }

// Manifest maps image names to lowercase hex SHA-256 digests.
type Manifest map[string]string

// ParseManifest reads sha256sum output ("<hex>  <name>" or "<hex> *<name>").
// Lines that do not parse are skipped.
func ParseManifest(r io.Reader) (Manifest, error) {
	m := Manifest{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || !isSHA256Hex(fields[0]) {
			continue
		}
		name := strings.TrimPrefix(fields[1], "*")
		if name == "" {
			continue
		}
		m[name] = strings.ToLower(fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksum manifest: %w", err)
	}
	return m, nil
}

// FetchManifest downloads and parses the manifest called name from src.
func FetchManifest(ctx context.Context, src Source, name string) (Manifest, error) {
	rc, _, err := src.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetching checksum manifest %s: %w", src.Location(name), err)
	}
	defer func() { _ = rc.Close() }()
	return ParseManifest(io.LimitReader(rc, maxManifestSize))
}

// Verify compares the digest of the file at path against the entry for name.
func (m Manifest) Verify(name, path string) error {
	want, ok := m[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoChecksum, name)
	}
	got, err := fileSHA256(path)
	if err != nil {
		return err
	}
	if got != want {
		return &ChecksumError{Name: name, Expected: want, Got: got}
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
