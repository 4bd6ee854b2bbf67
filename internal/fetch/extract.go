// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Compression names how a runtime image is packed on the source.
type Compression string

const (
	CompressionZip  Compression = "zip"
	CompressionZstd Compression = "zstd"
	CompressionNone Compression = "none"
)

// ParseCompression accepts the image_archive config values.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case CompressionZip, CompressionZstd, CompressionNone:
		return c, nil
	case "":
		return CompressionZip, nil
	default:
		return "", fmt.Errorf("unknown image archive format %q (expected zip, zstd or none)", s)
	}
}

// Ext returns the file extension the packed image carries.
func (c Compression) Ext() string {
	switch c {
	case CompressionZip:
		return ".zip"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// Extract unpacks src into dst. A partially written dst is removed on failure.
// Decoding failures wrap ErrCorrupt.
func Extract(src, dst string, c Compression) error {
	switch c {
	case CompressionZip:
		return extractZip(src, dst)
	case CompressionZstd:
		return extractZstd(src, dst)
	default:
		return fmt.Errorf("nothing to extract for compression %q", c)
	}
}

func extractZip(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s: %w", ErrCorrupt, src, err)
		}
		return err
	}
	defer func() { _ = zr.Close() }()

	member := pickMember(zr.File, filepath.Base(dst))
	if member == nil {
		return fmt.Errorf("%w: %s contains no files", ErrCorrupt, src)
	}

	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, member.Name, err)
	}
	defer func() { _ = rc.Close() }()

	return writeAtomically(dst, rc)
}

// pickMember prefers the entry named like the target, then the only or first regular file.
func pickMember(files []*zip.File, want string) *zip.File {
	var first *zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if filepath.Base(f.Name) == want {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}

func extractZstd(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, src, err)
	}
	defer dec.Close()

	return writeAtomically(dst, dec)
}

// writeAtomically streams r into dst through a sibling temporary file.
func writeAtomically(dst string, r io.Reader) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = copyPayload(tmp, r); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// copyPayload copies the decoded image r into w. Only failures reading r
// wrap ErrCorrupt; write failures are returned as they are.
func copyPayload(w io.Writer, r io.Reader) error {
	_, err := io.Copy(w, sourceReader{r: r})
	var se *sourceError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", ErrCorrupt, se.err)
	}
	return err
}

// sourceError marks a failure on the decoding side of a copy.
type sourceError struct{ err error }

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

type sourceReader struct{ r io.Reader }

func (s sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = &sourceError{err: err}
	}
	return n, err
}
