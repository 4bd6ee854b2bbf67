// SPDX-License-Identifier: MPL-2.0

package sfxar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

const (
	trailerMagic = "GBMB"
	trailerSize  = 4 + 4 + len(trailerMagic)
)

// ErrInvalidName is returned for entry names that escape the archive root.
var ErrInvalidName = errors.New("invalid entry name")

// modTime is stamped on every entry so identical inputs give identical bytes.
var modTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type (
	// Writer buffers entries and writes the archive in a single Flush.
	// A Writer is not safe for concurrent use.
	Writer struct {
		path    string
		stub    []byte
		signer  Signer
		entries map[string]entry
	}

	entry struct {
		file string // source file on disk, or empty when data is set
		data []byte
	}
)

// NewWriter returns a Writer targeting path. Nothing is written until Flush.
// The default stub is rendered with an empty alias, and the default signer
// is SHA-256.
func NewWriter(path string) *Writer {
	stub, _ := normalizeStub(HaltToken)
	signer, _ := HashSigner(SHA256)
	return &Writer{
		path:    path,
		stub:    stub,
		signer:  signer,
		entries: make(map[string]entry),
	}
}

// SetStub sets the bootstrap script. It must contain HaltToken; anything
// after the token is dropped.
func (w *Writer) SetStub(stub string) error {
	normalized, err := normalizeStub(stub)
	if err != nil {
		return err
	}
	w.stub = normalized
	return nil
}

// SetSigner replaces the signer.
func (w *Writer) SetSigner(s Signer) {
	w.signer = s
}

// AddFile adds the file at src under name. The file is read during Flush.
func (w *Writer) AddFile(name, src string) error {
	clean, err := CleanName(name)
	if err != nil {
		return err
	}
	w.entries[clean] = entry{file: src}
	return nil
}

// AddBytes adds data under name.
func (w *Writer) AddBytes(name string, data []byte) error {
	clean, err := CleanName(name)
	if err != nil {
		return err
	}
	w.entries[clean] = entry{data: data}
	return nil
}

// Delete removes name and reports whether it was present.
func (w *Writer) Delete(name string) bool {
	clean, err := CleanName(name)
	if err != nil {
		return false
	}
	if _, ok := w.entries[clean]; !ok {
		return false
	}
	delete(w.entries, clean)
	return true
}

// Has reports whether name is buffered.
func (w *Writer) Has(name string) bool {
	clean, err := CleanName(name)
	if err != nil {
		return false
	}
	_, ok := w.entries[clean]
	return ok
}

// Len returns the number of buffered entries.
func (w *Writer) Len() int {
	return len(w.entries)
}

// Names returns the buffered entry names in archive order.
func (w *Writer) Names() []string {
	names := make([]string, 0, len(w.entries))
	for name := range w.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Flush writes stub, payload and trailer to a temporary file next to the
// target and renames it into place. On error the target is left untouched.
func (w *Writer) Flush() (err error) {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary archive: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = w.writeTo(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary archive: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting archive permissions: %w", err)
	}
	if err = os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("moving archive into place: %w", err)
	}
	return nil
}

func (w *Writer) writeTo(dst io.Writer) error {
	h := w.signer.Hash()
	signed := io.MultiWriter(dst, h)

	if _, err := signed.Write(w.stub); err != nil {
		return fmt.Errorf("writing stub: %w", err)
	}

	zw := zip.NewWriter(signed)
	zw.SetOffset(int64(len(w.stub)))
	for _, name := range w.Names() {
		if err := writeEntry(zw, name, w.entries[name]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing payload: %w", err)
	}

	sig, err := w.signer.Sign(h.Sum(nil))
	if err != nil {
		return err
	}

	trailer := make([]byte, 0, len(sig)+trailerSize)
	trailer = append(trailer, sig...)
	trailer = binary.LittleEndian.AppendUint32(trailer, uint32(len(sig)))
	trailer = binary.LittleEndian.AppendUint32(trailer, uint32(w.signer.Algorithm()))
	trailer = append(trailer, trailerMagic...)
	if _, err := dst.Write(trailer); err != nil {
		return fmt.Errorf("writing signature: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, e entry) error {
	fh := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modTime,
	}
	fh.SetMode(0o644)

	out, err := zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}

	if e.file == "" {
		if _, err := out.Write(e.data); err != nil {
			return fmt.Errorf("adding %s: %w", name, err)
		}
		return nil
	}

	f, err := os.Open(e.file)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	defer func() { _ = f.Close() }() // read-only source file

	if _, err := io.Copy(out, f); err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	return nil
}

// CleanName converts name to the slash-separated, root-relative form used
// inside archives. Names that are empty or escape the root are rejected.
func CleanName(name string) (string, error) {
	n := path.Clean(strings.TrimLeft(filepath.ToSlash(name), "/"))
	if n == "." || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return n, nil
}
