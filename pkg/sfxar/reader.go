// SPDX-License-Identifier: MPL-2.0

package sfxar

import (
	"bytes"
	"crypto"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/klauspost/compress/zip"
)

// maxStubSize bounds the search for the end of the stub.
const maxStubSize = 1 << 20

// ErrNotArchive is returned by Open for files without a valid trailer or stub.
var ErrNotArchive = errors.New("not an sfx archive")

// Archive is an opened archive. Close releases the underlying file.
type Archive struct {
	// Stub is the bootstrap script including the halt suffix.
	Stub string
	// Algorithm is the signature algorithm recorded in the trailer.
	Algorithm Algorithm
	// Signature is the raw trailer signature.
	Signature []byte

	f         *os.File
	zr        *zip.Reader
	signedLen int64
}

// Open opens the archive at path and parses its trailer, stub and payload
// directory. The signature is not checked; call Verify for that.
func Open(path string) (_ *Archive, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	a, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	a.f = f
	return a, nil
}

func parse(r interface {
	io.ReaderAt
	Stat() (os.FileInfo, error)
},
) (*Archive, error) {
	info, err := r.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < int64(trailerSize) {
		return nil, ErrNotArchive
	}

	tail := make([]byte, trailerSize)
	if _, err := r.ReadAt(tail, size-int64(trailerSize)); err != nil {
		return nil, fmt.Errorf("reading trailer: %w", err)
	}
	if string(tail[8:]) != trailerMagic {
		return nil, ErrNotArchive
	}
	sigLen := int64(binary.LittleEndian.Uint32(tail[0:4]))
	alg := Algorithm(binary.LittleEndian.Uint32(tail[4:8]))
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: trailer flags %#x", ErrUnsupportedAlgorithm, uint32(alg))
	}
	signedLen := size - int64(trailerSize) - sigLen
	if signedLen < 0 {
		return nil, ErrNotArchive
	}

	sig := make([]byte, sigLen)
	if _, err := r.ReadAt(sig, signedLen); err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}

	head := make([]byte, min(signedLen, maxStubSize))
	if _, err := r.ReadAt(head, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading stub: %w", err)
	}
	end := bytes.Index(head, []byte(HaltToken+haltSuffix))
	if end < 0 {
		return nil, ErrNotArchive
	}
	stub := string(head[:end+len(HaltToken)+len(haltSuffix)])

	zr, err := zip.NewReader(io.NewSectionReader(r, 0, signedLen), signedLen)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	return &Archive{
		Stub:      stub,
		Algorithm: alg,
		Signature: sig,
		zr:        zr,
		signedLen: signedLen,
	}, nil
}

// Names returns the entry names in archive order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.zr.File))
	for _, zf := range a.zr.File {
		names = append(names, zf.Name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether the archive contains name.
func (a *Archive) Has(name string) bool {
	_, err := a.find(name)
	return err == nil
}

// ReadFile returns the contents of entry name.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	zf, err := a.find(name)
	if err != nil {
		return nil, err
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }() // read-only entry

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", name, err)
	}
	return data, nil
}

// Verify recomputes the digest of stub and payload and checks it against the
// trailer signature. pub is only used for PrivateKey signatures.
func (a *Archive) Verify(pub crypto.PublicKey) error {
	var signer Signer
	if a.Algorithm == PrivateKey {
		signer = keySigner{}
	} else {
		signer = hashSigner{alg: a.Algorithm}
	}
	h := signer.Hash()
	if _, err := io.Copy(h, io.NewSectionReader(a.f, 0, a.signedLen)); err != nil {
		return fmt.Errorf("hashing archive: %w", err)
	}
	return verifySignature(a.Algorithm, pub, h.Sum(nil), a.Signature)
}

// Close closes the underlying file.
func (a *Archive) Close() error {
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

func (a *Archive) find(name string) (*zip.File, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	for _, zf := range a.zr.File {
		if zf.Name == clean {
			return zf, nil
		}
	}
	return nil, fmt.Errorf("entry %s: %w", clean, os.ErrNotExist)
}
