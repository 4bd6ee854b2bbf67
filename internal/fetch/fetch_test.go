// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

var runtimeBytes = bytes.Repeat([]byte("\x7fELF-micro-runtime"), 512)

func zipImage(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstdImage(t *testing.T, content []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(content, nil)
}

// serveFiles serves files by name and counts requests.
func serveFiles(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		data, ok := files[filepath.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestEnsure_DownloadsExtractsAndCaches(t *testing.T) {
	t.Parallel()

	srv, hits := serveFiles(t, map[string][]byte{
		"php8.2.micro.sfx.zip": zipImage(t, "php8.2.micro.sfx", runtimeBytes),
	})
	dir := t.TempDir()
	var lastWritten, lastTotal int64
	d := NewDownloader(NewHTTPSource(srv.URL), WithProgress(func(w, total int64) {
		lastWritten, lastTotal = w, total
	}))

	req := Request{
		Name:        "php8.2.micro.sfx.zip",
		Compression: CompressionZip,
		Dest:        filepath.Join(dir, "php8.2.micro.sfx"),
		KeepArchive: true,
	}
	res, err := d.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if !res.Downloaded || !res.Extracted {
		t.Errorf("result = %+v, want downloaded and extracted", res)
	}
	got, err := os.ReadFile(req.Dest)
	if err != nil || !bytes.Equal(got, runtimeBytes) {
		t.Fatalf("extracted image mismatch (err=%v)", err)
	}
	if !fileExists(req.ArchivePath()) {
		t.Error("archive should be kept when KeepArchive is set")
	}
	if lastWritten == 0 || lastWritten != lastTotal {
		t.Errorf("progress = %d/%d, want complete", lastWritten, lastTotal)
	}

	// A present image means no further requests.
	before := hits.Load()
	res, err = d.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if res.Downloaded || res.Extracted || hits.Load() != before {
		t.Errorf("second Ensure() touched the network: %+v, hits %d -> %d", res, before, hits.Load())
	}

	// A cached archive is extracted without downloading.
	if err := os.Remove(req.Dest); err != nil {
		t.Fatal(err)
	}
	res, err = d.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("third Ensure() error: %v", err)
	}
	if res.Downloaded || !res.Extracted || hits.Load() != before {
		t.Errorf("cached archive should be reused: %+v", res)
	}
}

func TestEnsure_RemovesArchiveUnlessKept(t *testing.T) {
	t.Parallel()

	srv, _ := serveFiles(t, map[string][]byte{
		"php8.3.micro.sfx.zst": zstdImage(t, runtimeBytes),
	})
	dir := t.TempDir()
	req := Request{
		Name:        "php8.3.micro.sfx.zst",
		Compression: CompressionZstd,
		Dest:        filepath.Join(dir, "php8.3.micro.sfx"),
		Executable:  true,
	}
	if _, err := NewDownloader(NewHTTPSource(srv.URL)).Ensure(context.Background(), req); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if fileExists(req.ArchivePath()) {
		t.Error("compressed image should be deleted")
	}
	info, err := os.Stat(req.Dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("mode = %v, want executable", info.Mode())
	}
}

func TestEnsure_Uncompressed(t *testing.T) {
	t.Parallel()

	srv, _ := serveFiles(t, map[string][]byte{"php-8.2": runtimeBytes})
	dest := filepath.Join(t.TempDir(), "php-8.2")
	res, err := NewDownloader(NewHTTPSource(srv.URL)).Ensure(context.Background(), Request{
		Name: "php-8.2", Compression: CompressionNone, Dest: dest,
	})
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if res.Bytes != int64(len(runtimeBytes)) || res.Extracted {
		t.Errorf("result = %+v", res)
	}
}

func TestEnsure_Errors(t *testing.T) {
	t.Parallel()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	partial := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte("only a little"))
	}))
	t.Cleanup(partial.Close)

	files, _ := serveFiles(t, map[string][]byte{"garbage.zip": []byte("not a zip archive at all")})

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(failing.Close)

	tests := []struct {
		name string
		base string
		file string
		want error
	}{
		{"unreachable", closedURL, "php8.2.micro.sfx.zip", ErrUnreachable},
		{"not found", files.URL, "php9.9.micro.sfx.zip", ErrNotFound},
		{"bad status", failing.URL, "php8.2.micro.sfx.zip", ErrBadStatus},
		{"partial transfer", partial.URL, "php8.2.micro.sfx.zip", ErrIncomplete},
		{"corrupt archive", files.URL, "garbage.zip", ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			req := Request{Name: tt.file, Compression: CompressionZip, Dest: filepath.Join(dir, "image")}
			_, err := NewDownloader(NewHTTPSource(tt.base)).Ensure(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Ensure() error = %v, want %v", err, tt.want)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("failed fetch left files behind: %v", entries)
			}
		})
	}
}

func TestEnsure_Checksums(t *testing.T) {
	t.Parallel()

	image := zipImage(t, "php8.2.micro.sfx", runtimeBytes)
	sum := sha256.Sum256(image)
	good := hex.EncodeToString(sum[:]) + "  php8.2.micro.sfx.zip\n"
	bad := "0000000000000000000000000000000000000000000000000000000000000000  php8.2.micro.sfx.zip\n"

	srv, _ := serveFiles(t, map[string][]byte{
		"php8.2.micro.sfx.zip": image,
		"SHA256SUMS":           []byte(good),
		"BAD256SUMS":           []byte(bad),
	})

	dir := t.TempDir()
	req := Request{Name: "php8.2.micro.sfx.zip", Compression: CompressionZip, Dest: filepath.Join(dir, "php8.2.micro.sfx")}
	if _, err := NewDownloader(NewHTTPSource(srv.URL), WithChecksums(nil, "SHA256SUMS")).Ensure(context.Background(), req); err != nil {
		t.Fatalf("Ensure() with valid checksum error: %v", err)
	}

	dir = t.TempDir()
	req.Dest = filepath.Join(dir, "php8.2.micro.sfx")
	_, err := NewDownloader(NewHTTPSource(srv.URL), WithChecksums(nil, "BAD256SUMS")).Ensure(context.Background(), req)
	var ce *ChecksumError
	if !errors.As(err, &ce) || !errors.Is(err, ErrChecksumMismatch) || !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Ensure() error = %v, want *ChecksumError", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("mismatching download left files behind: %v", entries)
	}
}

func TestEnsure_Canceled(t *testing.T) {
	t.Parallel()

	srv, _ := serveFiles(t, map[string][]byte{"x.zip": zipImage(t, "x", runtimeBytes)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDownloader(NewHTTPSource(srv.URL)).Ensure(ctx, Request{
		Name: "x.zip", Compression: CompressionZip, Dest: filepath.Join(t.TempDir(), "x"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Ensure() error = %v, want context.Canceled", err)
	}
}

func TestDirSource(t *testing.T) {
	t.Parallel()

	mirror := t.TempDir()
	if err := os.WriteFile(filepath.Join(mirror, "php-8.1"), runtimeBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := NewSource("file://" + filepath.ToSlash(mirror))
	if err != nil {
		t.Fatal(err)
	}
	rc, size, err := src.Open(context.Background(), "php-8.1")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if size != int64(len(runtimeBytes)) || !bytes.Equal(data, runtimeBytes) {
		t.Error("dir source returned wrong content")
	}
	if _, _, err := src.Open(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNewSource_Schemes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://example.com/php", "*fetch.HTTPSource", false},
		{"s3://bucket/images", "*fetch.S3Source", false},
		{"file:///srv/mirror", "*fetch.DirSource", false},
		{"ftp://example.com", "", true},
		{"s3:///no-bucket", "", true},
	}
	for _, tt := range tests {
		src, err := NewSource(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewSource(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if err == nil {
			if got := fmt.Sprintf("%T", src); got != tt.want {
				t.Errorf("NewSource(%q) = %s, want %s", tt.url, got, tt.want)
			}
		}
	}
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	hash := "ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	m, err := ParseManifest(bytes.NewBufferString("# comment\n" + hash + "  a.zip\n" + hash + " *b.zip\nbroken line\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 2 || m["a.zip"] != m["b.zip"] || m["a.zip"][0] != 'a' {
		t.Errorf("ParseManifest() = %v", m)
	}
	if err := m.Verify("c.zip", "/nonexistent"); !errors.Is(err, ErrNoChecksum) {
		t.Errorf("Verify(unlisted) error = %v, want ErrNoChecksum", err)
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Compression{"": CompressionZip, "ZIP": CompressionZip, "zstd": CompressionZstd, "none": CompressionNone} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseCompression("rar"); err == nil {
		t.Error("ParseCompression(rar) should fail")
	}
}
