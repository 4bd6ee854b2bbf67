// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sfxpack/sfxpack/pkg/platform"
)

// partSuffix marks in-flight downloads.
const partSuffix = ".part"

type (
	// ProgressFunc receives byte counts while a download runs. total is -1
	// when the source did not announce a size.
	ProgressFunc func(written, total int64)

	// Downloader materializes runtime images on disk, reusing whatever is
	// already present.
	Downloader struct {
		source       Source
		progress     ProgressFunc
		timeout      time.Duration
		manifestSrc  Source
		manifestName string
		logger       *slog.Logger
	}

	// Option configures a Downloader during construction.
	Option func(*Downloader)

	// Request describes one image to materialize.
	Request struct {
		// Name is the object name on the source, including any archive extension.
		Name string
		// Compression tells how the object is packed.
		Compression Compression
		// Dest is the final unpacked path.
		Dest string
		// KeepArchive leaves the packed object next to Dest for later reuse.
		KeepArchive bool
		// Executable marks Dest as executable where the platform supports it.
		Executable bool
	}

	// Result reports what Ensure did.
	Result struct {
		Path       string
		Downloaded bool
		Extracted  bool
		Bytes      int64
	}
)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = fn
	}
}

// WithTimeout bounds each transfer. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Downloader) {
		d.timeout = timeout
	}
}

// WithChecksums verifies every download against the sha256sum manifest
// called name on src. A nil src means the image source itself.
func WithChecksums(src Source, name string) Option {
	return func(d *Downloader) {
		d.manifestSrc, d.manifestName = src, name
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = l
	}
}

// NewDownloader creates a Downloader reading from src.
func NewDownloader(src Source, opts ...Option) *Downloader {
	d := &Downloader{
		source: src,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.manifestName != "" && d.manifestSrc == nil {
		d.manifestSrc = src
	}
	return d
}

// ArchivePath returns where the packed form of req is cached.
func (r Request) ArchivePath() string {
	return r.Dest + r.Compression.Ext()
}

// Ensure makes req.Dest exist. When Dest is already present no request is
// made. A cached packed object is extracted without downloading it again.
// A packed object that fails to decode is removed so the next run fetches it
// afresh.
func (d *Downloader) Ensure(ctx context.Context, req Request) (Result, error) {
	res := Result{Path: req.Dest}
	if fileExists(req.Dest) {
		d.logger.Debug("runtime image already present", "path", req.Dest)
		return res, nil
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return res, err
	}

	if req.Compression == CompressionNone {
		n, err := d.download(ctx, req.Name, req.Dest)
		if err != nil {
			return res, err
		}
		res.Downloaded, res.Bytes = true, n
		return res, d.finish(req)
	}

	archive := req.ArchivePath()
	if !fileExists(archive) {
		n, err := d.download(ctx, req.Name, archive)
		if err != nil {
			return res, err
		}
		res.Downloaded, res.Bytes = true, n
	} else {
		d.logger.Debug("reusing cached runtime archive", "path", archive)
	}

	if err := Extract(archive, req.Dest, req.Compression); err != nil {
		if errors.Is(err, ErrCorrupt) {
			_ = os.Remove(archive)
		}
		return res, err
	}
	res.Extracted = true

	if !req.KeepArchive {
		if err := os.Remove(archive); err != nil && !errors.Is(err, os.ErrNotExist) {
			return res, err
		}
	}
	return res, d.finish(req)
}

func (d *Downloader) finish(req Request) error {
	if req.Executable && platform.SupportsExecBit() {
		return os.Chmod(req.Dest, 0o755)
	}
	return nil
}

// download copies name from the source into dst via dst+".part".
func (d *Downloader) download(ctx context.Context, name, dst string) (n int64, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var manifest Manifest
	if d.manifestName != "" {
		if manifest, err = FetchManifest(ctx, d.manifestSrc, d.manifestName); err != nil {
			return 0, err
		}
	}

	d.logger.Debug("downloading runtime image", "from", d.source.Location(name), "to", dst)
	rc, size, err := d.source.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	part := dst + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(part)
		}
	}()

	n, err = io.Copy(f, &progressReader{r: rc, total: size, fn: d.progress})
	if err != nil {
		return n, d.classifyCopyError(ctx, name, err)
	}
	if size >= 0 && n != size {
		err = fmt.Errorf("%w: %s: got %d of %d bytes", ErrIncomplete, d.source.Location(name), n, size)
		return n, err
	}
	if err = f.Close(); err != nil {
		return n, err
	}
	if manifest != nil {
		if err = manifest.Verify(name, part); err != nil {
			return n, err
		}
	}
	if err = os.Rename(part, dst); err != nil {
		return n, err
	}
	return n, nil
}

func (d *Downloader) classifyCopyError(ctx context.Context, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrIncomplete, d.source.Location(name), ctxErr)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "connection reset") {
		return fmt.Errorf("%w: %s: %w", ErrIncomplete, d.source.Location(name), err)
	}
	return err
}

type progressReader struct {
	r       io.Reader
	written int64
	total   int64
	fn      ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.written += int64(n)
		if p.fn != nil {
			p.fn(p.written, p.total)
		}
	}
	return n, err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
