// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sfxpack/sfxpack/internal/fetch"
	"github.com/sfxpack/sfxpack/internal/issue"
	"github.com/sfxpack/sfxpack/pkg/platform"
)

// iniMagic introduces an embedded runtime configuration block.
var iniMagic = [4]byte{0xfd, 0xf6, 0x69, 0xe6}

// INIHeader returns the block embedded between runtime image and archive:
// magic, big-endian length, then the ini text. Empty ini yields nil.
func INIHeader(ini string) []byte {
	if ini == "" {
		return nil
	}
	out := make([]byte, 0, 8+len(ini))
	out = append(out, iniMagic[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(ini)))
	return append(out, ini...)
}

// BuildBinary builds the archive and prepends the runtime image for
// version (empty means the configured or host version).
func (b *Builder) BuildBinary(ctx context.Context, version string) (*Result, error) {
	p, err := b.prepare()
	if err != nil {
		return nil, err
	}
	if err := checkArtifactName(b.cfg.BinaryFilename); err != nil {
		return nil, failure(issue.KindConfiguration, "name binary", b.cfg.BinaryFilename, err,
			"Set build.binary_filename to a plain file name")
	}
	compression, err := fetch.ParseCompression(b.cfg.Runtime.ImageArchive)
	if err != nil {
		return nil, failure(issue.KindConfiguration, "select runtime image format", "", err)
	}
	resolved, err := b.resolveVersion(ctx, version)
	if err != nil {
		return nil, failure(issue.KindConfiguration, "resolve runtime version", version, err,
			"Pass a version like 8.2")
	}
	version = resolved
	src, err := b.imageSource()
	if err != nil {
		return nil, failure(issue.KindConfiguration, "configure runtime source", b.cfg.Runtime.ImageBaseURL, err,
			"Set runtime.image_base_url to an http(s), s3 or file URL")
	}

	lock, err := b.lockOutput()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	res, err := b.buildArchive(ctx, p)
	if err != nil {
		return nil, err
	}
	res.RuntimeVersion = version

	image, err := b.ensureImage(ctx, src, compression, version)
	if err != nil {
		return nil, err
	}

	binPath := b.cfg.BinaryPath()
	if err := removeIfExists(binPath); err != nil {
		return nil, failure(issue.KindIO, "remove previous binary", binPath, err)
	}
	if err := writeBinary(binPath, image, INIHeader(b.cfg.CustomINI), res.ArchivePath); err != nil {
		return nil, failure(issue.KindIO, "write binary", binPath, err)
	}
	b.emit(Event{Stage: StageWritten, Message: "binary written to " + binPath})
	res.BinaryPath = binPath
	return res, nil
}

func (b *Builder) resolveVersion(ctx context.Context, override string) (string, error) {
	v := override
	if v == "" {
		v = b.cfg.RuntimeVersion
	}
	if v == "" && b.hostVersion != nil {
		v = b.hostVersion(ctx)
		b.logger.Debug("detected host runtime version", "version", v)
	}
	return fetch.ResolveVersion(v, b.cfg.Runtime.MinVersion, b.cfg.Runtime.FallbackVersion)
}

func (b *Builder) imageSource() (fetch.Source, error) {
	if b.source != nil {
		return b.source, nil
	}
	var opts []fetch.HTTPOption
	if b.userAgent != "" {
		opts = append(opts, fetch.WithUserAgent(b.userAgent))
	}
	return fetch.NewSource(b.cfg.Runtime.ImageBaseURL, opts...)
}

// ensureImage returns the path of the unpacked runtime image, downloading
// and unpacking it into the output directory when needed. The packed image
// stays cached next to it.
func (b *Builder) ensureImage(ctx context.Context, src fetch.Source, c fetch.Compression, version string) (string, error) {
	name := fetch.ImageName(b.cfg.Runtime.ImageName, version)
	req := fetch.Request{
		Name:        name + c.Ext(),
		Compression: c,
		Dest:        filepath.Join(b.cfg.OutputDir, name),
		KeepArchive: true,
	}

	opts := []fetch.Option{
		fetch.WithTimeout(b.cfg.Runtime.Timeout),
		fetch.WithLogger(b.logger),
		fetch.WithProgress(func(written, total int64) {
			b.emit(Event{Stage: StageDownloading, Message: req.Name, Written: written, Total: total})
		}),
	}
	if u := b.cfg.Runtime.ChecksumsURL; u != "" {
		base, manifest := fetch.SplitLocation(u)
		msrc, err := fetch.NewSource(base)
		if err != nil {
			return "", failure(issue.KindConfiguration, "configure checksum manifest", u, err)
		}
		opts = append(opts, fetch.WithChecksums(msrc, manifest))
	}

	res, err := fetch.NewDownloader(src, opts...).Ensure(ctx, req)
	if err != nil {
		return "", fetchFailure(src.Location(req.Name), err)
	}
	if res.Extracted {
		b.emit(Event{Stage: StageExtracted, Message: "runtime " + version + " unpacked"})
	} else {
		b.emit(Event{Stage: StageExtracted, Message: "using cached runtime " + version})
	}
	return res.Path, nil
}

// writeBinary concatenates image, header and archive into dst through a
// temporary file in the same directory.
func writeBinary(dst, image string, header []byte, archive string) (err error) {
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

	if err = appendFile(tmp, image); err != nil {
		return err
	}
	if _, err = tmp.Write(header); err != nil {
		return err
	}
	if err = appendFile(tmp, archive); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if platform.SupportsExecBit() {
		mode = 0o755
	}
	if err = os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func appendFile(w io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}
