// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sfxpack/sfxpack/internal/fetch"
	"github.com/sfxpack/sfxpack/internal/issue"
	"github.com/sfxpack/sfxpack/pkg/platform"
	"github.com/sfxpack/sfxpack/pkg/sfxar"
)

type (
	// Builder produces archives and binaries for one resolved Config.
	Builder struct {
		cfg         Config
		progress    ProgressFunc
		source      fetch.Source
		hostVersion func(context.Context) string
		userAgent   string
		logger      *slog.Logger
	}

	// Option configures a Builder during construction.
	Option func(*Builder)

	// Result describes the artifacts of a build.
	Result struct {
		ArchivePath    string
		BinaryPath     string
		Entries        []string
		Algorithm      sfxar.Algorithm
		RuntimeVersion string
	}

	// plan is the validated form of Config, produced before any write.
	plan struct {
		stub    string
		signer  sfxar.Signer
		matcher *Matcher
	}
)

// WithProgress registers a callback for build events.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) {
		b.progress = fn
	}
}

// WithSource overrides the runtime image source derived from the config.
func WithSource(src fetch.Source) Option {
	return func(b *Builder) {
		b.source = src
	}
}

// WithHostVersion overrides detection of the host runtime version.
func WithHostVersion(fn func(context.Context) string) Option {
	return func(b *Builder) {
		b.hostVersion = fn
	}
}

// WithUserAgent sets the User-Agent used for HTTP image downloads.
func WithUserAgent(ua string) Option {
	return func(b *Builder) {
		b.userAgent = ua
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// New creates a Builder for cfg.
func New(cfg Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		logger: slog.Default(),
	}
	b.hostVersion = func(ctx context.Context) string {
		return fetch.HostVersion(ctx, b.cfg.Runtime.HostBinary)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the resolved configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// BuildArchive packages the input directory into the archive.
func (b *Builder) BuildArchive(ctx context.Context) (*Result, error) {
	p, err := b.prepare()
	if err != nil {
		return nil, err
	}

	lock, err := b.lockOutput()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	return b.buildArchive(ctx, p)
}

// prepare validates the configuration without touching the filesystem.
func (b *Builder) prepare() (*plan, error) {
	c := b.cfg

	if c.ReadOnly && !c.AllowWrite {
		return nil, failure(issue.KindEnvironment, "build archive", "", ErrReadOnly,
			"Set build.readonly to false",
			"Run `sfxpack build:archive --allow-write` for a one-off build")
	}

	alg, err := sfxar.ParseAlgorithm(c.SignatureAlgorithm)
	if err != nil {
		return nil, failure(issue.KindSignature, "select signature algorithm", "", err,
			"Set build.signature_algorithm to md5, sha1, sha256, sha512 or openssl")
	}
	signer, err := b.signer(alg)
	if err != nil {
		return nil, err
	}

	stub, err := b.renderStub()
	if err != nil {
		return nil, err
	}

	if c.InputDir == "" {
		return nil, failure(issue.KindConfiguration, "build archive", "", ErrInputDirNotFound,
			"Set build.input_dir to the project directory")
	}
	if info, err := os.Stat(c.InputDir); err != nil || !info.IsDir() {
		return nil, failure(issue.KindConfiguration, "read input directory", c.InputDir, ErrInputDirNotFound,
			"Set build.input_dir to an existing directory")
	}
	if c.OutputDir == "" {
		return nil, failure(issue.KindConfiguration, "build archive", "", errors.New("no output directory configured"),
			"Set build.output_dir")
	}
	if c.StubPath != "" {
		entry := filepath.Join(c.InputDir, filepath.FromSlash(c.StubPath))
		if info, err := os.Stat(entry); err != nil || info.IsDir() {
			return nil, failure(issue.KindConfiguration, "locate entry script", entry, ErrStubNotFound,
				"Set build.stub to a file inside build.input_dir, or to an empty string for a library archive")
		}
	}
	if err := checkArtifactName(c.ArchiveFilename); err != nil {
		return nil, failure(issue.KindConfiguration, "name archive", c.ArchiveFilename, err,
			"Set build.archive_filename to a plain file name")
	}

	matcher, err := NewMatcher(c.ExcludePattern)
	if err != nil {
		return nil, failure(issue.KindConfiguration, "compile exclude pattern", "", err,
			"Fix build.exclude_pattern or remove it to use the default exclusions")
	}

	return &plan{stub: stub, signer: signer, matcher: matcher}, nil
}

func (b *Builder) signer(alg sfxar.Algorithm) (sfxar.Signer, error) {
	if alg != sfxar.PrivateKey {
		return sfxar.HashSigner(alg)
	}

	keyFile := b.cfg.PrivateKeyFile
	if keyFile == "" {
		return nil, failure(issue.KindSignature, "load private key", "", ErrPrivateKeyRequired,
			"Set build.private_key_file to a PEM or OpenSSH private key")
	}
	key, err := sfxar.LoadPrivateKey(keyFile)
	if err != nil {
		return nil, failure(issue.KindSignature, "load private key", keyFile, err,
			"Use an unencrypted RSA, ECDSA or Ed25519 key")
	}
	s, err := sfxar.KeySigner(key)
	if err != nil {
		return nil, failure(issue.KindSignature, "load private key", keyFile, err)
	}
	return s, nil
}

func (b *Builder) renderStub() (string, error) {
	tmpl := ""
	if f := b.cfg.StubTemplateFile; f != "" {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", failure(issue.KindConfiguration, "read stub template", f, err,
				"Set build.stub_template to a readable file or remove it")
		}
		tmpl = string(data)
	}

	stub, err := sfxar.RenderStub(tmpl, sfxar.StubData{Alias: b.cfg.ArchiveAlias, Entry: b.cfg.StubPath})
	if err == nil && !strings.Contains(stub, sfxar.HaltToken) {
		err = sfxar.ErrMissingHaltToken
	}
	if err != nil {
		return "", failure(issue.KindConfiguration, "render stub", b.cfg.StubTemplateFile, err)
	}
	return stub, nil
}

func (b *Builder) lockOutput() (*buildLock, error) {
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return nil, failure(issue.KindIO, "create output directory", b.cfg.OutputDir, err,
			"Check permissions of the parent directory", "Set build.output_dir to a writable location")
	}
	lock, err := acquireBuildLock(b.cfg.OutputDir)
	if err != nil {
		return nil, failure(issue.KindIO, "lock output directory", b.cfg.OutputDir, err)
	}
	return lock, nil
}

func (b *Builder) buildArchive(ctx context.Context, p *plan) (*Result, error) {
	archivePath := b.cfg.ArchivePath()
	if err := removeIfExists(archivePath); err != nil {
		return nil, failure(issue.KindIO, "remove previous archive", archivePath, err)
	}

	w := sfxar.NewWriter(archivePath)
	if err := w.SetStub(p.stub); err != nil {
		return nil, failure(issue.KindConfiguration, "render stub", "", err)
	}
	w.SetSigner(p.signer)

	if err := b.collect(ctx, w, p.matcher); err != nil {
		return nil, err
	}

	excluded := 0
	for _, name := range b.exclusions() {
		if w.Delete(name) {
			excluded++
		}
	}
	b.emit(Event{Stage: StageCollected, Message: fmt.Sprintf("collected %d files (%d excluded)", w.Len(), excluded)})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, failure(issue.KindIO, "write archive", archivePath, err)
	}
	b.emit(Event{Stage: StageSigned, Message: "signed with " + p.signer.Algorithm().String()})
	b.logger.Debug("archive written", "path", archivePath, "entries", w.Len())

	return &Result{
		ArchivePath: archivePath,
		Entries:     w.Names(),
		Algorithm:   p.signer.Algorithm(),
	}, nil
}

// collect adds every included regular file below the input directory.
func (b *Builder) collect(ctx context.Context, w *sfxar.Writer, m *Matcher) error {
	root := b.cfg.InputDir
	skipDir := b.cfg.OutputDir

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && p == skipDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isRegular(p, d) || b.isOwnOutput(p) {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ok, err := m.Include(rel)
		if err != nil {
			return fmt.Errorf("matching %s: %w", rel, err)
		}
		if !ok {
			return nil
		}
		return w.AddFile(rel, p)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return failure(issue.KindIO, "collect files", root, err)
	}
	return nil
}

// isOwnOutput reports whether p is an artifact, lock file or cached runtime
// image of this builder, which happens when the output directory is the input
// directory.
func (b *Builder) isOwnOutput(p string) bool {
	if filepath.Dir(p) != b.cfg.OutputDir {
		return false
	}
	switch base := filepath.Base(p); {
	case base == lockFileName, base == b.cfg.ArchiveFilename, base == b.cfg.BinaryFilename:
		return true
	case fetch.IsImageFile(b.cfg.Runtime.ImageName, base):
		return true
	default:
		return strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".tmp")
	}
}

// exclusions merges configured exclusions with the scaffolding commands.
func (b *Builder) exclusions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range append(SelfExclusions(b.cfg.InputDir, b.cfg.FrameworkPackage), b.cfg.ExcludeFiles...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (b *Builder) emit(e Event) {
	if b.progress != nil {
		b.progress(e)
	}
}

func isRegular(p string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(p)
		return err == nil && info.Mode().IsRegular()
	}
	return false
}

func removeIfExists(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// checkArtifactName rejects names that are empty, contain separators or are
// reserved device names on Windows.
func checkArtifactName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
	}
	if platform.IsReservedName(name) {
		return fmt.Errorf("%w: %q is a reserved device name", ErrInvalidArtifactName, name)
	}
	return nil
}
