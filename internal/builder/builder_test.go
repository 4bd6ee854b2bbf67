// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/sfxpack/sfxpack/internal/config"
	"github.com/sfxpack/sfxpack/internal/issue"
	"github.com/sfxpack/sfxpack/internal/testutil"
	"github.com/sfxpack/sfxpack/pkg/sfxar"
)

var projectFiles = map[string]string{
	"master":              "<?php echo 'hello';\n",
	"src/App.php":         "<?php class App {}\n",
	"config/app.php":      "<?php return [];\n",
	".env":                "SECRET=1\n",
	"LICENSE":             "MIT\n",
	"composer.json":       "{}\n",
	".git/HEAD":           "ref: refs/heads/main\n",
	".idea/workspace.xml": "<xml/>\n",
	"runtime/cache.log":   "log\n",
	"vendor/autoload.php": "<?php\n",
	"vendor/localzet/console/src/Console/Commands/BuildPharCommand.php": "<?php\n",
	"vendor/localzet/console/src/Console/Commands/StatusCommand.php": "<?php\n",
}

// newProject writes projectFiles into a fresh directory and returns a build
// configuration targeting it.
func newProject(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, projectFiles)

	cfg, err := FromConfig(config.DefaultConfig(), root)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestBuildArchive_CollectsAndExcludes(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	var events []Event
	res, err := New(cfg, WithProgress(func(e Event) { events = append(events, e) })).BuildArchive(context.Background())
	if err != nil {
		t.Fatalf("BuildArchive() error: %v", err)
	}
	if res.ArchivePath != filepath.Join(cfg.InputDir, "build", "localzet.phar") {
		t.Errorf("ArchivePath = %q", res.ArchivePath)
	}

	want := []string{
		"config/app.php",
		"master",
		"src/App.php",
		"vendor/autoload.php",
		"vendor/localzet/console/src/Console/Commands/StatusCommand.php",
	}
	if !slices.Equal(res.Entries, want) {
		t.Errorf("Entries = %v, want %v", res.Entries, want)
	}

	a, err := sfxar.Open(res.ArchivePath)
	if err != nil {
		t.Fatalf("sfxar.Open() error: %v", err)
	}
	defer func() { _ = a.Close() }()
	if !strings.HasPrefix(a.Stub, "#!/usr/bin/env php\n") ||
		!strings.Contains(a.Stub, "Phar::mapPhar('localzet');") ||
		!strings.Contains(a.Stub, "require 'phar://localzet/master';") {
		t.Errorf("unexpected stub:\n%s", a.Stub)
	}
	if a.Algorithm != sfxar.SHA256 {
		t.Errorf("Algorithm = %v, want sha256", a.Algorithm)
	}
	if err := a.Verify(nil); err != nil {
		t.Errorf("Verify() error: %v", err)
	}
	data, err := a.ReadFile("src/App.php")
	if err != nil || string(data) != projectFiles["src/App.php"] {
		t.Errorf("ReadFile(src/App.php) = %q, %v", data, err)
	}

	if len(events) == 0 || events[0].Stage != StageCollected {
		t.Errorf("events = %+v, want collected first", events)
	}
}

func TestBuildArchive_IsDeterministicAndReplaces(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	b := New(cfg)
	first, err := b.BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	firstBytes := testutil.MustReadFile(t, first.ArchivePath)

	second, err := b.BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(firstBytes, testutil.MustReadFile(t, second.ArchivePath)) {
		t.Error("rebuilding identical input should produce identical bytes")
	}

	testutil.MustWriteFile(t, filepath.Join(cfg.InputDir, "src", "New.php"), "<?php\n")
	third, err := b.BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(third.Entries, "src/New.php") {
		t.Error("new file missing from rebuilt archive")
	}
	if bytes.Equal(firstBytes, testutil.MustReadFile(t, third.ArchivePath)) {
		t.Error("archive should have been replaced")
	}
}

func TestBuildArchive_LibraryStub(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	cfg.StubPath = ""
	res, err := New(cfg).BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	a, err := sfxar.Open(res.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()
	if strings.Contains(a.Stub, "require") {
		t.Errorf("library stub should not require an entry script:\n%s", a.Stub)
	}
}

func TestBuildArchive_CustomPatternAndExcludeFiles(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	cfg.ExcludePattern = `#^(?!.*/vendor/).*\.php$#i`
	cfg.ExcludeFiles = []string{"config/app.php", "does/not/exist.php"}
	res, err := New(cfg).BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Entries, []string{"src/App.php"}) {
		t.Errorf("Entries = %v, want only src/App.php", res.Entries)
	}
}

func TestBuildArchive_ProjectIsFramework(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"master": "<?php\n",
		"src/Console/Commands/MakeModelCommand.php": "<?php\n",
		"src/Console/Commands/StatusCommand.php":    "<?php\n",
	})
	cfg, err := FromConfig(config.DefaultConfig(), root)
	if err != nil {
		t.Fatal(err)
	}
	res, err := New(cfg).BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(res.Entries, "src/Console/Commands/MakeModelCommand.php") {
		t.Error("scaffolding command should be excluded")
	}
	if !slices.Contains(res.Entries, "src/Console/Commands/StatusCommand.php") {
		t.Error("runtime command should be kept")
	}
}

func TestBuildArchive_OutputInsideInputIsSkipped(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	cfg.OutputDir = filepath.Join(cfg.InputDir, "dist")
	testutil.MustWriteFile(t, filepath.Join(cfg.OutputDir, "stale.php"), "<?php\n")
	res, err := New(cfg).BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range res.Entries {
		if strings.HasPrefix(e, "dist/") {
			t.Errorf("output directory content %q was packaged", e)
		}
	}
}

func TestBuildArchive_ValidationHappensBeforeWrites(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		kind   error
		cause  error
	}{
		{
			name:   "missing input dir",
			mutate: func(c *Config) { c.InputDir = filepath.Join(c.InputDir, "missing") },
			kind:   issue.ErrConfiguration,
			cause:  ErrInputDirNotFound,
		},
		{
			name:   "missing entry script",
			mutate: func(c *Config) { c.StubPath = "bin/start" },
			kind:   issue.ErrConfiguration,
			cause:  ErrStubNotFound,
		},
		{
			name:   "unsupported algorithm",
			mutate: func(c *Config) { c.SignatureAlgorithm = "crc32" },
			kind:   issue.ErrSignature,
			cause:  sfxar.ErrUnsupportedAlgorithm,
		},
		{
			name:   "openssl without key",
			mutate: func(c *Config) { c.SignatureAlgorithm = "openssl" },
			kind:   issue.ErrSignature,
			cause:  ErrPrivateKeyRequired,
		},
		{
			name:   "unreadable key",
			mutate: func(c *Config) {
				c.SignatureAlgorithm = "openssl"
				c.PrivateKeyFile = filepath.Join(c.InputDir, "nope.pem")
			},
			kind:   issue.ErrSignature,
			cause:  os.ErrNotExist,
		},
		{
			name:   "read only",
			mutate: func(c *Config) { c.ReadOnly = true },
			kind:   issue.ErrEnvironment,
			cause:  ErrReadOnly,
		},
		{
			name:   "reserved archive name",
			mutate: func(c *Config) { c.ArchiveFilename = "NUL.phar" },
			kind:   issue.ErrConfiguration,
			cause:  ErrInvalidArtifactName,
		},
		{
			name:   "stub template without halt token",
			mutate: func(c *Config) { c.StubTemplateFile = filepath.Join(c.InputDir, "composer.json") },
			kind:   issue.ErrConfiguration,
			cause:  sfxar.ErrMissingHaltToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := newProject(t)
			tt.mutate(&cfg)

			_, err := New(cfg).BuildArchive(context.Background())
			if !errors.Is(err, tt.kind) {
				t.Errorf("error = %v, want kind %v", err, tt.kind)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("error = %v, want cause %v", err, tt.cause)
			}
			if testutil.FileExists(t, cfg.OutputDir) {
				t.Error("output directory must not be created when validation fails")
			}
		})
	}
}

func TestBuildArchive_FailedRebuildKeepsPreviousArchive(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	res, err := New(cfg).BuildArchive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	before := testutil.MustReadFile(t, res.ArchivePath)

	bad := cfg
	bad.SignatureAlgorithm = "openssl"
	bad.PrivateKeyFile = filepath.Join(cfg.InputDir, "LICENSE")
	if _, err := New(bad).BuildArchive(context.Background()); !errors.Is(err, issue.ErrSignature) {
		t.Fatalf("error = %v, want signature error", err)
	}
	if !bytes.Equal(before, testutil.MustReadFile(t, res.ArchivePath)) {
		t.Error("previous archive must stay intact")
	}
}

func TestBuildArchive_AllowWriteOverridesReadOnly(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	cfg.ReadOnly = true
	cfg.AllowWrite = true
	if _, err := New(cfg).BuildArchive(context.Background()); err != nil {
		t.Fatalf("BuildArchive() error: %v", err)
	}
}

func TestBuildArchive_PrivateKeySignature(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(t.TempDir(), "release.pem")
	testutil.MustWriteFile(t, keyPath, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})))

	cfg.SignatureAlgorithm = "openssl"
	cfg.PrivateKeyFile = keyPath
	res, err := New(cfg).BuildArchive(context.Background())
	if err != nil {
		t.Fatalf("BuildArchive() error: %v", err)
	}
	if res.Algorithm != sfxar.PrivateKey {
		t.Errorf("Algorithm = %v", res.Algorithm)
	}

	a, err := sfxar.Open(res.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()
	if err := a.Verify(pub); err != nil {
		t.Errorf("Verify() error: %v", err)
	}
}

func TestBuildArchive_Canceled(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(cfg).BuildArchive(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if testutil.FileExists(t, cfg.ArchivePath()) {
		t.Error("canceled build must not leave an archive")
	}
}

func TestBuildArchive_ConcurrentBuildsSerialize(t *testing.T) {
	t.Parallel()

	cfg := newProject(t)
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = New(cfg).BuildArchive(context.Background())
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("build %d error: %v", i, err)
		}
	}

	a, err := sfxar.Open(cfg.ArchivePath())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()
	if err := a.Verify(nil); err != nil {
		t.Errorf("archive corrupted by concurrent builds: %v", err)
	}
}

func TestFromConfig_ResolvesRelativePaths(t *testing.T) {
	t.Parallel()

	c := config.DefaultConfig()
	c.Build.InputDir = "app"
	c.Build.OutputDir = "/abs/out"
	c.Build.PrivateKeyFile = "keys/k.pem"
	c.Runtime.Timeout = "90s"

	got, err := FromConfig(c, "/work")
	if err != nil {
		t.Fatal(err)
	}
	if got.InputDir != filepath.Clean("/work/app") || got.OutputDir != filepath.Clean("/abs/out") {
		t.Errorf("dirs = %q, %q", got.InputDir, got.OutputDir)
	}
	if got.PrivateKeyFile != filepath.Clean("/work/keys/k.pem") || got.StubTemplateFile != "" {
		t.Errorf("files = %q, %q", got.PrivateKeyFile, got.StubTemplateFile)
	}
	if got.Runtime.Timeout.Seconds() != 90 {
		t.Errorf("Timeout = %v", got.Runtime.Timeout)
	}
}
