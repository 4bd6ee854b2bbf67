// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/sfxpack/sfxpack/internal/issue"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_DefaultsWhenNoFiles(t *testing.T) {
	t.Parallel()

	cfgDir := t.TempDir()
	cfg, loaded, err := loadWithOptions(context.Background(), LoadOptions{
		ConfigDirPath: cfgDir,
		BaseDir:       t.TempDir(),
	})
	if err != nil {
		t.Fatalf("loadWithOptions() error: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded = %v, want none", loaded)
	}

	d := DefaultConfig()
	if cfg.Build.ArchiveAlias != d.Build.ArchiveAlias || cfg.Build.ArchiveFilename != d.Build.ArchiveFilename {
		t.Errorf("build defaults not applied: %+v", cfg.Build)
	}
	if cfg.Build.SignatureAlgorithm != "sha256" {
		t.Errorf("SignatureAlgorithm = %q, want sha256", cfg.Build.SignatureAlgorithm)
	}
	if !slices.Equal(cfg.Build.ExcludeFiles, d.Build.ExcludeFiles) {
		t.Errorf("ExcludeFiles = %v, want %v", cfg.Build.ExcludeFiles, d.Build.ExcludeFiles)
	}
	if cfg.Runtime.MinVersion != "8.0" || cfg.Runtime.FallbackVersion != "8.1" {
		t.Errorf("runtime version floor = %q/%q", cfg.Runtime.MinVersion, cfg.Runtime.FallbackVersion)
	}
	if !cfg.UI.Progress {
		t.Error("UI.Progress should default to true")
	}
}

func TestLoad_ProjectFileOverridesUserFile(t *testing.T) {
	t.Parallel()

	cfgDir := t.TempDir()
	baseDir := t.TempDir()
	writeFile(t, filepath.Join(cfgDir, "config.cue"), `
build: {
	output_dir: "user-out"
	archive_alias: "user"
}
ui: verbose: true
`)
	writeFile(t, filepath.Join(baseDir, ProjectFileName), `
build: {
	archive_alias: "project"
	signature_algorithm: "sha512"
	runtime_version: "8.10"
}
`)

	cfg, loaded, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: cfgDir, BaseDir: baseDir})
	if err != nil {
		t.Fatalf("loadWithOptions() error: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded = %v, want user and project files", loaded)
	}
	if cfg.Build.OutputDir != "user-out" {
		t.Errorf("OutputDir = %q, want user-out", cfg.Build.OutputDir)
	}
	if cfg.Build.ArchiveAlias != "project" {
		t.Errorf("ArchiveAlias = %q, want project", cfg.Build.ArchiveAlias)
	}
	if cfg.Build.SignatureAlgorithm != "sha512" {
		t.Errorf("SignatureAlgorithm = %q, want sha512", cfg.Build.SignatureAlgorithm)
	}
	if cfg.Build.RuntimeVersion != "8.10" {
		t.Errorf("RuntimeVersion = %q, want 8.10", cfg.Build.RuntimeVersion)
	}
	if !cfg.UI.Verbose {
		t.Error("UI.Verbose should come from the user file")
	}
	if cfg.Build.ArchiveFilename != "localzet.phar" {
		t.Errorf("unset fields should keep defaults, ArchiveFilename = %q", cfg.Build.ArchiveFilename)
	}
}

func TestLoad_ExplicitFileIsExclusive(t *testing.T) {
	t.Parallel()

	cfgDir := t.TempDir()
	writeFile(t, filepath.Join(cfgDir, "config.cue"), `build: archive_alias: "ignored"`)
	explicit := filepath.Join(t.TempDir(), "custom.cue")
	writeFile(t, explicit, `build: binary_filename: "app.bin"`)

	cfg, loaded, err := loadWithOptions(context.Background(), LoadOptions{ConfigFilePath: explicit, ConfigDirPath: cfgDir})
	if err != nil {
		t.Fatalf("loadWithOptions() error: %v", err)
	}
	if !slices.Equal(loaded, []string{explicit}) {
		t.Errorf("loaded = %v, want only %s", loaded, explicit)
	}
	if cfg.Build.BinaryFilename != "app.bin" {
		t.Errorf("BinaryFilename = %q", cfg.Build.BinaryFilename)
	}
	if cfg.Build.ArchiveAlias != "localzet" {
		t.Errorf("user config should be ignored, ArchiveAlias = %q", cfg.Build.ArchiveAlias)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown algorithm", `build: signature_algorithm: "crc32"`, "signature_algorithm"},
		{"unknown field", `build: nope: true`, "nope"},
		{"syntax error", `build: {`, "config.cue"},
		{"bad alias", `build: archive_alias: "has space"`, "archive_alias"},
		{"unquoted runtime version", `build: runtime_version: 8.10`, "runtime_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "config.cue")
			writeFile(t, path, tt.content)

			_, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, issue.ErrConfiguration) {
				t.Errorf("error should be a configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "missing.cue")})
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error should be *issue.ActionableError, got %T: %v", err, err)
	}
	if ae.Kind != issue.KindConfiguration || !ae.HasSuggestions() {
		t.Errorf("unexpected error shape: %+v", ae)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SFXPACK_BUILD_OUTPUT_DIR", "env-out")
	t.Setenv("SFXPACK_BUILD_READONLY", "true")
	t.Setenv("SFXPACK_RUNTIME_TIMEOUT", "45s")

	cfg, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: t.TempDir(), BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("loadWithOptions() error: %v", err)
	}
	if cfg.Build.OutputDir != "env-out" {
		t.Errorf("OutputDir = %q, want env-out", cfg.Build.OutputDir)
	}
	if !cfg.Build.ReadOnly {
		t.Error("ReadOnly should be overridden to true")
	}
	if d, _ := cfg.Runtime.TimeoutDuration(); d.Seconds() != 45 {
		t.Errorf("timeout = %v, want 45s", d)
	}
}

func TestLoad_InvalidEnvironmentTimeout(t *testing.T) {
	t.Setenv("SFXPACK_RUNTIME_TIMEOUT", "soon")

	_, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: t.TempDir(), BaseDir: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigDir_EnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	got, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("ConfigDir() = %q, want %q", got, dir)
	}

	writeFile(t, filepath.Join(dir, "config.cue"), "build: archive_alias: \"from-env-dir\"\n")
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Build.ArchiveAlias != "from-env-dir" {
		t.Errorf("ArchiveAlias = %q, want from-env-dir", cfg.Build.ArchiveAlias)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := loadWithOptions(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPlugins(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.cue")
	writeFile(t, path, `
plugins: companions: {
	packages: {"acme/server": "Acme Server"}
	retries: 3
	enabled: true
}
`)
	cfg, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("loadWithOptions() error: %v", err)
	}

	p := cfg.Plugin("companions")
	if got := p.StringMap("packages")["acme/server"]; got != "Acme Server" {
		t.Errorf("packages[acme/server] = %q", got)
	}
	if p.Int("retries") != 3 || !p.Bool("enabled") {
		t.Errorf("scalar plugin values not converted: %v", p)
	}
	if cfg.Plugin("absent").String("anything") != "" {
		t.Error("absent plugin should read as empty")
	}
}

func TestGenerateCUE_IsValidAgainstSchema(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Build.PrivateKeyFile = "keys/release.pem"
	cfg.Server.Restart = "php start.php restart"
	cfg.Plugins = map[string]PluginSettings{"companions": {"label": "x", "count": 2}}

	path := filepath.Join(t.TempDir(), "config.cue")
	writeFile(t, path, GenerateCUE(cfg))

	loaded, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated CUE does not load: %v\n%s", err, GenerateCUE(cfg))
	}
	if loaded.Build.PrivateKeyFile != "keys/release.pem" || loaded.Server.Restart != "php start.php restart" {
		t.Errorf("values lost in round trip: %+v %+v", loaded.Build, loaded.Server)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")
	path, err := CreateDefaultConfig(dir)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error: %v", err)
	}
	writeFile(t, path, "// edited\n")

	again, err := CreateDefaultConfig(dir)
	if err != nil || again != path {
		t.Fatalf("CreateDefaultConfig() second call = %q, %v", again, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "// edited\n" {
		t.Error("existing config file must not be overwritten")
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, f := range Formats() {
		out, err := Render(cfg, f)
		if err != nil {
			t.Errorf("Render(%s) error: %v", f, err)
			continue
		}
		if !strings.Contains(out, "archive_alias") || !strings.Contains(out, "localzet") {
			t.Errorf("Render(%s) missing build settings:\n%s", f, out)
		}
	}
	if _, err := Render(cfg, "xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Render(xml) error = %v, want ErrUnknownFormat", err)
	}
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	p := NewStaticProvider(cfg)
	got, err := p.Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got.Build.ArchiveAlias = "changed"
	if cfg.Build.ArchiveAlias == "changed" {
		t.Error("static provider should hand out copies")
	}
}
