// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/sfxpack/sfxpack/internal/issue"
	"github.com/sfxpack/sfxpack/pkg/platform"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "sfxpack"
	// ConfigFileName is the name of the user config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// ProjectFileName is the project-local config file looked up in the base directory.
	ProjectFileName = "sfxpack.cue"
	// EnvPrefix prefixes environment overrides, e.g. SFXPACK_BUILD_OUTPUT_DIR.
	EnvPrefix = "SFXPACK"
	// EnvConfigDir replaces the platform config directory when set.
	EnvConfigDir = "SFXPACK_CONFIG_DIR"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the sfxpack configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
// SFXPACK_CONFIG_DIR takes precedence on every platform.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions loads configuration in layers: defaults, then the user
// config file, then the project file, then SFXPACK_* environment variables.
// An explicit ConfigFilePath replaces both file layers. It returns the config
// and the files that were merged, in order.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, []string, error) {
	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var loaded []string

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, nil, issue.NewErrorContext().
				WithKind(issue.KindConfiguration).
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'sfxpack config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := mergeFile(v, opts.ConfigFilePath); err != nil {
			return nil, nil, err
		}
		loaded = append(loaded, opts.ConfigFilePath)
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, nil, err
		}

		candidates := []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			filepath.Join(opts.BaseDir, ProjectFileName),
		}
		for _, path := range candidates {
			if !fileExists(path) {
				continue
			}
			if err := mergeFile(v, path); err != nil {
				return nil, nil, err
			}
			loaded = append(loaded, path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("parse configuration").
			WithSuggestion("Check SFXPACK_* environment variables for values of the wrong type").
			Wrap(err).
			BuildError()
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("validate configuration").
			WithSuggestion("Use Go duration syntax for runtime.timeout, e.g. \"90s\" or \"10m\"").
			Wrap(err).
			BuildError()
	}

	return &cfg, loaded, nil
}

func mergeFile(v *viper.Viper, path string) error {
	if err := loadCUEIntoViper(v, path); err != nil {
		return issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Check that the file contains valid CUE syntax").
			WithSuggestion("Verify the configuration values match the expected schema").
			WithSuggestion("Run 'sfxpack issues' for troubleshooting guides").
			Wrap(err).
			BuildError()
	}
	return nil
}

// setDefaults registers every default with viper so AutomaticEnv can
// override any known key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("build.input_dir", d.Build.InputDir)
	v.SetDefault("build.output_dir", d.Build.OutputDir)
	v.SetDefault("build.exclude_pattern", d.Build.ExcludePattern)
	v.SetDefault("build.exclude_files", d.Build.ExcludeFiles)
	v.SetDefault("build.archive_alias", d.Build.ArchiveAlias)
	v.SetDefault("build.archive_filename", d.Build.ArchiveFilename)
	v.SetDefault("build.stub", d.Build.Stub)
	v.SetDefault("build.stub_template", d.Build.StubTemplate)
	v.SetDefault("build.signature_algorithm", d.Build.SignatureAlgorithm)
	v.SetDefault("build.private_key_file", d.Build.PrivateKeyFile)
	v.SetDefault("build.binary_filename", d.Build.BinaryFilename)
	v.SetDefault("build.runtime_version", d.Build.RuntimeVersion)
	v.SetDefault("build.custom_ini", d.Build.CustomINI)
	v.SetDefault("build.framework_package", d.Build.FrameworkPackage)
	v.SetDefault("build.readonly", d.Build.ReadOnly)

	v.SetDefault("runtime.image_base_url", d.Runtime.ImageBaseURL)
	v.SetDefault("runtime.image_name", d.Runtime.ImageName)
	v.SetDefault("runtime.image_archive", d.Runtime.ImageArchive)
	v.SetDefault("runtime.cli_base_url", d.Runtime.CLIBaseURL)
	v.SetDefault("runtime.cli_name", d.Runtime.CLIName)
	v.SetDefault("runtime.checksums_url", d.Runtime.ChecksumsURL)
	v.SetDefault("runtime.timeout", d.Runtime.Timeout)
	v.SetDefault("runtime.min_version", d.Runtime.MinVersion)
	v.SetDefault("runtime.fallback_version", d.Runtime.FallbackVersion)
	v.SetDefault("runtime.host_binary", d.Runtime.HostBinary)
	v.SetDefault("runtime.ini_file", d.Runtime.IniFile)

	v.SetDefault("server.restart", d.Server.Restart)
	v.SetDefault("server.status", d.Server.Status)
	v.SetDefault("server.pid_file", d.Server.PidFile)
	v.SetDefault("server.workdir", d.Server.Workdir)

	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.progress", d.UI.Progress)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the defaults to dir/config.cue unless a file is
// already there. It returns the config file path.
func CreateDefaultConfig(dir string) (string, error) {
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// sfxpack configuration file\n")
	sb.WriteString("// Environment variables (SFXPACK_BUILD_OUTPUT_DIR, ...) override these values.\n\n")

	b := cfg.Build
	sb.WriteString("build: {\n")
	fmt.Fprintf(&sb, "\tinput_dir:           %q\n", b.InputDir)
	fmt.Fprintf(&sb, "\toutput_dir:          %q\n", b.OutputDir)
	if b.ExcludePattern != "" {
		fmt.Fprintf(&sb, "\texclude_pattern:     %q\n", b.ExcludePattern)
	}
	sb.WriteString("\texclude_files: [")
	for i, f := range b.ExcludeFiles {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", f)
	}
	sb.WriteString("]\n")
	fmt.Fprintf(&sb, "\tarchive_alias:       %q\n", b.ArchiveAlias)
	fmt.Fprintf(&sb, "\tarchive_filename:    %q\n", b.ArchiveFilename)
	fmt.Fprintf(&sb, "\tstub:                %q\n", b.Stub)
	if b.StubTemplate != "" {
		fmt.Fprintf(&sb, "\tstub_template:       %q\n", b.StubTemplate)
	}
	fmt.Fprintf(&sb, "\tsignature_algorithm: %q\n", b.SignatureAlgorithm)
	if b.PrivateKeyFile != "" {
		fmt.Fprintf(&sb, "\tprivate_key_file:    %q\n", b.PrivateKeyFile)
	}
	fmt.Fprintf(&sb, "\tbinary_filename:     %q\n", b.BinaryFilename)
	if b.RuntimeVersion != "" {
		fmt.Fprintf(&sb, "\truntime_version:     %q\n", b.RuntimeVersion)
	}
	if b.CustomINI != "" {
		fmt.Fprintf(&sb, "\tcustom_ini:          %q\n", b.CustomINI)
	}
	fmt.Fprintf(&sb, "\tframework_package:   %q\n", b.FrameworkPackage)
	fmt.Fprintf(&sb, "\treadonly:            %v\n", b.ReadOnly)
	sb.WriteString("}\n")

	r := cfg.Runtime
	sb.WriteString("\nruntime: {\n")
	fmt.Fprintf(&sb, "\timage_base_url:   %q\n", r.ImageBaseURL)
	fmt.Fprintf(&sb, "\timage_name:       %q\n", r.ImageName)
	fmt.Fprintf(&sb, "\timage_archive:    %q\n", r.ImageArchive)
	fmt.Fprintf(&sb, "\tcli_base_url:     %q\n", r.CLIBaseURL)
	fmt.Fprintf(&sb, "\tcli_name:         %q\n", r.CLIName)
	if r.ChecksumsURL != "" {
		fmt.Fprintf(&sb, "\tchecksums_url:    %q\n", r.ChecksumsURL)
	}
	fmt.Fprintf(&sb, "\ttimeout:          %q\n", r.Timeout)
	fmt.Fprintf(&sb, "\tmin_version:      %q\n", r.MinVersion)
	fmt.Fprintf(&sb, "\tfallback_version: %q\n", r.FallbackVersion)
	fmt.Fprintf(&sb, "\thost_binary:      %q\n", r.HostBinary)
	if r.IniFile != "" {
		fmt.Fprintf(&sb, "\tini_file:         %q\n", r.IniFile)
	}
	sb.WriteString("}\n")

	s := cfg.Server
	if s != (ServerConfig{}) {
		sb.WriteString("\nserver: {\n")
		for _, kv := range [][2]string{{"restart", s.Restart}, {"status", s.Status}, {"pid_file", s.PidFile}, {"workdir", s.Workdir}} {
			if kv[1] != "" {
				fmt.Fprintf(&sb, "\t%s: %q\n", kv[0], kv[1])
			}
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose:  %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tprogress: %v\n", cfg.UI.Progress)
	sb.WriteString("}\n")

	if len(cfg.Plugins) > 0 {
		names := make([]string, 0, len(cfg.Plugins))
		for name := range cfg.Plugins {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("\nplugins: {\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "\t%q: {\n", name)
			settings := cfg.Plugins[name]
			keys := make([]string, 0, len(settings))
			for k := range settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&sb, "\t\t%q: %s\n", k, cueLiteral(settings[k]))
			}
			sb.WriteString("\t}\n")
		}
		sb.WriteString("}\n")
	}

	return sb.String()
}

// cueLiteral renders plugin values; anything that is not a scalar is quoted
// through its string form.
func cueLiteral(v any) string {
	switch t := v.(type) {
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%q", fmt.Sprint(t))
	}
}
