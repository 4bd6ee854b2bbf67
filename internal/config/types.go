// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

type (
	// InvalidConfigError collects field-level validation errors that the CUE
	// schema cannot express (for example environment overrides).
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Build configures archive and binary packaging.
		Build BuildConfig `json:"build" mapstructure:"build" toml:"build" yaml:"build"`
		// Runtime configures where runtime images come from.
		Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime" toml:"runtime" yaml:"runtime"`
		// Server configures lifecycle delegation for restart and status.
		Server ServerConfig `json:"server" mapstructure:"server" toml:"server" yaml:"server"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui" toml:"ui" yaml:"ui"`
		// Plugins holds free-form settings keyed by plugin name.
		Plugins map[string]PluginSettings `json:"plugins,omitempty" mapstructure:"plugins" toml:"plugins,omitempty" yaml:"plugins,omitempty"`
	}

	// BuildConfig configures build:archive and build:binary.
	BuildConfig struct {
		InputDir           string   `json:"input_dir" mapstructure:"input_dir" toml:"input_dir" yaml:"input_dir"`
		OutputDir          string   `json:"output_dir" mapstructure:"output_dir" toml:"output_dir" yaml:"output_dir"`
		ExcludePattern     string   `json:"exclude_pattern" mapstructure:"exclude_pattern" toml:"exclude_pattern" yaml:"exclude_pattern"`
		ExcludeFiles       []string `json:"exclude_files" mapstructure:"exclude_files" toml:"exclude_files" yaml:"exclude_files"`
		ArchiveAlias       string   `json:"archive_alias" mapstructure:"archive_alias" toml:"archive_alias" yaml:"archive_alias"`
		ArchiveFilename    string   `json:"archive_filename" mapstructure:"archive_filename" toml:"archive_filename" yaml:"archive_filename"`
		Stub               string   `json:"stub" mapstructure:"stub" toml:"stub" yaml:"stub"`
		StubTemplate       string   `json:"stub_template" mapstructure:"stub_template" toml:"stub_template" yaml:"stub_template"`
		SignatureAlgorithm string   `json:"signature_algorithm" mapstructure:"signature_algorithm" toml:"signature_algorithm" yaml:"signature_algorithm"`
		PrivateKeyFile     string   `json:"private_key_file" mapstructure:"private_key_file" toml:"private_key_file" yaml:"private_key_file"`
		BinaryFilename     string   `json:"binary_filename" mapstructure:"binary_filename" toml:"binary_filename" yaml:"binary_filename"`
		// RuntimeVersion is MAJOR.MINOR; empty means the host interpreter's version.
		RuntimeVersion string `json:"runtime_version" mapstructure:"runtime_version" toml:"runtime_version" yaml:"runtime_version"`
		// CustomINI is embedded ahead of the archive in binaries when non-empty.
		CustomINI string `json:"custom_ini" mapstructure:"custom_ini" toml:"custom_ini" yaml:"custom_ini"`
		// FrameworkPackage locates the console framework whose scaffolding
		// commands are never packaged.
		FrameworkPackage string `json:"framework_package" mapstructure:"framework_package" toml:"framework_package" yaml:"framework_package"`
		// ReadOnly disables archive creation.
		ReadOnly bool `json:"readonly" mapstructure:"readonly" toml:"readonly" yaml:"readonly"`
	}

	// RuntimeConfig configures runtime image downloads and host runtime lookups.
	RuntimeConfig struct {
		ImageBaseURL string `json:"image_base_url" mapstructure:"image_base_url" toml:"image_base_url" yaml:"image_base_url"`
		// ImageName is the cached image file name; "{version}" is substituted.
		ImageName    string `json:"image_name" mapstructure:"image_name" toml:"image_name" yaml:"image_name"`
		ImageArchive string `json:"image_archive" mapstructure:"image_archive" toml:"image_archive" yaml:"image_archive"`
		CLIBaseURL   string `json:"cli_base_url" mapstructure:"cli_base_url" toml:"cli_base_url" yaml:"cli_base_url"`
		CLIName      string `json:"cli_name" mapstructure:"cli_name" toml:"cli_name" yaml:"cli_name"`
		ChecksumsURL string `json:"checksums_url" mapstructure:"checksums_url" toml:"checksums_url" yaml:"checksums_url"`
		// Timeout bounds a whole download, as a Go duration string.
		Timeout         string `json:"timeout" mapstructure:"timeout" toml:"timeout" yaml:"timeout"`
		MinVersion      string `json:"min_version" mapstructure:"min_version" toml:"min_version" yaml:"min_version"`
		FallbackVersion string `json:"fallback_version" mapstructure:"fallback_version" toml:"fallback_version" yaml:"fallback_version"`
		HostBinary      string `json:"host_binary" mapstructure:"host_binary" toml:"host_binary" yaml:"host_binary"`
		IniFile         string `json:"ini_file" mapstructure:"ini_file" toml:"ini_file" yaml:"ini_file"`
	}

	// ServerConfig configures the host server that restart and status delegate to.
	ServerConfig struct {
		Restart string `json:"restart" mapstructure:"restart" toml:"restart" yaml:"restart"`
		Status  string `json:"status" mapstructure:"status" toml:"status" yaml:"status"`
		PidFile string `json:"pid_file" mapstructure:"pid_file" toml:"pid_file" yaml:"pid_file"`
		Workdir string `json:"workdir" mapstructure:"workdir" toml:"workdir" yaml:"workdir"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose" toml:"verbose" yaml:"verbose"`
		// Progress enables download progress bars
		Progress bool `json:"progress" mapstructure:"progress" toml:"progress" yaml:"progress"`
	}

	// PluginSettings is the typed escape hatch for plugin configuration.
	// Values are converted on read with spf13/cast.
	PluginSettings map[string]any
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			InputDir:           ".",
			OutputDir:          "build",
			ExcludeFiles:       []string{".env", "LICENSE", "composer.json", "composer.lock", "localzet.phar", "localzet.bin"},
			ArchiveAlias:       "localzet",
			ArchiveFilename:    "localzet.phar",
			Stub:               "master",
			SignatureAlgorithm: "sha256",
			BinaryFilename:     "localzet.bin",
			FrameworkPackage:   "localzet/console",
		},
		Runtime: RuntimeConfig{
			ImageBaseURL:    "https://download.workerman.net/php",
			ImageName:       "php{version}.micro.sfx",
			ImageArchive:    "zip",
			CLIBaseURL:      "https://ru-1.cdn.zorin.space/php",
			CLIName:         "php-{version}",
			Timeout:         "10m",
			MinVersion:      "8.0",
			FallbackVersion: "8.1",
			HostBinary:      "php",
		},
		UI: UIConfig{
			Progress: true,
		},
	}
}

// Validate checks constraints that environment overrides can break after
// schema validation.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Runtime.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	switch c.Runtime.ImageArchive {
	case "zip", "zstd", "none":
	default:
		errs = append(errs, fmt.Errorf("runtime.image_archive: %q is not one of zip, zstd, none", c.Runtime.ImageArchive))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (r RuntimeConfig) TimeoutDuration() (time.Duration, error) {
	if r.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0, fmt.Errorf("runtime.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("runtime.timeout: negative duration %s", r.Timeout)
	}
	return d, nil
}

// Plugin returns the settings of the named plugin; the result is nil (and
// safe to read) when the plugin is not configured.
func (c *Config) Plugin(name string) PluginSettings {
	return c.Plugins[name]
}

// String returns key as a string.
func (p PluginSettings) String(key string) string {
	return cast.ToString(p[key])
}

// Bool returns key as a bool.
func (p PluginSettings) Bool(key string) bool {
	return cast.ToBool(p[key])
}

// Int returns key as an int.
func (p PluginSettings) Int(key string) int {
	return cast.ToInt(p[key])
}

// StringSlice returns key as a string slice.
func (p PluginSettings) StringSlice(key string) []string {
	return cast.ToStringSlice(p[key])
}

// StringMap returns key as a string-to-string map.
func (p PluginSettings) StringMap(key string) map[string]string {
	return cast.ToStringMapString(p[key])
}
