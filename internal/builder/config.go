// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/sfxpack/sfxpack/internal/config"
)

type (
	// Config is the resolved, immutable input of a build. Paths are absolute.
	Config struct {
		InputDir           string
		OutputDir          string
		ExcludePattern     string
		ExcludeFiles       []string
		ArchiveAlias       string
		ArchiveFilename    string
		StubPath           string
		StubTemplateFile   string
		SignatureAlgorithm string
		PrivateKeyFile     string
		BinaryFilename     string
		RuntimeVersion     string
		CustomINI          string
		FrameworkPackage   string
		ReadOnly           bool
		// AllowWrite overrides ReadOnly for a single invocation.
		AllowWrite bool

		Runtime RuntimeSettings
	}

	// RuntimeSettings locates runtime images for binary builds.
	RuntimeSettings struct {
		ImageBaseURL    string
		ImageName       string
		ImageArchive    string
		ChecksumsURL    string
		Timeout         time.Duration
		MinVersion      string
		FallbackVersion string
		HostBinary      string
	}
)

// FromConfig resolves cfg against baseDir, the directory relative paths are
// interpreted from.
func FromConfig(cfg *config.Config, baseDir string) (Config, error) {
	timeout, err := cfg.Runtime.TimeoutDuration()
	if err != nil {
		return Config{}, err
	}

	b := cfg.Build
	return Config{
		InputDir:           resolvePath(baseDir, b.InputDir),
		OutputDir:          resolvePath(baseDir, b.OutputDir),
		ExcludePattern:     b.ExcludePattern,
		ExcludeFiles:       slices.Clone(b.ExcludeFiles),
		ArchiveAlias:       b.ArchiveAlias,
		ArchiveFilename:    b.ArchiveFilename,
		StubPath:           b.Stub,
		StubTemplateFile:   resolvePath(baseDir, b.StubTemplate),
		SignatureAlgorithm: b.SignatureAlgorithm,
		PrivateKeyFile:     resolvePath(baseDir, b.PrivateKeyFile),
		BinaryFilename:     b.BinaryFilename,
		RuntimeVersion:     b.RuntimeVersion,
		CustomINI:          b.CustomINI,
		FrameworkPackage:   b.FrameworkPackage,
		ReadOnly:           b.ReadOnly,
		Runtime: RuntimeSettings{
			ImageBaseURL:    cfg.Runtime.ImageBaseURL,
			ImageName:       cfg.Runtime.ImageName,
			ImageArchive:    cfg.Runtime.ImageArchive,
			ChecksumsURL:    cfg.Runtime.ChecksumsURL,
			Timeout:         timeout,
			MinVersion:      cfg.Runtime.MinVersion,
			FallbackVersion: cfg.Runtime.FallbackVersion,
			HostBinary:      cfg.Runtime.HostBinary,
		},
	}, nil
}

// ArchivePath is where the archive is written.
func (c Config) ArchivePath() string {
	return filepath.Join(c.OutputDir, c.ArchiveFilename)
}

// BinaryPath is where the binary is written.
func (c Config) BinaryPath() string {
	return filepath.Join(c.OutputDir, c.BinaryFilename)
}

func resolvePath(base, p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}
