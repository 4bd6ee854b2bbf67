// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"maps"
	"slices"
)

// LoadOptions selects which files Load merges.
type LoadOptions struct {
	// ConfigFilePath, when set, is the only file read (the --config flag).
	ConfigFilePath string
	// ConfigDirPath replaces the user config directory.
	ConfigDirPath string
	// BaseDir holds the project file (sfxpack.cue); empty means the working
	// directory.
	BaseDir string
}

// Provider yields the effective configuration for one command run.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type (
	fileProvider struct{}

	staticProvider struct {
		cfg *Config
	}
)

// NewProvider reads defaults, config files and SFXPACK_* variables.
func NewProvider() Provider {
	return fileProvider{}
}

// NewStaticProvider always yields a copy of cfg, ignoring LoadOptions.
func NewStaticProvider(cfg *Config) Provider {
	return staticProvider{cfg: cfg}
}

func (fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	return cfg, err
}

// Load copies the configuration so callers may mutate the result.
func (p staticProvider) Load(context.Context, LoadOptions) (*Config, error) {
	cfg := *p.cfg
	cfg.Build.ExcludeFiles = slices.Clone(p.cfg.Build.ExcludeFiles)
	cfg.Plugins = maps.Clone(p.cfg.Plugins)
	return &cfg, nil
}

// Sources lists the config files Load would merge, in merge order.
func Sources(ctx context.Context, opts LoadOptions) ([]string, error) {
	_, loaded, err := loadWithOptions(ctx, opts)
	return loaded, err
}
