// SPDX-License-Identifier: MPL-2.0

// Package companion reports which companion server packages a project has
// installed, reading Composer's metadata.
package companion

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// Role groups companion packages for display.
type Role string

const (
	RoleServer    Role = "Server"
	RoleEngine    Role = "Engine"
	RoleFramework Role = "Framework"
	RoleExtra     Role = "Package"
)

// ErrNoMetadata is returned when a project has neither installed.json nor composer.lock.
var ErrNoMetadata = errors.New("no composer metadata found")

type (
	// Known describes a package worth reporting.
	Known struct {
		Name  string
		Label string
		Role  Role
	}

	// Package is a detected companion package.
	Package struct {
		Known
		Version string
	}

	installedPackage struct {
		Name          string `json:"name"`
		Version       string `json:"version"`
		PrettyVersion string `json:"pretty_version"`
	}
)

// KnownPackages lists the built-in companion packages in report order.
var KnownPackages = []Known{
	{"localzet/core", "Localzet Server", RoleServer},
	{"localzet/server", "Localzet Server", RoleServer},
	{"zorin/core", "Zorin Server", RoleServer},
	{"zorin/server", "Zorin Server", RoleServer},
	{"localzet/framex", "FrameX (FX) Engine", RoleEngine},
	{"triangle/engine", "Triangle Engine", RoleEngine},
	{"localzet/webkit", "Localzet WebKit", RoleFramework},
	{"triangle/web", "Triangle Web", RoleFramework},
}

// Catalog returns the built-in packages followed by extras (name to label),
// sorted by name. Extras naming a built-in package override its label.
func Catalog(extras map[string]string) []Known {
	out := slices.Clone(KnownPackages)
	for _, name := range slices.Sorted(maps.Keys(extras)) {
		if i := slices.IndexFunc(out, func(k Known) bool { return k.Name == name }); i >= 0 {
			out[i].Label = extras[name]
			continue
		}
		out = append(out, Known{Name: name, Label: extras[name], Role: RoleExtra})
	}
	return out
}

// Detect reads installed versions in projectDir and returns the catalog
// entries that are installed, in catalog order.
func Detect(projectDir string, catalog []Known) ([]Package, error) {
	installed, err := readInstalled(projectDir)
	if err != nil {
		return nil, err
	}
	var out []Package
	for _, k := range catalog {
		if v, ok := installed[k.Name]; ok {
			out = append(out, Package{Known: k, Version: v})
		}
	}
	return out, nil
}

// readInstalled maps package names to versions, preferring
// vendor/composer/installed.json over composer.lock.
func readInstalled(dir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "vendor", "composer", "installed.json"))
	if err == nil {
		return parseInstalled(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err = os.ReadFile(filepath.Join(dir, "composer.lock"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoMetadata, dir)
		}
		return nil, err
	}
	return parseLock(data)
}

// parseInstalled accepts both the Composer 2 object form and the legacy array form.
func parseInstalled(data []byte) (map[string]string, error) {
	var wrapped struct {
		Packages []installedPackage `json:"packages"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		return versions(wrapped.Packages), nil
	}
	var legacy []installedPackage
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parsing installed.json: %w", err)
	}
	return versions(legacy), nil
}

func parseLock(data []byte) (map[string]string, error) {
	var lock struct {
		Packages    []installedPackage `json:"packages"`
		PackagesDev []installedPackage `json:"packages-dev"`
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parsing composer.lock: %w", err)
	}
	return versions(append(lock.Packages, lock.PackagesDev...)), nil
}

func versions(pkgs []installedPackage) map[string]string {
	out := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		v := p.PrettyVersion
		if v == "" {
			v = p.Version
		}
		out[p.Name] = v
	}
	return out
}
