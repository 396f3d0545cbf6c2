// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/invowk/parcel/pkg/archive"
	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/version"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/maps"
)

const (
	// FileName is the manifest file at the root of every package tree.
	FileName = "parcel.toml"
	// ExtDir holds package metadata that travels with built artifacts.
	ExtDir = ".parcel"
	// RecipeFileName is the recipe file inside ExtDir.
	RecipeFileName = "recipe.yml"
)

var (
	// ErrManifestMissing is the sentinel error wrapped by ManifestMissingError.
	ErrManifestMissing = errors.New("manifest not found")
	// ErrInvalidManifest is the sentinel error wrapped by InvalidManifestError.
	ErrInvalidManifest = errors.New("invalid manifest")
)

type (
	// Manifest declares a package's identity and the ranges of the packages it needs.
	Manifest struct {
		This  Package                  `toml:"this"`
		Needs map[string]Need          `toml:"needs,omitempty"`
		Build map[string]version.Range `toml:"build,omitempty"`
	}

	// Package is the [this] table of a manifest.
	Package struct {
		Name        string        `toml:"name"`
		Version     version.Range `toml:"version"`
		Description string        `toml:"description,omitempty"`
		Authors     []string      `toml:"authors,omitempty"`
		License     string        `toml:"license,omitempty"`
	}

	// NamedNeed pairs a need with the package name it is declared under.
	NamedNeed struct {
		Name string
		Need
	}

	// ManifestMissingError is returned when a package tree or tarball has no manifest.
	ManifestMissingError struct {
		Path string
	}

	// InvalidManifestError is returned when a manifest cannot be decoded or lacks required fields.
	InvalidManifestError struct {
		Path string
		Err  error
	}
)

// Error implements the error interface.
func (e *ManifestMissingError) Error() string {
	return fmt.Sprintf("no %s found in %s", FileName, e.Path)
}

// Unwrap returns ErrManifestMissing so callers can use errors.Is for programmatic detection.
func (e *ManifestMissingError) Unwrap() error { return ErrManifestMissing }

// Error implements the error interface.
func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

// Unwrap returns ErrInvalidManifest so callers can use errors.Is for programmatic detection.
func (e *InvalidManifestError) Unwrap() error { return ErrInvalidManifest }

// Load reads dir/parcel.toml.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, &ManifestMissingError{Path: dir}
	}
	return LoadFile(path)
}

// LoadFile reads a manifest from an explicit path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ManifestMissingError{Path: filepath.Dir(path)}
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data, path)
}

// LoadFromArchive reads the manifest embedded at the root of a package tarball.
func LoadFromArchive(tarball string) (*Manifest, error) {
	data, err := archive.ReadFile(tarball, FileName)
	if err != nil {
		if errors.Is(err, archive.ErrMemberNotFound) {
			return nil, &ManifestMissingError{Path: tarball}
		}
		return nil, err
	}
	return Parse(data, tarball+"!/"+FileName)
}

// Parse decodes and validates manifest bytes. source names the origin in errors.
func Parse(data []byte, source string) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &InvalidManifestError{Path: source, Err: err}
	}
	if err := m.Validate(); err != nil {
		return nil, &InvalidManifestError{Path: source, Err: err}
	}
	return &m, nil
}

// Validate checks the fields that decoding alone cannot guarantee.
func (m *Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.This.Name) == "" {
		errs = append(errs, errors.New("[this] name is required"))
	}
	if strings.ContainsAny(m.This.Name, "/\\ ") {
		errs = append(errs, fmt.Errorf("[this] name %q must not contain slashes or spaces", m.This.Name))
	}
	for name, need := range m.Needs {
		if name == m.This.Name {
			errs = append(errs, fmt.Errorf("[needs] %s: a package cannot need itself", name))
		}
		if need.Distribution == dependency.DistributionUnknown {
			errs = append(errs, fmt.Errorf("[needs] %s: distribution must be static, shared or sources", name))
		}
	}
	return errors.Join(errs...)
}

// SortedNeeds returns the needs ordered by package name so walks are deterministic.
func (m *Manifest) SortedNeeds() []NamedNeed {
	names := maps.Keys(m.Needs)
	slices.Sort(names)

	out := make([]NamedNeed, 0, len(names))
	for _, name := range names {
		out = append(out, NamedNeed{Name: name, Need: m.Needs[name]})
	}
	return out
}

// ExactVersion returns the lower bound of the declared version, so "1.0.0" and
// "=1.0.0" both name the package version 1.0.0.
func (p Package) ExactVersion() version.Version {
	return p.Version.Min
}

// Identity returns the concrete Dependency a build of this package produces.
func (m *Manifest) Identity(arch dependency.Arch, os dependency.OS, dist dependency.Distribution) dependency.Dependency {
	return dependency.New(m.This.Name, version.Exact(m.This.ExactVersion()), arch, os, dist)
}

// Encode renders the manifest as TOML.
func (m *Manifest) Encode() ([]byte, error) {
	return toml.Marshal(m)
}
