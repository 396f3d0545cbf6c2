// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invowk/parcel/pkg/dependency"

	"gopkg.in/yaml.v3"
)

var (
	// ErrRecipeMissing is the sentinel error wrapped by RecipeMissingError.
	ErrRecipeMissing = errors.New("recipe not found")
	// ErrNoToolchain is returned when a recipe has no section usable for a distribution.
	ErrNoToolchain = errors.New("no toolchain for distribution")
)

type (
	// Recipe holds per-linkage build instructions for a source package.
	Recipe struct {
		Static *Toolchain `yaml:"static,omitempty"`
		Shared *Toolchain `yaml:"shared,omitempty"`
	}

	// Toolchain wraps the build section of one linkage.
	Toolchain struct {
		Toolchain Section `yaml:"toolchain"`
	}

	// Section selects how to build: a CMake project or a list of shell commands.
	Section struct {
		CMake *CMakeSection `yaml:"cmake,omitempty"`
		Shell []string      `yaml:"shell,omitempty"`
	}

	// CMakeSection configures the CMake toolchain.
	CMakeSection struct {
		Generator   string            `yaml:"generator,omitempty"`
		Definitions map[string]string `yaml:"definitions,omitempty"`
	}

	// RecipeMissingError is returned when a build is attempted on a tree without a recipe.
	RecipeMissingError struct {
		Path string
	}
)

// Error implements the error interface.
func (e *RecipeMissingError) Error() string {
	return fmt.Sprintf("no %s found in %s", filepath.Join(ExtDir, RecipeFileName), e.Path)
}

// Unwrap returns ErrRecipeMissing so callers can use errors.Is for programmatic detection.
func (e *RecipeMissingError) Unwrap() error { return ErrRecipeMissing }

// RecipePath returns the location of the recipe inside a package tree.
func RecipePath(dir string) string {
	return filepath.Join(dir, ExtDir, RecipeFileName)
}

// LoadRecipe reads dir/.parcel/recipe.yml.
func LoadRecipe(dir string) (*Recipe, error) {
	data, err := os.ReadFile(RecipePath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &RecipeMissingError{Path: dir}
		}
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse recipe %s: %w", RecipePath(dir), err)
	}
	return &r, nil
}

// Extract returns the section for dist without falling back to the other linkage.
func (r *Recipe) Extract(dist dependency.Distribution) (Section, error) {
	var tc *Toolchain
	switch dist {
	case dependency.DistributionStatic:
		tc = r.Static
	case dependency.DistributionShared:
		tc = r.Shared
	default:
		return Section{}, fmt.Errorf("%w: cannot build %q packages", ErrNoToolchain, dist)
	}
	if tc == nil {
		return Section{}, fmt.Errorf("%w: recipe has no %s section", ErrNoToolchain, dist)
	}
	return tc.Toolchain, nil
}

// Select returns the section for dist, falling back to the other binary linkage
// when dist is not covered. The returned distribution is the one actually chosen.
func (r *Recipe) Select(dist dependency.Distribution) (Section, dependency.Distribution, error) {
	if !dist.IsBinary() {
		return Section{}, dist, fmt.Errorf("%w: cannot build %q packages", ErrNoToolchain, dist)
	}
	if s, err := r.Extract(dist); err == nil {
		return s, dist, nil
	}
	other := dist.Opposite()
	if s, err := r.Extract(other); err == nil {
		return s, other, nil
	}
	return Section{}, dist, fmt.Errorf("%w: recipe has neither a static nor a shared section", ErrNoToolchain)
}

// IsEmpty reports whether the section names no toolchain at all.
func (s Section) IsEmpty() bool {
	return s.CMake == nil && len(s.Shell) == 0
}
