// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/invowk/parcel/pkg/dependency"
)

func writeRecipe(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, ExtDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(RecipePath(dir), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRecipe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRecipe(t, dir, `
static:
  toolchain:
    cmake:
      generator: Ninja
      definitions:
        fmt_test: "off"
shared:
  toolchain:
    shell:
      - ./configure --shared
      - make install PREFIX=target/export
`)

	r, err := LoadRecipe(dir)
	if err != nil {
		t.Fatalf("LoadRecipe() error: %v", err)
	}
	if r.Static == nil || r.Static.Toolchain.CMake == nil {
		t.Fatalf("static section not decoded: %+v", r)
	}
	if r.Static.Toolchain.CMake.Generator != "Ninja" || r.Static.Toolchain.CMake.Definitions["fmt_test"] != "off" {
		t.Errorf("cmake section = %+v", r.Static.Toolchain.CMake)
	}
	if r.Shared == nil || len(r.Shared.Toolchain.Shell) != 2 {
		t.Errorf("shared section = %+v", r.Shared)
	}
}

func TestLoadRecipe_Missing(t *testing.T) {
	t.Parallel()

	if _, err := LoadRecipe(t.TempDir()); !errors.Is(err, ErrRecipeMissing) {
		t.Fatalf("LoadRecipe() error = %v, want ErrRecipeMissing", err)
	}
}

func TestRecipe_Select(t *testing.T) {
	t.Parallel()

	staticOnly := &Recipe{Static: &Toolchain{Toolchain: Section{Shell: []string{"make"}}}}
	sharedOnly := &Recipe{Shared: &Toolchain{Toolchain: Section{Shell: []string{"make shared"}}}}
	both := &Recipe{
		Static: &Toolchain{Toolchain: Section{Shell: []string{"make static"}}},
		Shared: &Toolchain{Toolchain: Section{Shell: []string{"make shared"}}},
	}

	tests := []struct {
		name     string
		recipe   *Recipe
		dist     dependency.Distribution
		wantDist dependency.Distribution
		wantCmd  string
		wantErr  bool
	}{
		{"exact_static", both, dependency.DistributionStatic, dependency.DistributionStatic, "make static", false},
		{"exact_shared", both, dependency.DistributionShared, dependency.DistributionShared, "make shared", false},
		{"shared_falls_back", staticOnly, dependency.DistributionShared, dependency.DistributionStatic, "make", false},
		{"static_falls_back", sharedOnly, dependency.DistributionStatic, dependency.DistributionShared, "make shared", false},
		{"empty", &Recipe{}, dependency.DistributionShared, "", "", true},
		{"sources", both, dependency.DistributionSources, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			section, dist, err := tt.recipe.Select(tt.dist)
			if tt.wantErr {
				if !errors.Is(err, ErrNoToolchain) {
					t.Errorf("Select() error = %v, want ErrNoToolchain", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error: %v", err)
			}
			if dist != tt.wantDist || section.Shell[0] != tt.wantCmd {
				t.Errorf("Select(%s) = %v, %s; want %s, %s", tt.dist, section.Shell, dist, tt.wantCmd, tt.wantDist)
			}
		})
	}
}

func TestRecipe_ExtractIsStrict(t *testing.T) {
	t.Parallel()

	r := &Recipe{Static: &Toolchain{Toolchain: Section{Shell: []string{"make"}}}}
	if _, err := r.Extract(dependency.DistributionShared); !errors.Is(err, ErrNoToolchain) {
		t.Errorf("Extract(shared) error = %v, want ErrNoToolchain", err)
	}
}
