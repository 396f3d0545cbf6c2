// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/manifest"
)

// fakeRunner records commands and simulates an install step.
type fakeRunner struct {
	commands []Command
	failOn   string
}

func (f *fakeRunner) Run(_ context.Context, c Command) ([]byte, error) {
	f.commands = append(f.commands, c)
	if f.failOn != "" && slices.Contains(c.Args, f.failOn) {
		return []byte("boom"), errors.New("exit status 1")
	}
	if i := slices.Index(c.Args, "--prefix"); i >= 0 {
		lib := filepath.Join(c.Args[i+1], "lib")
		if err := os.MkdirAll(lib, 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(lib, "libfoo.a"), []byte("lib"), 0o644); err != nil {
			return nil, err
		}
	}
	return []byte("ok"), nil
}

func sourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		manifest.FileName:    "[this]\nname = \"foo\"\nversion = \"=1.0.0\"\n",
		".parcel/recipe.yml": "static:\n  toolchain:\n    cmake:\n      definitions:\n        build_tests: off\n",
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		section manifest.Section
		want    string
		wantErr bool
	}{
		{"cmake", manifest.Section{CMake: &manifest.CMakeSection{}}, "cmake", false},
		{"shell", manifest.Section{Shell: []string{"make"}}, "shell", false},
		{"cmake wins over shell", manifest.Section{CMake: &manifest.CMakeSection{}, Shell: []string{"make"}}, "cmake", false},
		{"empty", manifest.Section{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tc, err := For(tt.section, Options{})
			if tt.wantErr {
				if !errors.Is(err, manifest.ErrNoToolchain) {
					t.Errorf("For() error = %v, want ErrNoToolchain", err)
				}
				return
			}
			if err != nil || tc.Name() != tt.want {
				t.Errorf("For() = %v, %v", tc, err)
			}
		})
	}
}

func TestCMake_BuildFromRecipe(t *testing.T) {
	t.Parallel()

	src := sourceTree(t)
	recipe, err := manifest.LoadRecipe(src)
	if err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	tc, err := For(recipe.Static.Toolchain, Options{
		CMake:  CMakeConfig{ConfigureCommand: "cmake --log-level=ERROR", Definitions: map[string]string{"CMAKE_BUILD_TYPE": "Release"}},
		Runner: runner,
	})
	if err != nil {
		t.Fatal(err)
	}

	export, err := tc.BuildFromRecipe(context.Background(), recipe, src, dependency.DistributionStatic)
	if err != nil {
		t.Fatalf("BuildFromRecipe() error: %v", err)
	}
	if export != filepath.Join(src, "target", "export") {
		t.Errorf("export dir = %s", export)
	}

	if len(runner.commands) != 3 {
		t.Fatalf("ran %d commands, want configure, build and install", len(runner.commands))
	}
	configure := strings.Join(runner.commands[0].Args, " ")
	for _, want := range []string{
		"--log-level=ERROR -S " + src,
		"-D CMAKE_BUILD_TYPE=Release",
		"-DBUILD_TESTS=OFF",
		"-DCMAKE_PREFIX_PATH=" + filepath.Join(src, "dependencies"),
	} {
		if !strings.Contains(configure, want) {
			t.Errorf("configure args %q missing %q", configure, want)
		}
	}
	if runner.commands[0].Name != "cmake" || runner.commands[1].Args[1] != "--build" {
		t.Errorf("unexpected commands: %v", runner.commands)
	}

	for _, rel := range []string{"lib/libfoo.a", manifest.FileName, ".parcel/recipe.yml"} {
		if _, err := os.Stat(filepath.Join(export, rel)); err != nil {
			t.Errorf("export tree missing %s: %v", rel, err)
		}
	}
}

func TestCMake_BuildFailure(t *testing.T) {
	t.Parallel()

	src := sourceTree(t)
	recipe, err := manifest.LoadRecipe(src)
	if err != nil {
		t.Fatal(err)
	}

	tc, err := For(recipe.Static.Toolchain, Options{Runner: &fakeRunner{failOn: "--build"}})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tc.BuildFromRecipe(context.Background(), recipe, src, dependency.DistributionStatic)
	var be *BuildError
	if !errors.As(err, &be) || !errors.Is(err, ErrBuildFailure) {
		t.Fatalf("BuildFromRecipe() error = %v, want BuildError", err)
	}
	if !strings.Contains(be.Command, "--build") || be.Output != "boom" {
		t.Errorf("BuildError = %+v", be)
	}

	if _, err := tc.BuildFromRecipe(context.Background(), recipe, src, dependency.DistributionShared); !errors.Is(err, manifest.ErrNoToolchain) {
		t.Errorf("missing shared section error = %v", err)
	}
}

func TestShell_BuildFromRecipe(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}

	src := sourceTree(t)
	recipe := &manifest.Recipe{Shared: &manifest.Toolchain{Toolchain: manifest.Section{Shell: []string{
		`mkdir -p "$PARCEL_EXPORT_DIR/lib"`,
		`touch $PARCEL_EXPORT_DIR/lib/libfoo-$PARCEL_DISTRIBUTION.so`,
	}}}}

	tc, err := For(recipe.Shared.Toolchain, Options{})
	if err != nil {
		t.Fatal(err)
	}
	export, err := tc.BuildFromRecipe(context.Background(), recipe, src, dependency.DistributionShared)
	if err != nil {
		t.Fatalf("BuildFromRecipe() error: %v", err)
	}
	for _, rel := range []string{"lib/libfoo-shared.so", manifest.FileName} {
		if _, err := os.Stat(filepath.Join(export, rel)); err != nil {
			t.Errorf("export tree missing %s: %v", rel, err)
		}
	}
}

func TestShell_NonZeroExit(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}

	src := sourceTree(t)
	recipe := &manifest.Recipe{Static: &manifest.Toolchain{Toolchain: manifest.Section{Shell: []string{"false"}}}}
	tc, err := For(recipe.Static.Toolchain, Options{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tc.BuildFromRecipe(context.Background(), recipe, src, dependency.DistributionStatic)
	var be *BuildError
	if !errors.As(err, &be) || be.ExitCode != 1 || be.Toolchain != "shell" {
		t.Fatalf("BuildFromRecipe() error = %v", err)
	}
}

func TestCopyPackageMetadata_MissingManifest(t *testing.T) {
	t.Parallel()

	err := CopyPackageMetadata(t.TempDir(), filepath.Join(t.TempDir(), "export"))
	if !errors.Is(err, manifest.ErrManifestMissing) {
		t.Errorf("CopyPackageMetadata() error = %v, want ErrManifestMissing", err)
	}
}

func TestCMake_ConfigureArgsOrder(t *testing.T) {
	t.Parallel()

	c := &CMake{Config: CMakeConfig{Definitions: map[string]string{
		"CMAKE_CXX_STANDARD": "20",
		"CMAKE_BUILD_TYPE":   "Release",
		"BUILD_SHARED_LIBS":  "ON",
	}}}
	section := &manifest.CMakeSection{
		Generator:   "Ninja",
		Definitions: map[string]string{"with_zlib": "on", "build_tests": "off"},
	}

	got := strings.Join(c.ConfigureArgs(section, "/src", "/tmp/target"), " ")
	want := "-S /src -B /tmp/target" +
		" -D BUILD_SHARED_LIBS=ON -D CMAKE_BUILD_TYPE=Release -D CMAKE_CXX_STANDARD=20" +
		" -DBUILD_TESTS=OFF -DWITH_ZLIB=ON" +
		" -DCMAKE_PREFIX_PATH=" + filepath.Join("/src", DependenciesDir) +
		" -G Ninja"
	if got != want {
		t.Errorf("ConfigureArgs() =\n%s\nwant\n%s", got, want)
	}
}
