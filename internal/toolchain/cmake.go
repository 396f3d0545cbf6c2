// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/manifest"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"mvdan.cc/sh/v3/shell"
)

// CMake configures, builds and installs a CMake project.
type CMake struct {
	Config CMakeConfig

	runner Runner
	logger *log.Logger
}

// Name implements Toolchain.
func (c *CMake) Name() string { return "cmake" }

// command splits the configured cmake command into program and leading arguments.
func (c *CMake) command() (string, []string, error) {
	raw := c.Config.ConfigureCommand
	if strings.TrimSpace(raw) == "" {
		raw = "cmake"
	}
	fields, err := shell.Fields(raw, nil)
	if err != nil {
		return "", nil, fmt.Errorf("invalid cmake command %q: %w", raw, err)
	}
	if len(fields) == 0 {
		return "cmake", nil, nil
	}
	return fields[0], fields[1:], nil
}

// ConfigureArgs returns the arguments of the configure step.
func (c *CMake) ConfigureArgs(section *manifest.CMakeSection, sourceDir, targetDir string) []string {
	args := []string{"-S", sourceDir, "-B", targetDir}
	appKeys := maps.Keys(c.Config.Definitions)
	slices.Sort(appKeys)
	for _, k := range appKeys {
		args = append(args, "-D", k+"="+c.Config.Definitions[k])
	}
	if section != nil {
		recipeKeys := maps.Keys(section.Definitions)
		slices.Sort(recipeKeys)
		for _, k := range recipeKeys {
			args = append(args, fmt.Sprintf("-D%s=%s", strings.ToUpper(k), strings.ToUpper(section.Definitions[k])))
		}
	}
	args = append(args, "-DCMAKE_PREFIX_PATH="+filepath.Join(sourceDir, DependenciesDir))
	if section != nil && section.Generator != "" {
		args = append(args, "-G", section.Generator)
	}
	return args
}

// BuildFromRecipe implements Toolchain.
func (c *CMake) BuildFromRecipe(ctx context.Context, recipe *manifest.Recipe, sourceDir string, dist dependency.Distribution) (string, error) {
	section, err := recipe.Extract(dist)
	if err != nil {
		return "", err
	}
	if section.CMake == nil {
		return "", fmt.Errorf("%w: recipe is not configured for cmake", manifest.ErrNoToolchain)
	}

	name, lead, err := c.command()
	if err != nil {
		return "", err
	}

	scratch := filepath.Join(os.TempDir(), "parcel-"+uuid.NewString())
	defer func() { _ = os.RemoveAll(scratch) }()
	targetDir := filepath.Join(scratch, TargetDir)
	exportDir := ExportPath(sourceDir)

	steps := [][]string{
		c.ConfigureArgs(section.CMake, sourceDir, targetDir),
		{"--build", targetDir, "--config", "release", "--parallel"},
		{"--install", targetDir, "--prefix", exportDir, "--config", "release"},
	}
	for _, args := range steps {
		cmd := Command{Dir: sourceDir, Name: name, Args: append(slices.Clone(lead), args...)}
		if err := run(ctx, c.runner, c.logger, c.Name(), cmd); err != nil {
			return "", err
		}
	}

	if err := CopyPackageMetadata(sourceDir, exportDir); err != nil {
		return "", err
	}
	c.logger.Info("cmake build finished", "distribution", dist, "export", exportDir)
	return exportDir, nil
}
