// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"context"
	"fmt"
	"os"

	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/manifest"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"
)

// Shell runs the recipe's commands one after another inside the source tree.
//
// Each command is split into words with POSIX shell rules. $PARCEL_SOURCE_DIR,
// $PARCEL_EXPORT_DIR and $PARCEL_DISTRIBUTION are expanded and also exported to
// the subprocess; everything else comes from the environment. No shell is
// spawned, so pipes and redirections are not available.
type Shell struct {
	runner Runner
	logger *log.Logger
}

// Name implements Toolchain.
func (s *Shell) Name() string { return "shell" }

// BuildFromRecipe implements Toolchain.
func (s *Shell) BuildFromRecipe(ctx context.Context, recipe *manifest.Recipe, sourceDir string, dist dependency.Distribution) (string, error) {
	section, err := recipe.Extract(dist)
	if err != nil {
		return "", err
	}
	if len(section.Shell) == 0 {
		return "", fmt.Errorf("%w: recipe is not configured for shell", manifest.ErrNoToolchain)
	}

	exportDir := ExportPath(sourceDir)
	vars := map[string]string{
		"PARCEL_SOURCE_DIR":   sourceDir,
		"PARCEL_EXPORT_DIR":   exportDir,
		"PARCEL_DISTRIBUTION": string(dist),
	}
	env := func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	}
	exported := make([]string, 0, len(vars))
	for k, v := range vars {
		exported = append(exported, k+"="+v)
	}

	for _, line := range section.Shell {
		words, err := shell.Fields(line, env)
		if err != nil {
			return "", &BuildError{Toolchain: s.Name(), Command: line, Err: err}
		}
		if len(words) == 0 {
			continue
		}
		cmd := Command{Dir: sourceDir, Name: words[0], Args: words[1:], Env: exported}
		if err := run(ctx, s.runner, s.logger, s.Name(), cmd); err != nil {
			return "", err
		}
	}

	if err := CopyPackageMetadata(sourceDir, exportDir); err != nil {
		return "", err
	}
	s.logger.Info("shell build finished", "distribution", dist, "export", exportDir)
	return exportDir, nil
}
