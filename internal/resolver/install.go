// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/invowk/parcel/internal/toolchain"
	"github.com/invowk/parcel/pkg/archive"
)

// install unpacks every entry into root/dependencies. Later entries overwrite
// files of earlier ones.
func (r *Resolver) install(s *session, root string, entries []Entry) error {
	dir := filepath.Join(root, toolchain.DependenciesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.RequiresBuild {
			return fmt.Errorf("%s was not built before installation", e.Dependency)
		}
		if err := archive.Unpack(e.TarPath, dir); err != nil {
			return fmt.Errorf("failed to install %s: %w", e.Dependency.Name, err)
		}
		s.logger.Debug("installed", "dependency", e.Dependency.Name, "from", filepath.Base(e.TarPath))
	}

	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}
	r.metrics.Installed(len(entries))
	return nil
}
