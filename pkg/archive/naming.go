// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"path/filepath"

	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/version"
)

// PackedSourcesSuffix ends the name of a tarball produced by PackSources.
const PackedSourcesSuffix = "-packed-sources" + dependency.ArchiveExt

// PackForCache packs an export tree into outDir under dep's canonical file name and
// returns the tarball path. dep must carry an exact version.
func PackForCache(dir, outDir string, dep dependency.Dependency) (string, error) {
	if !dep.Version.IsExact() {
		return "", fmt.Errorf("cannot pack %s for the cache: version %s is not exact", dep.Name, dep.Version)
	}

	target := filepath.Join(outDir, dep.FileName())
	if err := PackAll(dir, target); err != nil {
		return "", err
	}
	return target, nil
}

// PackSources packs a source tree for upload as {name}-{version}-packed-sources.tar.gz.
func PackSources(dir, outDir, name string, v version.Version) (string, error) {
	target := filepath.Join(outDir, fmt.Sprintf("%s-%s%s", name, v.Triple(), PackedSourcesSuffix))
	if err := Pack(dir, target); err != nil {
		return "", err
	}
	return target, nil
}
