// SPDX-License-Identifier: MPL-2.0

package dependency

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/invowk/parcel/pkg/version"
)

// ArchiveExt is the extension of every canonical artifact.
const ArchiveExt = ".tar.gz"

// ErrInvalidPackageName is the sentinel error wrapped by InvalidPackageNameError.
var ErrInvalidPackageName = errors.New("invalid package name")

// packageNamePattern is the single grammar for canonical artifact names:
//
//	{name}-{major}.{minor}.{patch}-{arch}-{os}-{distribution}.tar.gz
//
// Canonical arch, os and distribution spellings never contain '-', so the
// lazy name capture stops at the first version-shaped segment.
var packageNamePattern = regexp.MustCompile(
	`^([A-Za-z0-9_.+-]+?)-([0-9]+\.[0-9]+\.[0-9]+)-([A-Za-z0-9_]+)-([A-Za-z0-9]+)-([A-Za-z]+)\.tar\.gz$`,
)

type (
	// Dependency identifies either a wanted artifact (a query with a version range)
	// or an available one (a degenerate range where Min == Max).
	//
	// Source packages are platform independent: a Dependency with
	// DistributionSources always carries ArchUnknown and OSUnknown.
	Dependency struct {
		Name         string
		Version      version.Range
		Arch         Arch
		OS           OS
		Distribution Distribution
	}

	// InvalidPackageNameError is returned when a file name does not follow the canonical grammar.
	InvalidPackageNameError struct {
		Value  string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidPackageNameError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid package name %q", e.Value)
	}
	return fmt.Sprintf("invalid package name %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPackageName so callers can use errors.Is for programmatic detection.
func (e *InvalidPackageNameError) Unwrap() error { return ErrInvalidPackageName }

// New builds a Dependency, clearing arch and os for source packages.
func New(name string, v version.Range, arch Arch, os OS, dist Distribution) Dependency {
	if dist == DistributionSources {
		arch, os = ArchUnknown, OSUnknown
	}
	return Dependency{Name: name, Version: v, Arch: arch, OS: os, Distribution: dist}
}

// FromPackageName decodes a canonical artifact file name. Directory components are ignored.
func FromPackageName(name string) (Dependency, error) {
	base := filepath.Base(name)
	m := packageNamePattern.FindStringSubmatch(base)
	if m == nil {
		return Dependency{}, &InvalidPackageNameError{Value: base}
	}

	v, err := version.Parse(m[2])
	if err != nil {
		return Dependency{}, &InvalidPackageNameError{Value: base, Reason: err.Error()}
	}

	arch := Arch(m[3])
	if ok, _ := arch.IsValid(); !ok {
		return Dependency{}, &InvalidPackageNameError{Value: base, Reason: fmt.Sprintf("non-canonical architecture %q", m[3])}
	}
	os := OS(m[4])
	if !isCanonicalOS(os) {
		return Dependency{}, &InvalidPackageNameError{Value: base, Reason: fmt.Sprintf("non-canonical operating system %q", m[4])}
	}
	dist := Distribution(m[5])
	if ok, _ := dist.IsValid(); !ok {
		return Dependency{}, &InvalidPackageNameError{Value: base, Reason: fmt.Sprintf("non-canonical distribution %q", m[5])}
	}
	if dist == DistributionSources && (arch != ArchUnknown || os != OSUnknown) {
		return Dependency{}, &InvalidPackageNameError{Value: base, Reason: "source packages must be unknown-unknown"}
	}

	return Dependency{
		Name:         m[1],
		Version:      version.Exact(v),
		Arch:         arch,
		OS:           os,
		Distribution: dist,
	}, nil
}

// FileName encodes the canonical artifact name. The version range must be exact;
// for a non-exact range the lower bound is used.
func (d Dependency) FileName() string {
	return fmt.Sprintf("%s-%s-%s-%s-%s%s", d.Name, d.Version.Min.Triple(), d.Arch, d.OS, d.Distribution, ArchiveExt)
}

// IsSources reports whether d refers to an unbuilt source package.
func (d Dependency) IsSources() bool { return d.Distribution == DistributionSources }

// RangedCompare reports whether d, typically a concrete artifact, satisfies query:
// names are equal, arch and os are equal unless query is a sources query, and
// d's version interval lies inside query's.
func (d Dependency) RangedCompare(query Dependency) bool {
	if d.Name != query.Name {
		return false
	}
	if !query.IsSources() && (d.Arch != query.Arch || d.OS != query.OS) {
		return false
	}
	return query.Version.ContainsRange(d.Version)
}

// Satisfies is RangedCompare plus an exact distribution match. Lookups use it so a
// sources query never selects a binary and a shared query never selects a static build.
func (d Dependency) Satisfies(query Dependency) bool {
	return d.Distribution == query.Distribution && d.RangedCompare(query)
}

// AsSources relaxes a binary query into the matching source-package query.
func (d Dependency) AsSources() Dependency {
	d.Arch, d.OS, d.Distribution = ArchUnknown, OSUnknown, DistributionSources
	return d
}

// WithVersion rebinds d to the exact version v.
func (d Dependency) WithVersion(v version.Version) Dependency {
	d.Version = version.Exact(v)
	return d
}

// WithVersionFromFileName rebinds d to the exact version encoded in a canonical file name.
func (d Dependency) WithVersionFromFileName(path string) (Dependency, error) {
	found, err := FromPackageName(path)
	if err != nil {
		return Dependency{}, err
	}
	return d.WithVersion(found.Version.Min), nil
}

// Key identifies d in visited and grouping maps.
func (d Dependency) Key() string {
	return fmt.Sprintf("%s@%s/%s/%s/%s", d.Name, d.Version, d.Distribution, d.Arch, d.OS)
}

// String returns the human-readable form name@range/distribution/arch/os.
func (d Dependency) String() string {
	return d.Key()
}
