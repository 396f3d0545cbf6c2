// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"strings"

	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/version"
)

// Need is one entry of the [needs] table, written as "<range>[@<distribution>]".
// The distribution defaults to shared.
type Need struct {
	Version      version.Range
	Distribution dependency.Distribution
}

// ParseNeed parses the "<range>[@<distribution>]" grammar.
func ParseNeed(s string) (Need, error) {
	rangeText, distText, hasDist := strings.Cut(s, "@")

	r, err := version.ParseRange(rangeText)
	if err != nil {
		return Need{}, err
	}

	dist := dependency.DistributionShared
	if hasDist {
		if dist, err = dependency.ParseDistribution(distText); err != nil {
			return Need{}, err
		}
	}
	return Need{Version: r, Distribution: dist}, nil
}

// Query builds the Dependency to look up for this need on the given target.
// Source needs are platform independent.
func (n Need) Query(name string, arch dependency.Arch, os dependency.OS) dependency.Dependency {
	return dependency.New(name, n.Version, arch, os, n.Distribution)
}

// String renders "<range>@<distribution>".
func (n Need) String() string {
	return fmt.Sprintf("%s@%s", n.Version, n.Distribution)
}

// MarshalText implements encoding.TextMarshaler.
func (n Need) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Need) UnmarshalText(text []byte) error {
	parsed, err := ParseNeed(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
