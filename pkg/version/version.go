// SPDX-License-Identifier: MPL-2.0

package version

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
var ErrInvalidVersion = errors.New("invalid version")

type (
	// Version is an ordered (major, minor, patch) triple.
	// The zero value is the lowest version, 0.0.0.
	Version struct {
		Major uint16
		Minor uint16
		Patch uint16
	}

	// InvalidVersionError is returned when a string is not a dotted triple of
	// unsigned 16-bit integers.
	InvalidVersionError struct {
		Value  string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid version %q", e.Value)
	}
	return fmt.Sprintf("invalid version %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is for programmatic detection.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// New returns the version major.minor.patch.
func New(major, minor, patch uint16) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Lowest returns 0.0.0.
func Lowest() Version { return Version{} }

// Highest returns the largest representable version. It prints as "latest".
func Highest() Version {
	return Version{Major: math.MaxUint16, Minor: math.MaxUint16, Patch: math.MaxUint16}
}

// Parse parses a "major.minor.patch" string. "latest" parses as Highest.
func Parse(s string) (Version, error) {
	if s == "latest" {
		return Highest(), nil
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, &InvalidVersionError{Value: s, Reason: "expected major.minor.patch"}
	}

	var nums [3]uint16
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return Version{}, &InvalidVersionError{Value: s, Reason: fmt.Sprintf("segment %q is not a 16-bit unsigned integer", part)}
		}
		nums[i] = uint16(n)
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsLowest reports whether v is 0.0.0.
func (v Version) IsLowest() bool { return v == Lowest() }

// IsHighest reports whether v is the "latest" sentinel.
func (v Version) IsHighest() bool { return v == Highest() }

// Compare returns -1, 0 or +1 comparing v and other lexicographically.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpUint16(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpUint16(v.Minor, other.Minor)
	default:
		return cmpUint16(v.Patch, other.Patch)
	}
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// String returns "latest" for the highest sentinel and "M.m.p" otherwise.
func (v Version) String() string {
	if v.IsHighest() {
		return "latest"
	}
	return v.Triple()
}

// Triple always renders the numeric "M.m.p" form, even for the highest sentinel.
func (v Version) Triple() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpUint16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
