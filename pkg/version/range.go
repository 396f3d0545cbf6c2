// SPDX-License-Identifier: MPL-2.0

package version

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRange is the sentinel error wrapped by InvalidRangeError.
var ErrInvalidRange = errors.New("invalid version range")

type (
	// Range is a closed interval [Min, Max] of acceptable versions.
	// A concrete artifact carries a degenerate range where Min == Max.
	//
	// Grammar:
	//
	//	any | latest   [lowest, highest]
	//	=X             [X, X]
	//	<X             [lowest, X]
	//	^X | X         [X, highest]
	Range struct {
		Min Version
		Max Version
	}

	// InvalidRangeError is returned when a range string does not follow the range grammar.
	InvalidRangeError struct {
		Value string
		Err   error
	}
)

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid version range %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("invalid version range %q", e.Value)
}

// Unwrap returns ErrInvalidRange so callers can use errors.Is for programmatic detection.
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// Any returns the unbounded range [lowest, highest].
func Any() Range { return Range{Min: Lowest(), Max: Highest()} }

// Exact returns the degenerate range [v, v].
func Exact(v Version) Range { return Range{Min: v, Max: v} }

// AtLeast returns [v, highest].
func AtLeast(v Version) Range { return Range{Min: v, Max: Highest()} }

// ParseRange parses the range grammar. A bare version means "this version or newer".
func ParseRange(s string) (Range, error) {
	switch s {
	case "any", "latest":
		return Any(), nil
	}

	// "X..Y" is the rendered form of a bounded interval; accept it so String round-trips.
	if lo, hi, ok := strings.Cut(s, ".."); ok {
		return parseBounded(s, lo, hi)
	}

	var (
		build func(Version) Range
		rest  string
	)
	switch {
	case strings.HasPrefix(s, "="):
		build, rest = Exact, s[1:]
	case strings.HasPrefix(s, "<"):
		build, rest = func(v Version) Range { return Range{Min: Lowest(), Max: v} }, s[1:]
	case strings.HasPrefix(s, "^"):
		build, rest = AtLeast, s[1:]
	default:
		build, rest = AtLeast, s
	}

	v, err := Parse(rest)
	if err != nil {
		return Range{}, &InvalidRangeError{Value: s, Err: err}
	}
	return build(v), nil
}

func parseBounded(s, lo, hi string) (Range, error) {
	minV, err := Parse(lo)
	if err != nil {
		return Range{}, &InvalidRangeError{Value: s, Err: err}
	}
	maxV, err := Parse(hi)
	if err != nil {
		return Range{}, &InvalidRangeError{Value: s, Err: err}
	}
	if maxV.Less(minV) {
		return Range{}, &InvalidRangeError{Value: s, Err: fmt.Errorf("lower bound %s exceeds upper bound %s", minV, maxV)}
	}
	return Range{Min: minV, Max: maxV}, nil
}

// MustParseRange is like ParseRange but panics on malformed input.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether v lies inside the closed interval.
func (r Range) Contains(v Version) bool {
	return r.Min.Compare(v) <= 0 && v.Compare(r.Max) <= 0
}

// ContainsRange reports whether other is entirely inside r.
func (r Range) ContainsRange(other Range) bool {
	return r.Min.Compare(other.Min) <= 0 && other.Max.Compare(r.Max) <= 0
}

// IsExact reports whether the range pins a single version.
func (r Range) IsExact() bool { return r.Min == r.Max }

// String renders "=X" for exact ranges, "^X" for open-ended ranges and "X..Y" otherwise.
func (r Range) String() string {
	switch {
	case r.IsExact():
		return "=" + r.Min.String()
	case r.Max.IsHighest():
		return "^" + r.Min.String()
	default:
		return r.Min.String() + ".." + r.Max.String()
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Range) UnmarshalText(text []byte) error {
	parsed, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
