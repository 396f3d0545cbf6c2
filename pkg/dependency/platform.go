// SPDX-License-Identifier: MPL-2.0

package dependency

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

const (
	ArchX86_64      Arch = "x86_64"
	ArchAarch64     Arch = "aarch64"
	ArchArm         Arch = "arm"
	ArchArmV5TE     Arch = "armv5te"
	ArchArmV7       Arch = "armv7"
	ArchArmV7A      Arch = "armv7a"
	ArchArmV7R      Arch = "armv7r"
	ArchArmV8       Arch = "armv8"
	ArchLoongarch64 Arch = "loongarch64"
	// ArchUnknown is carried by platform-independent artifacts such as source packages.
	ArchUnknown Arch = "unknown"

	OSLinux   OS = "linux"
	OSWindows OS = "windows"
	OSMacOS   OS = "macos"
	OSAndroid OS = "android"
	// OSUnknown is carried by platform-independent artifacts and by unrecognized input.
	OSUnknown OS = "unknown"

	// DistributionStatic is a statically linkable library.
	DistributionStatic Distribution = "static"
	// DistributionShared is a dynamically linkable library. It is the default for manifest needs.
	DistributionShared Distribution = "shared"
	// DistributionSources is an unbuilt source package that must be compiled with its recipe.
	DistributionSources Distribution = "sources"
	// DistributionUnknown matches nothing and is never produced by a build.
	DistributionUnknown Distribution = "unknown"
)

var (
	// ErrInvalidArch is the sentinel error wrapped by InvalidArchError.
	ErrInvalidArch = errors.New("invalid architecture")
	// ErrInvalidDistribution is the sentinel error wrapped by InvalidDistributionError.
	ErrInvalidDistribution = errors.New("invalid distribution")

	archAliases = map[string]Arch{
		"x86_64": ArchX86_64, "amd64": ArchX86_64, "x64": ArchX86_64, "86_64": ArchX86_64, "x86-64": ArchX86_64,
		"aarch64": ArchAarch64, "arm64": ArchAarch64, "arm64-v8a": ArchAarch64, "aarch64-v8a": ArchAarch64,
		"arm": ArchArm, "armv6": ArchArm, "armv6l": ArchArm, "armv6hf": ArchArm,
		"armv5te": ArchArmV5TE, "armv5tejl": ArchArmV5TE,
		"armv7": ArchArmV7, "armv7l": ArchArmV7,
		"armv7a": ArchArmV7A, "armv7al": ArchArmV7A,
		"armv7r": ArchArmV7R, "armv7rl": ArchArmV7R,
		"armv8": ArchArmV8, "armv8l": ArchArmV8,
		"loongarch64": ArchLoongarch64, "loongarch": ArchLoongarch64, "loongarch64l": ArchLoongarch64,
		"unknown": ArchUnknown, "any": ArchUnknown,
	}

	osAliases = map[string]OS{
		"linux": OSLinux, "unix": OSLinux, "linux-gnu": OSLinux, "gnu/linux": OSLinux, "gnu": OSLinux,
		"windows": OSWindows, "win32": OSWindows, "win": OSWindows, "microsoft": OSWindows,
		"macos": OSMacOS, "darwin": OSMacOS, "mac": OSMacOS, "apple": OSMacOS,
		"android": OSAndroid, "android-os": OSAndroid, "androidos": OSAndroid,
	}

	distributionAliases = map[string]Distribution{
		"static": DistributionStatic, "static-lib": DistributionStatic,
		"shared": DistributionShared, "dynamic": DistributionShared, "dyn": DistributionShared, "dynamic-lib": DistributionShared,
		"sources": DistributionSources, "source": DistributionSources, "src": DistributionSources,
		"unknown": DistributionUnknown, "any": DistributionUnknown,
	}
)

type (
	// Arch is a target CPU architecture in its canonical spelling.
	Arch string

	// OS is a target operating system in its canonical spelling.
	OS string

	// Distribution is the linkage or form of an artifact.
	Distribution string

	// InvalidArchError is returned when an architecture name has no known alias.
	InvalidArchError struct {
		Value string
	}

	// InvalidDistributionError is returned when a distribution name has no known alias.
	InvalidDistributionError struct {
		Value string
	}
)

// Error implements the error interface.
func (e *InvalidArchError) Error() string {
	return fmt.Sprintf("unknown architecture %q", e.Value)
}

// Unwrap returns ErrInvalidArch so callers can use errors.Is for programmatic detection.
func (e *InvalidArchError) Unwrap() error { return ErrInvalidArch }

// Error implements the error interface.
func (e *InvalidDistributionError) Error() string {
	return fmt.Sprintf("unknown distribution %q (expected static, shared or sources)", e.Value)
}

// Unwrap returns ErrInvalidDistribution so callers can use errors.Is for programmatic detection.
func (e *InvalidDistributionError) Unwrap() error { return ErrInvalidDistribution }

// ParseArch resolves an architecture name or alias (amd64, arm64, armv7l, ...) case-insensitively.
func ParseArch(s string) (Arch, error) {
	if a, ok := archAliases[strings.ToLower(s)]; ok {
		return a, nil
	}
	return ArchUnknown, &InvalidArchError{Value: s}
}

// ParseOS resolves an operating system name or alias. Unrecognized input maps to OSUnknown.
func ParseOS(s string) OS {
	if o, ok := osAliases[strings.ToLower(s)]; ok {
		return o
	}
	return OSUnknown
}

// ParseDistribution resolves a distribution name or alias (dynamic, dyn, src, ...).
func ParseDistribution(s string) (Distribution, error) {
	if d, ok := distributionAliases[strings.ToLower(s)]; ok {
		return d, nil
	}
	return DistributionUnknown, &InvalidDistributionError{Value: s}
}

// HostArch maps the running binary's GOARCH to an Arch.
func HostArch() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return ArchX86_64
	case "arm64":
		return ArchAarch64
	case "arm":
		return ArchArm
	case "loong64":
		return ArchLoongarch64
	default:
		return ArchUnknown
	}
}

// HostOS maps the running binary's GOOS to an OS.
func HostOS() OS {
	return ParseOS(runtime.GOOS)
}

// IsValid reports whether a is one of the canonical architectures, including ArchUnknown.
func (a Arch) IsValid() (bool, []error) {
	if archAliases[string(a)] == a && a != "" {
		return true, nil
	}
	return false, []error{&InvalidArchError{Value: string(a)}}
}

// String returns the canonical spelling.
func (a Arch) String() string { return string(a) }

// String returns the canonical spelling.
func (o OS) String() string { return string(o) }

// IsValid reports whether d is one of the canonical distributions.
func (d Distribution) IsValid() (bool, []error) {
	if distributionAliases[string(d)] == d && d != "" {
		return true, nil
	}
	return false, []error{&InvalidDistributionError{Value: string(d)}}
}

// IsBinary reports whether d is a built linkage (static or shared).
func (d Distribution) IsBinary() bool {
	return d == DistributionStatic || d == DistributionShared
}

// Opposite returns the other binary linkage; it is used when a recipe only covers one of them.
func (d Distribution) Opposite() Distribution {
	switch d {
	case DistributionStatic:
		return DistributionShared
	case DistributionShared:
		return DistributionStatic
	default:
		return d
	}
}

// String returns the canonical spelling.
func (d Distribution) String() string { return string(d) }

func isCanonicalOS(o OS) bool {
	return o == OSUnknown || osAliases[string(o)] == o
}
