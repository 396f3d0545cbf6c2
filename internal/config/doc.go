// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/parcel/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/parcel/config.cue on macOS, %APPDATA%\parcel\config.cue
// on Windows). It lists the remote registries in priority order, the CMake settings used
// for source builds, the cache and index locations and the checksum policy.
//
// Files are validated against the embedded config_schema.cue, then the decoded struct is
// checked with validator tags for the rules CUE cannot express. Every key can be overridden
// from the environment with the PARCEL_ prefix, for example PARCEL_CHECKSUM_POLICY=strict.
package config
