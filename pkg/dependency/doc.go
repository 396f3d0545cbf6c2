// SPDX-License-Identifier: MPL-2.0

// Package dependency defines the identity of a parcel artifact (name, version range,
// architecture, operating system and distribution) and the canonical tarball file name
// that encodes it on disk and in remote registries.
package dependency
