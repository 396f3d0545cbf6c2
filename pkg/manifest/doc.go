// SPDX-License-Identifier: MPL-2.0

// Package manifest reads the two files that describe a parcel package: the TOML
// manifest (parcel.toml) declaring its identity and needs, and the optional YAML
// recipe (.parcel/recipe.yml) describing how to build it from source.
package manifest
