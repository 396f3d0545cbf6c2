// SPDX-License-Identifier: MPL-2.0

// Package toolchain builds source packages into export trees.
//
// The CMake toolchain configures into a private scratch directory and installs
// into <source>/target/export; the Shell toolchain runs recipe commands in the
// source tree and expects them to fill the same export directory. Both copy the
// package manifest and the .parcel directory into the export tree.
package toolchain
