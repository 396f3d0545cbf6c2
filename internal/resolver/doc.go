// SPDX-License-Identifier: MPL-2.0

// Package resolver turns a package manifest into an installed dependency tree.
//
// Every need is looked up through four tiers: a binary in the local cache, a
// binary in a remote registry, sources in the cache and finally sources in a
// registry. Source hits are built with the package recipe, packed under their
// canonical name and put back into the cache before installation.
package resolver
