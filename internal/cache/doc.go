// SPDX-License-Identifier: MPL-2.0

// Package cache stores downloaded and locally built artifacts under their
// canonical file names.
//
// The cache is a single flat directory. Lookups decode every file name, keep the
// ones satisfying the query and pick the highest version; binary queries may fall
// back to the matching source package. Entries are never modified in place,
// they are only added (by download or build) or removed by Purge.
package cache
