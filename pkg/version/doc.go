// SPDX-License-Identifier: MPL-2.0

// Package version implements the three-component version numbers used by parcel
// packages and the closed-interval ranges that manifests use to request them.
package version
