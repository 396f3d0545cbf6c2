// SPDX-License-Identifier: MPL-2.0

// Package archive packs and unpacks the gzip-compressed tarballs that carry parcel
// packages, both source trees and built export trees.
package archive
