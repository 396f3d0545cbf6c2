// SPDX-License-Identifier: MPL-2.0

// Package artifactory implements the remote package sources: Artifactory generic
// repositories queried with AQL, S3-compatible buckets, and the Registry that
// tries them in order.
//
// Every remote keeps an in-memory listing of canonically named artifacts, built
// by Sync and optionally persisted in an index.Store. Downloads are verified
// against the MD5 advertised by the remote according to a ChecksumPolicy.
package artifactory
