// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// This package defines error types that include remediation steps and a catalog of
// Markdown explanations for the failures a parcel user is most likely to hit.
package issue
