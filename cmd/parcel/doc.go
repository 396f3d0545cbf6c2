// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for parcel.
//
// Every command receives the App, which loads the configuration and opens the
// cache, the registry index and the configured remotes for one invocation.
package cmd
