// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/invowk/parcel/internal/config"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the parcel command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "parcel",
		Short: "A package manager for native C and C++ libraries",
		Long: TitleStyle.Render("parcel") + SubtitleStyle.Render(" - A package manager for native C and C++ libraries") + `

parcel reads the dependencies a project declares in parcel.toml, finds
prebuilt binaries in the local cache or a configured registry, builds from
sources when no binary fits, and installs everything into ./dependencies.

` + SubtitleStyle.Render("Examples:") + `
  parcel install                 Install the dependencies of the current project
  parcel install --exact         Keep every requested version side by side
  parcel push --registry main    Publish the current project as a binary
  parcel cache list              Show what is cached locally`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if app.flags.configDir != "" {
				config.SetConfigDirOverride(app.flags.configDir)
			}
		},
	}
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	flags := root.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.flags.configFile, "config", "", "config file (default is <config dir>/config.cue)")
	flags.StringVar(&app.flags.configDir, "config-dir", "", "configuration directory")

	root.AddCommand(
		newInstallCommand(app),
		newSyncCommand(app),
		newPushCommand(app),
		newPurgeCommand(app),
		newCacheCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the parcel version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(app.stdout, "parcel "+getVersionString())
		},
	}
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	// fang overrides root.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
