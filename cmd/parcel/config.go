// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"slices"

	"github.com/invowk/parcel/internal/config"

	"github.com/spf13/cobra"
)

const redacted = "********"

// newConfigCommand creates the `parcel config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage parcel configuration",
		Long: `Manage parcel configuration.

Configuration is stored in:
  - Linux: ~/.config/parcel/config.cue
  - macOS: ~/Library/Application Support/parcel/config.cue
  - Windows: %APPDATA%\parcel\config.cue

Every key can be overridden with a PARCEL_ environment variable, for example
PARCEL_CHECKSUM_POLICY=strict.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.fail(showConfig(cmd, app))
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create the default configuration file",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.fail(initConfig(app))
			},
		},
	)
	return cfgCmd
}

func showConfig(cmd *cobra.Command, app *App) error {
	cfg, path, err := app.loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	if path == "" {
		fmt.Fprintf(app.stdout, "Config file: %s\n\n", SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(app.stdout, "Config file: %s\n\n", path)
	}
	fmt.Fprint(app.stdout, config.GenerateCUE(redactSecrets(cfg)))
	return nil
}

// redactSecrets returns a copy of cfg without registry passwords.
func redactSecrets(cfg *config.Config) *config.Config {
	out := *cfg
	out.Registries = slices.Clone(cfg.Registries)
	for i := range out.Registries {
		if out.Registries[i].Auth.Password != "" {
			out.Registries[i].Auth.Password = redacted
		}
	}
	return &out
}

func initConfig(app *App) error {
	path, err := config.CreateDefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	fmt.Fprintf(app.stdout, "%s Configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
