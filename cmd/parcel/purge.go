// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/invowk/parcel/internal/cache"
	"github.com/invowk/parcel/internal/config"
	"github.com/invowk/parcel/internal/index"
	"github.com/invowk/parcel/internal/logging"

	"github.com/spf13/cobra"
)

type purgeFlags struct {
	cache  bool
	config bool
	index  bool
	all    bool
}

func newPurgeCommand(app *App) *cobra.Command {
	var f purgeFlags
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete local parcel state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.fail(runPurge(cmd, app, f))
		},
	}
	cmd.Flags().BoolVar(&f.cache, "cache", false, "delete every cached artifact")
	cmd.Flags().BoolVar(&f.config, "configuration", false, "delete the configuration directory")
	cmd.Flags().BoolVar(&f.index, "index", false, "delete the stored registry listings")
	cmd.Flags().BoolVar(&f.all, "all", false, "delete cache, index and configuration")
	return cmd
}

func runPurge(cmd *cobra.Command, app *App, f purgeFlags) error {
	if f.all {
		f.cache, f.config, f.index = true, true, true
	}
	if !f.cache && !f.config && !f.index {
		return errors.New("nothing to purge: pass --cache, --index, --configuration or --all")
	}

	cfg, _, err := app.loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{Prefix: config.AppName, Verbose: app.verbose(cfg), Output: app.stderr})
	cacheDir, indexDir, err := dataDirs(cfg)
	if err != nil {
		return err
	}

	if f.cache {
		c, err := cache.New(cacheDir, nil, logging.Component(logger, "cache"))
		if err != nil {
			return err
		}
		if err := c.Purge(); err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "%s cache %s\n", SuccessStyle.Render("Purged"), cacheDir)
	}

	if f.index {
		store, err := index.Open(index.Options{Dir: indexDir, Logger: logging.Component(logger, "index")})
		if err != nil {
			return err
		}
		err = store.Clear()
		if closeErr := store.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "%s index %s\n", SuccessStyle.Render("Purged"), indexDir)
	}

	if f.config {
		dir := app.flags.configDir
		if dir == "" {
			if dir, err = config.ConfigDir(); err != nil {
				return err
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove config directory %s: %w", dir, err)
		}
		fmt.Fprintf(app.stdout, "%s config %s\n", SuccessStyle.Render("Purged"), dir)
	}
	return nil
}
