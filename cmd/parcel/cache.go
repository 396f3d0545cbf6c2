// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/invowk/parcel/internal/cache"
	"github.com/invowk/parcel/internal/config"
	"github.com/invowk/parcel/internal/logging"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local artifact cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached artifacts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.fail(runCacheList(cmd, app))
			},
		},
		&cobra.Command{
			Use:   "size",
			Short: "Print the total size of the cache",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.fail(runCacheSize(cmd, app))
			},
		},
	)
	return cmd
}

// openCache opens the configured cache without a fetcher.
func (a *App) openCache(cmd *cobra.Command) (*cache.Cache, error) {
	cfg, _, err := a.loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	dir, _, err := dataDirs(cfg)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Options{Prefix: config.AppName, Verbose: a.verbose(cfg), Output: a.stderr})
	return cache.New(dir, nil, logging.Component(logger, "cache"))
}

func runCacheList(cmd *cobra.Command, app *App) error {
	c, err := app.openCache(cmd)
	if err != nil {
		return err
	}
	entries, err := c.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("Cache is empty:"), c.Dir())
		return nil
	}

	slices.SortFunc(entries, func(a, b cache.Entry) int {
		return strings.Compare(a.Dependency.FileName(), b.Dependency.FileName())
	})
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		d := e.Dependency
		rows = append(rows, []string{
			d.Name, d.Version.String(), d.Arch.String(), d.OS.String(), d.Distribution.String(), humanize.IBytes(uint64(e.Size)),
		})
	}
	writeTable(app.stdout, []string{"NAME", "VERSION", "ARCH", "OS", "DISTRIBUTION", "SIZE"}, rows)
	return nil
}

func runCacheSize(cmd *cobra.Command, app *App) error {
	c, err := app.openCache(cmd)
	if err != nil {
		return err
	}
	total, err := c.CheckTotalSize()
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s %s\n", humanize.IBytes(uint64(total)), SubtitleStyle.Render(c.Dir()))
	return nil
}

// writeTable prints left-aligned columns padded to their widest cell.
func writeTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Fprintln(w, tableHeaderStyle.Render(line(header)))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}
