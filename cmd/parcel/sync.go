// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/invowk/parcel/internal/issue"

	"github.com/spf13/cobra"
)

func newSyncCommand(app *App) *cobra.Command {
	var lazy bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the package listings of every registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.fail(runSync(cmd, app, lazy))
		},
	}
	cmd.Flags().BoolVar(&lazy, "lazy", false, "reuse stored listings when present")
	return cmd
}

func runSync(cmd *cobra.Command, app *App, lazy bool) error {
	ctx := cmd.Context()
	svc, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if len(svc.registry.Remotes()) == 0 {
		fmt.Fprintln(app.stdout, WarningStyle.Render("No registries configured."))
		return nil
	}

	if err := svc.registry.PingAll(ctx); err != nil {
		return issue.WrapWithOperation(err, "reach registries")
	}
	syncErr := svc.registry.SyncAll(ctx, lazy)

	for _, r := range svc.registry.Remotes() {
		fmt.Fprintf(app.stdout, "  %s %d packages\n", PackageStyle.Render(r.Name()), len(r.Packages()))
	}
	fmt.Fprintf(app.stdout, "%s %d packages available\n", SuccessStyle.Render("Synced"), svc.registry.PackageCount())
	return syncErr
}
