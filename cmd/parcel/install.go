// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/invowk/parcel/internal/issue"
	"github.com/invowk/parcel/internal/resolver"
	"github.com/invowk/parcel/pkg/dependency"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type installFlags struct {
	folder string
	fresh  bool
	exact  bool
	arch   string
	os     string
	lazy   bool
}

func newInstallCommand(app *App) *cobra.Command {
	var f installFlags
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the dependencies of a project",
		Long: `Resolve the [needs] of parcel.toml and install them into <folder>/dependencies.

Every dependency is looked up in the local cache, then the registries, first as
a binary and then as sources. Sources are built with the recipe they ship.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.fail(runInstall(cmd, app, f))
		},
	}
	cmd.Flags().StringVarP(&f.folder, "folder", "f", ".", "project directory containing parcel.toml")
	cmd.Flags().BoolVar(&f.fresh, "fresh", false, "remove installed dependencies before resolving")
	cmd.Flags().BoolVar(&f.exact, "exact", false, "keep every requested version instead of the highest")
	cmd.Flags().StringVar(&f.arch, "arch", "", "target architecture (default: host)")
	cmd.Flags().StringVar(&f.os, "os", "", "target operating system (default: host)")
	cmd.Flags().BoolVar(&f.lazy, "lazy", false, "reuse stored registry listings instead of syncing")
	return cmd
}

func parseTarget(arch, goos string) (resolver.Target, error) {
	t := resolver.HostTarget()
	if arch != "" {
		a, err := dependency.ParseArch(arch)
		if err != nil {
			return t, err
		}
		t.Arch = a
	}
	if goos != "" {
		t.OS = dependency.ParseOS(goos)
	}
	return t, nil
}

func runInstall(cmd *cobra.Command, app *App, f installFlags) error {
	ctx := cmd.Context()

	root, err := filepath.Abs(f.folder)
	if err != nil {
		return err
	}
	target, err := parseTarget(f.arch, f.os)
	if err != nil {
		return err
	}

	svc, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.registry.SyncAll(ctx, f.lazy); err != nil {
		svc.logger.Warn("registry sync incomplete, continuing with what is available", "error", err)
	}

	var buildOutput io.Writer
	if app.verbose(svc.cfg) {
		buildOutput = app.stderr
	}
	r, err := svc.newResolver(target, resolver.Options{ExactVersions: f.exact, Fresh: f.fresh}, buildOutput)
	if err != nil {
		return err
	}

	start := time.Now()
	entries, err := r.Resolve(ctx, root)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("install dependencies").
			WithResource(root).
			WithSuggestions(installSuggestions(err)...).
			WithIssue(classifyError(err)).
			Wrap(err).
			BuildError()
	}

	fmt.Fprintf(app.stdout, "%s %d dependencies for %s/%s in %s\n",
		SuccessStyle.Render("Installed"), len(entries), target.Arch, target.OS, time.Since(start).Round(time.Millisecond))
	for _, e := range entries {
		fmt.Fprintf(app.stdout, "  %s %s\n", PackageStyle.Render(e.Dependency.Name), e.Dependency.FileName())
	}

	if size, err := svc.cache.CheckTotalSize(); err == nil {
		svc.logger.Debug("cache size", "bytes", humanize.IBytes(uint64(size)))
	}
	return nil
}

func installSuggestions(err error) []string {
	switch classifyError(err) {
	case issue.DependencyNotFoundId:
		return []string{"run 'parcel sync' to refresh registry listings", "check the version range in parcel.toml"}
	case issue.BuildFailedId:
		return []string{"rerun with --verbose to see the build output"}
	case issue.ManifestNotFoundId:
		return []string{"run the command from a directory containing parcel.toml or pass --folder"}
	default:
		return nil
	}
}
