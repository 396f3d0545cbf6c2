// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/invowk/parcel/internal/artifactory"
	"github.com/invowk/parcel/internal/issue"
	"github.com/invowk/parcel/pkg/archive"
	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/manifest"

	"github.com/spf13/cobra"
)

type pushFlags struct {
	registry     string
	sources      bool
	arch         string
	os           string
	distribution string
	force        bool
}

func newPushCommand(app *App) *cobra.Command {
	var f pushFlags
	cmd := &cobra.Command{
		Use:   "push [DIR]",
		Short: "Publish a package to a registry",
		Long: `Pack DIR (default: the current directory) and upload it to a registry.

Without --sources DIR is packed as a binary for the given platform and
distribution. With --sources the source tree is packed; it must carry a
.parcel/recipe.yml so consumers can build it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return app.fail(runPush(cmd, app, dir, f))
		},
	}
	cmd.Flags().StringVarP(&f.registry, "registry", "r", "", "name of the registry to push to")
	cmd.Flags().BoolVar(&f.sources, "sources", false, "push the source tree instead of a binary")
	cmd.Flags().StringVar(&f.arch, "arch", "", "binary architecture (default: host)")
	cmd.Flags().StringVar(&f.os, "os", "", "binary operating system (default: host)")
	cmd.Flags().StringVarP(&f.distribution, "distribution", "d", string(dependency.DistributionStatic), "binary distribution: static or shared")
	cmd.Flags().BoolVar(&f.force, "force", false, "overwrite an existing artifact")
	_ = cmd.MarkFlagRequired("registry")
	return cmd
}

// pushIdentity returns the artifact identity of the package in dir.
func pushIdentity(m *manifest.Manifest, f pushFlags) (dependency.Dependency, error) {
	if f.sources {
		return m.Identity(dependency.ArchUnknown, dependency.OSUnknown, dependency.DistributionSources), nil
	}
	target, err := parseTarget(f.arch, f.os)
	if err != nil {
		return dependency.Dependency{}, err
	}
	dist, err := dependency.ParseDistribution(f.distribution)
	if err != nil {
		return dependency.Dependency{}, err
	}
	if !dist.IsBinary() {
		return dependency.Dependency{}, fmt.Errorf("%w: %s is not a binary distribution, use --sources", dependency.ErrInvalidDistribution, dist)
	}
	return m.Identity(target.Arch, target.OS, dist), nil
}

func runPush(cmd *cobra.Command, app *App, dir string, f pushFlags) error {
	ctx := cmd.Context()

	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	m, err := manifest.Load(dir)
	if err != nil {
		return issue.WrapWithContext(err, "push", dir)
	}
	dep, err := pushIdentity(m, f)
	if err != nil {
		return err
	}

	svc, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	remote, err := svc.registry.Remote(f.registry)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("push").
			WithResource(f.registry).
			WithSuggestion("list the configured registries with 'parcel config show'").
			Wrap(err).
			BuildError()
	}

	tmp, err := os.MkdirTemp("", "parcel-push-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	var tarball string
	if f.sources {
		if _, err := manifest.LoadRecipe(dir); err != nil {
			return issue.WrapWithContext(err, "push sources", dir)
		}
		tarball, err = archive.PackSources(dir, tmp, m.This.Name, m.This.ExactVersion())
	} else {
		tarball, err = archive.PackForCache(dir, tmp, dep)
	}
	if err != nil {
		return err
	}

	result, err := remote.Push(ctx, artifactory.PushRequest{Dependency: dep, Tarball: tarball, Force: f.force})
	if err != nil {
		return issue.WrapWithContext(err, "push "+dep.FileName(), remote.Name())
	}

	switch result {
	case artifactory.PushSkipped:
		fmt.Fprintf(app.stdout, "%s %s already exists in %s (use --force to overwrite)\n",
			WarningStyle.Render("Skipped"), dep.FileName(), remote.Name())
	default:
		fmt.Fprintf(app.stdout, "%s %s to %s (%s)\n",
			SuccessStyle.Render("Pushed"), dep.FileName(), remote.Name(), result)
	}
	return nil
}
