// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"fmt"
	"os"

	"github.com/invowk/parcel/pkg/archive"
	"github.com/invowk/parcel/pkg/manifest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// build compiles a source entry, stores the result in the cache and returns the
// entry rebound to the binary tarball.
func (r *Resolver) build(ctx context.Context, s *session, e Entry) (_ Entry, err error) {
	ctx, span := r.tracer.Start(ctx, "resolver.build", trace.WithAttributes(
		attribute.String("parcel.dependency", e.Dependency.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sourceDir, err := os.MkdirTemp("", "parcel-src-"+e.Dependency.Name+"-")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create build directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(sourceDir) }()

	if err := archive.Unpack(e.TarPath, sourceDir); err != nil {
		return Entry{}, err
	}

	s.logger.Info("building from sources", "dependency", e.Dependency.Name, "version", e.Dependency.Version.Min)
	if err := s.enter(e.Dependency); err != nil {
		return Entry{}, err
	}
	_, err = r.resolve(ctx, s, sourceDir)
	s.leave(e.Dependency)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to resolve dependencies of %s: %w", e.Dependency.Name, err)
	}

	recipe, err := manifest.LoadRecipe(sourceDir)
	if err != nil {
		return Entry{}, err
	}
	section, dist, err := recipe.Select(e.Dependency.Distribution)
	if err != nil {
		return Entry{}, err
	}
	if dist != e.Dependency.Distribution {
		s.logger.Warn("recipe has no section for the requested distribution, building the other one",
			"dependency", e.Dependency.Name, "requested", e.Dependency.Distribution, "building", dist)
		e.Dependency.Distribution = dist
	}

	tc, err := r.toolchains(section)
	if err != nil {
		return Entry{}, err
	}
	span.SetAttributes(attribute.String("parcel.toolchain", tc.Name()))
	exportDir, err := tc.BuildFromRecipe(ctx, recipe, sourceDir, dist)
	r.metrics.Build(tc.Name(), err)
	if err != nil {
		return Entry{}, err
	}

	outDir, err := os.MkdirTemp("", "parcel-out-")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	tarball, err := archive.PackForCache(exportDir, outDir, e.Dependency)
	if err != nil {
		return Entry{}, err
	}
	if _, err := r.cache.Put(tarball); err != nil {
		return Entry{}, err
	}
	path, err := r.cache.Get(e.Dependency, false)
	if err != nil {
		return Entry{}, fmt.Errorf("built %s but cannot find it in the cache: %w", e.Dependency.Name, err)
	}

	e.TarPath = path
	e.RequiresBuild = false
	s.logger.Info("built", "dependency", e.Dependency.Name, "distribution", e.Dependency.Distribution)
	return e, nil
}
