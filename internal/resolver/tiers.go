// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"

	"github.com/invowk/parcel/internal/artifactory"
	"github.com/invowk/parcel/pkg/dependency"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tier names, also used as metric labels.
const (
	TierCacheBinary     = "cache-binary"
	TierRegistryBinary  = "registry-binary"
	TierCacheSources    = "cache-sources"
	TierRegistrySources = "registry-sources"
)

type (
	getter func(ctx context.Context, dep dependency.Dependency, allowSources bool) (string, error)

	// tier is one link of the lookup chain.
	tier struct {
		name          string
		get           getter
		allowSources  bool
		requiresBuild bool
	}
)

// tiers returns the lookup chain in priority order. Binaries always win over
// sources, and the local cache wins over the registry within each kind.
func (r *Resolver) tiers() []tier {
	return []tier{
		{name: TierCacheBinary, get: r.fromCache},
		{name: TierRegistryBinary, get: r.fromRegistry},
		{name: TierCacheSources, get: r.fromCache, allowSources: true, requiresBuild: true},
		{name: TierRegistrySources, get: r.fromRegistry, allowSources: true, requiresBuild: true},
	}
}

func (r *Resolver) fromCache(_ context.Context, dep dependency.Dependency, allowSources bool) (string, error) {
	return r.cache.Get(dep, allowSources)
}

// fromRegistry downloads through the cache so a hit is persisted locally.
func (r *Resolver) fromRegistry(ctx context.Context, dep dependency.Dependency, allowSources bool) (string, error) {
	return r.cache.GetOrDownload(ctx, dep, allowSources)
}

// tryGet walks the tiers until one yields a tarball for query.
func (r *Resolver) tryGet(ctx context.Context, s *session, query dependency.Dependency) (entry Entry, err error) {
	ctx, span := r.tracer.Start(ctx, "resolver.tryGet", trace.WithAttributes(
		attribute.String("parcel.dependency", query.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var last error
	for _, t := range r.tiers() {
		path, err := t.get(ctx, query, t.allowSources)
		if err != nil {
			if fatal(ctx, err) {
				return Entry{}, err
			}
			s.logger.Debug("tier missed", "tier", t.name, "dependency", query.Name, "err", err)
			last = err
			continue
		}

		dep, err := query.WithVersionFromFileName(path)
		if err != nil {
			return Entry{}, err
		}
		r.metrics.TierHit(t.name)
		span.SetAttributes(attribute.String("parcel.tier", t.name))
		s.logger.Info("found", "dependency", dep.Name, "version", dep.Version.Min, "tier", t.name)
		return Entry{Dependency: dep, RequiresBuild: t.requiresBuild, TarPath: path}, nil
	}
	return Entry{}, &NotFoundError{Dependency: query, Err: last}
}

// fatal reports whether err must stop the chain instead of moving to the next tier.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, artifactory.ErrChecksumMismatch)
}
