// SPDX-License-Identifier: MPL-2.0

package artifactory

import (
	"context"
	"errors"
	"fmt"

	"github.com/invowk/parcel/internal/logging"
	"github.com/invowk/parcel/pkg/dependency"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Registry tries its remotes in configured order.
type Registry struct {
	remotes []Remote
	logger  *log.Logger
}

// NewRegistry aggregates remotes. The order is the lookup priority.
func NewRegistry(logger *log.Logger, remotes ...Remote) *Registry {
	return &Registry{remotes: remotes, logger: logging.OrDiscard(logger)}
}

// Remotes returns the configured remotes in order.
func (r *Registry) Remotes() []Remote { return r.remotes }

// Remote returns the remote called name.
func (r *Registry) Remote(name string) (Remote, error) {
	for _, rem := range r.remotes {
		if rem.Name() == name {
			return rem, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRemote, name)
}

// PingAll pings every remote. Unreachable remotes are logged and skipped; an
// error is returned only when none answered.
func (r *Registry) PingAll(ctx context.Context) error {
	return r.each(ctx, "ping", func(rem Remote) error { return rem.Ping(ctx) })
}

// SyncAll syncs every remote with the same failure rule as PingAll.
func (r *Registry) SyncAll(ctx context.Context, lazy bool) error {
	return r.each(ctx, "sync", func(rem Remote) error { return rem.Sync(ctx, lazy) })
}

func (r *Registry) each(ctx context.Context, op string, fn func(Remote) error) error {
	if len(r.remotes) == 0 {
		return nil
	}
	var errs []error
	for _, rem := range r.remotes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rem); err != nil {
			r.logger.Warn("remote unavailable", "remote", rem.Name(), "op", op, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(r.remotes) {
		return errors.Join(errs...)
	}
	return nil
}

// PackageCount sums the listings of every remote.
func (r *Registry) PackageCount() int {
	n := 0
	for _, rem := range r.remotes {
		n += len(rem.Packages())
	}
	return n
}

// Contains reports whether any remote lists an artifact satisfying dep.
func (r *Registry) Contains(dep dependency.Dependency) bool {
	for _, rem := range r.remotes {
		if rem.Contains(dep) {
			return true
		}
	}
	return false
}

// Get downloads dep from the first remote that can serve it. When every remote
// fails, the last remote's error is returned.
func (r *Registry) Get(ctx context.Context, dep dependency.Dependency, allowSources bool) ([]byte, dependency.Dependency, error) {
	ctx, span := otel.Tracer("parcel").Start(ctx, "registry.get",
		trace.WithAttributes(
			attribute.String("dependency", dep.String()),
			attribute.Bool("allow_sources", allowSources),
		),
	)
	defer span.End()

	if len(r.remotes) == 0 {
		err := &NotAvailableError{Remote: "registry", Query: dep, AllowSources: allowSources}
		span.SetStatus(codes.Error, "no remotes configured")
		return nil, dependency.Dependency{}, err
	}

	var lastErr error
	for _, rem := range r.remotes {
		data, found, err := rem.Get(ctx, dep, allowSources)
		if err == nil {
			span.SetAttributes(attribute.String("remote", rem.Name()), attribute.String("artifact", found.FileName()))
			return data, found, nil
		}
		r.logger.Debug("remote miss", "remote", rem.Name(), "dependency", dep, "error", err)
		lastErr = err
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "registry miss")
	return nil, dependency.Dependency{}, lastErr
}
