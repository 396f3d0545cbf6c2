// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/invowk/parcel/internal/cache"
	"github.com/invowk/parcel/internal/logging"
	"github.com/invowk/parcel/internal/metrics"
	"github.com/invowk/parcel/internal/toolchain"
	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/manifest"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/invowk/parcel/internal/resolver"

var (
	// ErrDependencyNotFound is the sentinel error wrapped by NotFoundError.
	ErrDependencyNotFound = errors.New("dependency not found")
	// ErrDependencyCycle is the sentinel error wrapped by CycleError.
	ErrDependencyCycle = errors.New("dependency cycle")
)

type (
	// Target is the platform binaries are resolved for.
	Target struct {
		Arch dependency.Arch
		OS   dependency.OS
	}

	// Options tunes a resolution.
	Options struct {
		// ExactVersions keeps every resolved version of a package instead of
		// collapsing diamonds to the highest one.
		ExactVersions bool
		// Fresh removes the installed dependencies folder before resolving.
		Fresh bool
	}

	// Entry is one resolved dependency.
	Entry struct {
		Dependency dependency.Dependency
		// RequiresBuild is set while TarPath still points at a source package.
		RequiresBuild bool
		TarPath       string
	}

	// ToolchainFactory returns the toolchain able to build a recipe section.
	ToolchainFactory func(section manifest.Section) (toolchain.Toolchain, error)

	// Config wires a Resolver. Cache is required; its fetcher is the registry.
	Config struct {
		Cache      *cache.Cache
		Target     Target
		Options    Options
		Toolchains ToolchainFactory
		Logger     *log.Logger
		Metrics    *metrics.Metrics
	}

	// Resolver resolves, builds and installs dependency trees.
	Resolver struct {
		cache      *cache.Cache
		target     Target
		opts       Options
		toolchains ToolchainFactory
		logger     *log.Logger
		metrics    *metrics.Metrics
		tracer     trace.Tracer
	}

	// NotFoundError is returned when no tier can provide a dependency.
	NotFoundError struct {
		Dependency dependency.Dependency
		// Err is the failure reported by the last tier.
		Err error
	}

	// CycleError is returned when a package is reached again while its own
	// dependencies are still being resolved.
	CycleError struct {
		Chain []string
	}

	// session carries state shared by one top-level Resolve and the nested
	// resolutions its source builds start.
	session struct {
		id         string
		logger     *log.Logger
		inProgress map[string]bool
		stack      []string
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no binary or source package satisfies %s", e.Dependency)
	if e.Err != nil && !errors.Is(e.Err, cache.ErrCacheMiss) {
		msg += fmt.Sprintf(" (last error: %v)", e.Err)
	}
	return msg
}

// Unwrap returns ErrDependencyNotFound so callers can use errors.Is for programmatic detection.
func (e *NotFoundError) Unwrap() error { return ErrDependencyNotFound }

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Chain, " -> "))
}

// Unwrap returns ErrDependencyCycle so callers can use errors.Is for programmatic detection.
func (e *CycleError) Unwrap() error { return ErrDependencyCycle }

// HostTarget returns the target of the running machine.
func HostTarget() Target {
	return Target{Arch: dependency.HostArch(), OS: dependency.HostOS()}
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Cache == nil {
		return nil, errors.New("resolver requires a cache")
	}
	if cfg.Target == (Target{}) {
		cfg.Target = HostTarget()
	}
	logger := logging.OrDiscard(cfg.Logger)
	if cfg.Toolchains == nil {
		opts := toolchain.Options{Logger: logging.Component(logger, "toolchain")}
		cfg.Toolchains = func(section manifest.Section) (toolchain.Toolchain, error) {
			return toolchain.For(section, opts)
		}
	}
	return &Resolver{
		cache:      cfg.Cache,
		target:     cfg.Target,
		opts:       cfg.Options,
		toolchains: cfg.Toolchains,
		logger:     logger,
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Target returns the platform the resolver resolves for.
func (r *Resolver) Target() Target { return r.target }

// Resolve resolves the manifest in root, builds the source packages it needs
// and installs everything into root/dependencies.
func (r *Resolver) Resolve(ctx context.Context, root string) ([]Entry, error) {
	id := uuid.NewString()
	s := &session{
		id:         id,
		logger:     r.logger.With("session", id[:8]),
		inProgress: make(map[string]bool),
	}
	defer r.metrics.ObserveResolve(time.Now())

	if r.opts.Fresh {
		installDir := filepath.Join(root, toolchain.DependenciesDir)
		if err := os.RemoveAll(installDir); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", installDir, err)
		}
		s.logger.Debug("removed installed dependencies", "dir", installDir)
	}
	return r.resolve(ctx, s, root)
}

func (r *Resolver) resolve(ctx context.Context, s *session, root string) (entries []Entry, err error) {
	ctx, span := r.tracer.Start(ctx, "resolver.resolve", trace.WithAttributes(
		attribute.String("parcel.root", root),
		attribute.String("parcel.session", s.id),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	m, err := manifest.Load(root)
	if err != nil {
		return nil, err
	}
	s.logger.Info("resolving", "package", m.This.Name, "needs", len(m.Needs))

	collected, err := r.collectRecursively(ctx, s, m)
	if err != nil {
		return nil, err
	}
	entries = r.resolveConflicts(s, dedupe(collected))

	for i := range entries {
		if !entries[i].RequiresBuild {
			continue
		}
		built, err := r.build(ctx, s, entries[i])
		if err != nil {
			return nil, err
		}
		entries[i] = built
	}

	if err := r.install(s, root, entries); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("parcel.entries", len(entries)))
	return entries, nil
}

// collectRecursively walks the needs of m depth first and returns every
// resolved entry after its own dependencies.
func (r *Resolver) collectRecursively(ctx context.Context, s *session, m *manifest.Manifest) ([]Entry, error) {
	var out []Entry
	for _, need := range m.SortedNeeds() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		query := need.Query(need.Name, r.target.Arch, r.target.OS)

		entry, err := r.tryGet(ctx, s, query)
		if err != nil {
			return nil, err
		}
		embedded, err := manifest.LoadFromArchive(entry.TarPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest of %s: %w", filepath.Base(entry.TarPath), err)
		}

		if err := s.enter(query); err != nil {
			return nil, err
		}
		children, err := r.collectRecursively(ctx, s, embedded)
		s.leave(query)
		if err != nil {
			return nil, err
		}

		out = append(out, children...)
		out = append(out, entry)
	}
	return out, nil
}

func cycleKey(d dependency.Dependency) string {
	return d.Name + "@" + string(d.Distribution)
}

// enter marks d as in progress, failing when it already is.
func (s *session) enter(d dependency.Dependency) error {
	key := cycleKey(d)
	if s.inProgress[key] {
		chain := append(append([]string{}, s.stack...), key)
		return &CycleError{Chain: chain}
	}
	s.inProgress[key] = true
	s.stack = append(s.stack, key)
	return nil
}

func (s *session) leave(d dependency.Dependency) {
	delete(s.inProgress, cycleKey(d))
	if n := len(s.stack); n > 0 {
		s.stack = s.stack[:n-1]
	}
}
