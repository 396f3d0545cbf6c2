// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/invowk/parcel/internal/artifactory"
	"github.com/invowk/parcel/internal/cache"
	"github.com/invowk/parcel/internal/config"
	"github.com/invowk/parcel/internal/index"
	"github.com/invowk/parcel/internal/logging"
	"github.com/invowk/parcel/internal/metrics"
	"github.com/invowk/parcel/internal/progress"
	"github.com/invowk/parcel/internal/resolver"
	"github.com/invowk/parcel/internal/toolchain"
	"github.com/invowk/parcel/pkg/manifest"

	"github.com/charmbracelet/log"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, string, error)
	}

	// App is the composition root of the CLI: command handlers receive it and
	// obtain their services through it.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer
		flags  globalFlags
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
	}

	globalFlags struct {
		verbose    bool
		configFile string
		configDir  string
	}

	// services are the objects one command invocation works with.
	services struct {
		cfg      *config.Config
		logger   *log.Logger
		metrics  *metrics.Metrics
		index    *index.Store
		registry *artifactory.Registry
		cache    *cache.Cache
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
}

func (a *App) loadConfig(ctx context.Context) (*config.Config, string, error) {
	return a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: a.flags.configFile,
		ConfigDirPath:  a.flags.configDir,
	})
}

func (a *App) verbose(cfg *config.Config) bool {
	return a.flags.verbose || (cfg != nil && cfg.UI.Verbose)
}

// open loads the configuration and wires the cache, the index and the remotes.
// The caller must Close the result.
func (a *App) open(ctx context.Context) (*services, error) {
	cfg, _, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Options{Prefix: config.AppName, Verbose: a.verbose(cfg), Output: a.stderr})

	cacheDir, indexDir, err := dataDirs(cfg)
	if err != nil {
		return nil, err
	}

	store, err := index.Open(index.Options{Dir: indexDir, Logger: logging.Component(logger, "index")})
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	registry, err := newRegistry(cfg, logger, m, store, progress.NewBar(a.stderr))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	c, err := cache.New(cacheDir, registry, logging.Component(logger, "cache"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &services{cfg: cfg, logger: logger, metrics: m, index: store, registry: registry, cache: c}, nil
}

// Close releases the index and writes the metrics textfile when configured.
func (s *services) Close() error {
	var errs []error
	if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
		errs = append(errs, err)
	}
	if err := s.index.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// newResolver builds a resolver for target using the configured CMake settings.
func (s *services) newResolver(target resolver.Target, opts resolver.Options, buildOutput io.Writer) (*resolver.Resolver, error) {
	tcOpts := toolchain.Options{
		CMake: toolchain.CMakeConfig{
			ConfigureCommand: s.cfg.Toolchain.CMake.ConfigureCommand,
			Definitions:      s.cfg.Toolchain.CMake.Definitions,
		},
		Runner: toolchain.ExecRunner{Output: buildOutput},
		Logger: logging.Component(s.logger, "toolchain"),
	}
	return resolver.New(resolver.Config{
		Cache:   s.cache,
		Target:  target,
		Options: opts,
		Toolchains: func(section manifest.Section) (toolchain.Toolchain, error) {
			return toolchain.For(section, tcOpts)
		},
		Logger:  logging.Component(s.logger, "resolver"),
		Metrics: s.metrics,
	})
}

// dataDirs returns the cache and index directories, applying the defaults.
func dataDirs(cfg *config.Config) (cacheDir, indexDir string, err error) {
	cacheDir, indexDir = cfg.CacheDir, cfg.IndexDir
	if cacheDir == "" {
		if cacheDir, err = cache.DefaultDir(); err != nil {
			return "", "", err
		}
	}
	if indexDir == "" {
		data, err := config.DataDir()
		if err != nil {
			return "", "", err
		}
		indexDir = filepath.Join(data, "index")
	}
	return cacheDir, indexDir, nil
}

// newRegistry creates the remotes listed in cfg, in order.
func newRegistry(cfg *config.Config, logger *log.Logger, m *metrics.Metrics, store *index.Store, rep progress.Reporter) (*artifactory.Registry, error) {
	policy, err := artifactory.ParseChecksumPolicy(cfg.ChecksumPolicy)
	if err != nil {
		return nil, err
	}
	opts := []artifactory.Option{
		artifactory.WithLogger(logger),
		artifactory.WithMetrics(m),
		artifactory.WithIndex(store),
		artifactory.WithProgress(rep),
		artifactory.WithChecksumPolicy(policy),
	}

	remotes := make([]artifactory.Remote, 0, len(cfg.Registries))
	for _, rc := range cfg.Registries {
		switch rc.EffectiveKind() {
		case config.RegistryS3:
			remotes = append(remotes, artifactory.NewS3(artifactory.S3Config{
				Name:      rc.Name,
				Bucket:    rc.Bucket,
				Region:    rc.Region,
				Endpoint:  rc.Endpoint,
				Pattern:   rc.Pattern,
				AccessKey: rc.Auth.Username,
				SecretKey: rc.Auth.Password,
			}, opts...))
		case config.RegistryArtifactory:
			remotes = append(remotes, artifactory.New(artifactory.Config{
				Name:     rc.Name,
				BaseURL:  rc.BaseURL,
				Pattern:  rc.Pattern,
				Username: rc.Auth.Username,
				Password: rc.Auth.Password,
			}, opts...))
		default:
			return nil, fmt.Errorf("registry %s: unsupported kind %q", rc.Name, rc.Kind)
		}
	}
	return artifactory.NewRegistry(logging.Component(logger, "registry"), remotes...), nil
}
