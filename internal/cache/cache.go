// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/invowk/parcel/internal/logging"
	"github.com/invowk/parcel/pkg/dependency"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

const (
	// DirEnv overrides the default cache location.
	DirEnv = "PARCEL_CACHE_DIR"

	// SizeWarningThreshold is the cache size above which CheckTotalSize warns.
	SizeWarningThreshold int64 = 512 << 20
)

// ErrCacheMiss is the sentinel error wrapped by MissError.
var ErrCacheMiss = errors.New("not in cache")

type (
	// Fetcher retrieves an artifact that is not cached yet. It returns the archive
	// bytes together with the concrete dependency they encode.
	Fetcher interface {
		Get(ctx context.Context, dep dependency.Dependency, allowSources bool) ([]byte, dependency.Dependency, error)
	}

	// Cache is a flat directory of canonically named tarballs.
	Cache struct {
		dir     string
		fetcher Fetcher
		logger  *log.Logger
		warned  bool
	}

	// Entry is one decoded cache file.
	Entry struct {
		Dependency dependency.Dependency
		Path       string
		Size       int64
	}

	// MissError is returned when nothing in the cache satisfies a query.
	MissError struct {
		Query        dependency.Dependency
		AllowSources bool
	}
)

// Error implements the error interface.
func (e *MissError) Error() string {
	if e.AllowSources {
		return fmt.Sprintf("%s (or its sources) is not in cache", e.Query)
	}
	return fmt.Sprintf("%s is not in cache", e.Query)
}

// Unwrap returns ErrCacheMiss so callers can use errors.Is for programmatic detection.
func (e *MissError) Unwrap() error { return ErrCacheMiss }

// DefaultDir returns the cache location honoring PARCEL_CACHE_DIR.
func DefaultDir() (string, error) {
	return DefaultDirWith(os.Getenv)
}

// DefaultDirWith is DefaultDir with an injectable environment lookup.
func DefaultDirWith(getenv func(string) string) (string, error) {
	if envPath := getenv(DirEnv); envPath != "" {
		return envPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".parcel", "cache"), nil
}

// New opens the cache at dir, creating it when needed. fetcher may be nil for a
// read-only cache.
func New(dir string, fetcher Fetcher, logger *log.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Cache{dir: dir, fetcher: fetcher, logger: logging.OrDiscard(logger)}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// List decodes every canonically named file in the cache. Other files are ignored.
func (c *Cache) List() ([]Entry, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory %s: %w", c.dir, err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		dep, err := dependency.FromPackageName(e.Name())
		if err != nil {
			c.logger.Debug("skipping foreign cache file", "file", e.Name())
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, Entry{Dependency: dep, Path: filepath.Join(c.dir, e.Name()), Size: size})
	}
	return out, nil
}

// lookup returns the highest-version entry satisfying dep, retrying as a
// sources query when allowSources is set.
func (c *Cache) lookup(dep dependency.Dependency, allowSources bool) (Entry, error) {
	entries, err := c.List()
	if err != nil {
		return Entry{}, err
	}

	if e, ok := latest(entries, dep); ok {
		return e, nil
	}
	if allowSources && !dep.IsSources() {
		if e, ok := latest(entries, dep.AsSources()); ok {
			return e, nil
		}
	}
	return Entry{}, &MissError{Query: dep, AllowSources: allowSources}
}

func latest(entries []Entry, query dependency.Dependency) (Entry, bool) {
	var matching []Entry
	for _, e := range entries {
		if e.Dependency.Satisfies(query) {
			matching = append(matching, e)
		}
	}
	if len(matching) == 0 {
		return Entry{}, false
	}
	return slices.MaxFunc(matching, func(a, b Entry) int {
		return a.Dependency.Version.Min.Compare(b.Dependency.Version.Min)
	}), true
}

// Get returns the path of the highest cached version satisfying dep.
func (c *Cache) Get(dep dependency.Dependency, allowSources bool) (string, error) {
	e, err := c.lookup(dep, allowSources)
	if err != nil {
		return "", err
	}
	return e.Path, nil
}

// LatestSatisfied returns the concrete dependency Get would pick.
func (c *Cache) LatestSatisfied(dep dependency.Dependency, allowSources bool) (dependency.Dependency, error) {
	e, err := c.lookup(dep, allowSources)
	if err != nil {
		return dependency.Dependency{}, err
	}
	return e.Dependency, nil
}

// Contains reports whether Get would succeed.
func (c *Cache) Contains(dep dependency.Dependency, allowSources bool) bool {
	_, err := c.lookup(dep, allowSources)
	return err == nil
}

// GetOrDownload returns a cached artifact, fetching and persisting it on a miss.
func (c *Cache) GetOrDownload(ctx context.Context, dep dependency.Dependency, allowSources bool) (string, error) {
	path, err := c.Get(dep, allowSources)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return "", err
	}
	if c.fetcher == nil {
		return "", err
	}

	data, found, err := c.fetcher.Get(ctx, dep, allowSources)
	if err != nil {
		return "", err
	}

	target := filepath.Join(c.dir, found.FileName())
	if err := writeAtomic(c.dir, target, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return "", err
	}
	c.logger.Debug("stored artifact", "file", found.FileName(), "size", humanize.Bytes(uint64(len(data))))
	return target, nil
}

// Put copies a canonically named tarball into the cache and returns its new path.
func (c *Cache) Put(tarball string) (string, error) {
	dep, err := dependency.FromPackageName(tarball)
	if err != nil {
		return "", err
	}

	src, err := os.Open(tarball)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", tarball, err)
	}
	defer src.Close()

	target := filepath.Join(c.dir, dep.FileName())
	if err := writeAtomic(c.dir, target, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		return "", err
	}
	return target, nil
}

// writeAtomic streams into a temporary file next to target and renames it into
// place, so readers never observe a partial archive.
func writeAtomic(dir, target string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(target), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(target), err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move %s into cache: %w", filepath.Base(target), err)
	}
	return nil
}

// CheckTotalSize returns the size of the cache tree and warns once when it
// exceeds SizeWarningThreshold.
func (c *Cache) CheckTotalSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(c.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure cache %s: %w", c.dir, err)
	}

	if total > SizeWarningThreshold && !c.warned {
		c.warned = true
		c.logger.Warn("cache is getting large, consider running 'parcel purge --cache'",
			"size", humanize.IBytes(uint64(total)), "dir", c.dir)
	}
	return total, nil
}

// Purge deletes every cached artifact.
func (c *Cache) Purge() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to remove cache %s: %w", c.dir, err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to recreate cache %s: %w", c.dir, err)
	}
	c.warned = false
	return nil
}
