// SPDX-License-Identifier: MPL-2.0

package artifactory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/invowk/parcel/internal/index"
	"github.com/invowk/parcel/internal/logging"
	"github.com/invowk/parcel/internal/metrics"
	"github.com/invowk/parcel/internal/progress"
	"github.com/invowk/parcel/pkg/dependency"

	"github.com/charmbracelet/log"
)

// ChecksumPolicy decides what happens when a download does not match the
// checksum advertised by its remote.
type ChecksumPolicy string

const (
	// ChecksumLenient logs a warning and keeps the artifact.
	ChecksumLenient ChecksumPolicy = "lenient"
	// ChecksumStrict rejects the artifact.
	ChecksumStrict ChecksumPolicy = "strict"
)

// PushResult describes what Push did.
type PushResult int

const (
	// Pushed means the artifact was uploaded to a free location.
	Pushed PushResult = iota
	// PushSkipped means the artifact already existed and force was not set.
	PushSkipped
	// PushOverwritten means an existing artifact was replaced.
	PushOverwritten
)

var (
	// ErrRegistryUnreachable is the sentinel error wrapped by UnreachableError.
	ErrRegistryUnreachable = errors.New("registry unreachable")
	// ErrChecksumMismatch is the sentinel error wrapped by ChecksumMismatchError.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNotAvailable is the sentinel error wrapped by NotAvailableError.
	ErrNotAvailable = errors.New("package not available")
	// ErrPushRejected is the sentinel error wrapped by PushError.
	ErrPushRejected = errors.New("push rejected")
	// ErrUnknownRemote is returned by Registry.Remote for unconfigured names.
	ErrUnknownRemote = errors.New("unknown remote")
	// ErrInvalidChecksumPolicy is returned by ParseChecksumPolicy.
	ErrInvalidChecksumPolicy = errors.New("invalid checksum policy")
)

type (
	// Remote is one package source that can be listed, downloaded from and pushed to.
	Remote interface {
		Name() string
		Ping(ctx context.Context) error
		// Sync refreshes the listing. A lazy sync reuses an existing listing.
		Sync(ctx context.Context, lazy bool) error
		Contains(dep dependency.Dependency) bool
		LatestSatisfied(dep dependency.Dependency, allowSources bool) (Entry, error)
		Get(ctx context.Context, dep dependency.Dependency, allowSources bool) ([]byte, dependency.Dependency, error)
		Push(ctx context.Context, req PushRequest) (PushResult, error)
		Packages() []Entry
	}

	// Entry is one artifact advertised by a remote.
	Entry struct {
		Dependency  dependency.Dependency
		URL         string
		ChecksumURL string
		// Checksum is the MD5 known from the listing, when the backend provides one.
		Checksum string
		Size     int64
	}

	// PushRequest uploads Tarball as the exact artifact Dependency.
	PushRequest struct {
		Dependency dependency.Dependency
		Tarball    string
		Force      bool
	}

	// UnreachableError is returned when a remote cannot be contacted or answers
	// with an unexpected status.
	UnreachableError struct {
		Remote string
		URL    string
		Status int
		Err    error
	}

	// ChecksumMismatchError is returned under ChecksumStrict.
	ChecksumMismatchError struct {
		Remote   string
		File     string
		Expected string
		Got      string
	}

	// NotAvailableError is returned when a remote lists nothing satisfying a query.
	NotAvailableError struct {
		Remote       string
		Query        dependency.Dependency
		AllowSources bool
	}

	// PushError is returned when an upload is refused.
	PushError struct {
		Remote string
		URL    string
		Status int
	}

	// Option configures a remote during construction.
	Option func(*options)

	options struct {
		httpClient *http.Client
		logger     *log.Logger
		reporter   progress.Reporter
		metrics    *metrics.Metrics
		index      *index.Store
		policy     ChecksumPolicy
	}

	// listing is the in-memory package list shared by every remote kind.
	listing struct {
		mu       sync.RWMutex
		packages []Entry
		synced   bool
	}
)

// Error implements the error interface.
func (e *UnreachableError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("remote %s is unreachable at %s: %v", e.Remote, e.URL, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("remote %s answered %d for %s", e.Remote, e.Status, e.URL)
	default:
		return fmt.Sprintf("remote %s is unreachable at %s", e.Remote, e.URL)
	}
}

// Unwrap returns ErrRegistryUnreachable so callers can use errors.Is for programmatic detection.
func (e *UnreachableError) Unwrap() error { return ErrRegistryUnreachable }

// Error implements the error interface.
func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s from %s\nExpected: %s\nGot:      %s", e.File, e.Remote, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is for programmatic detection.
func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }

// Error implements the error interface.
func (e *NotAvailableError) Error() string {
	if e.AllowSources {
		return fmt.Sprintf("%s (or its sources) is not available on %s", e.Query, e.Remote)
	}
	return fmt.Sprintf("%s is not available on %s", e.Query, e.Remote)
}

// Unwrap returns ErrNotAvailable so callers can use errors.Is for programmatic detection.
func (e *NotAvailableError) Unwrap() error { return ErrNotAvailable }

// Error implements the error interface.
func (e *PushError) Error() string {
	return fmt.Sprintf("remote %s rejected upload to %s with status %d", e.Remote, e.URL, e.Status)
}

// Unwrap returns ErrPushRejected so callers can use errors.Is for programmatic detection.
func (e *PushError) Unwrap() error { return ErrPushRejected }

// String implements fmt.Stringer.
func (r PushResult) String() string {
	switch r {
	case PushSkipped:
		return "skipped"
	case PushOverwritten:
		return "overwritten"
	default:
		return "pushed"
	}
}

// ParseChecksumPolicy accepts "lenient", "strict" or an empty string (lenient).
func ParseChecksumPolicy(s string) (ChecksumPolicy, error) {
	switch ChecksumPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ChecksumLenient:
		return ChecksumLenient, nil
	case ChecksumStrict:
		return ChecksumStrict, nil
	default:
		return "", fmt.Errorf("%w: %q (expected lenient or strict)", ErrInvalidChecksumPolicy, s)
	}
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger. Nil discards.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProgress reports download progress to r.
func WithProgress(r progress.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithMetrics records downloads and checksum failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithIndex persists listings so lazy syncs can skip the network.
func WithIndex(s *index.Store) Option {
	return func(o *options) { o.index = s }
}

// WithChecksumPolicy overrides the default lenient policy.
func WithChecksumPolicy(p ChecksumPolicy) Option {
	return func(o *options) { o.policy = p }
}

func newOptions(remote string, opts []Option) options {
	o := options{
		httpClient: http.DefaultClient,
		reporter:   progress.Nop(),
		policy:     ChecksumLenient,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.Component(o.logger, remote)
	if o.reporter == nil {
		o.reporter = progress.Nop()
	}
	return o
}

// verify compares the MD5 of data with expected, applying the policy.
func (o *options) verify(remote, file, expected string, data []byte) error {
	sum := md5.Sum(data)
	got := hex.EncodeToString(sum[:])
	if strings.EqualFold(got, expected) {
		o.logger.Debug("md5 checksum match", "file", file)
		return nil
	}

	o.metrics.ChecksumMismatch()
	mismatch := &ChecksumMismatchError{Remote: remote, File: file, Expected: expected, Got: got}
	if o.policy == ChecksumStrict {
		return mismatch
	}
	o.logger.Warn("checksum mismatch, keeping artifact", "file", file, "expected", expected, "got", got)
	return nil
}

func (l *listing) set(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.packages = entries
	l.synced = true
}

func (l *listing) add(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.packages = slices.DeleteFunc(l.packages, func(p Entry) bool { return p.Dependency == e.Dependency })
	l.packages = append(l.packages, e)
}

func (l *listing) populated() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.synced && len(l.packages) > 0
}

// Packages returns a copy of the current listing.
func (l *listing) Packages() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.packages)
}

// Contains reports whether any listed artifact satisfies dep.
func (l *listing) Contains(dep dependency.Dependency) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.ContainsFunc(l.packages, func(e Entry) bool { return e.Dependency.Satisfies(dep) })
}

func (l *listing) latest(remote string, dep dependency.Dependency, allowSources bool) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if e, ok := highest(l.packages, dep); ok {
		return e, nil
	}
	if allowSources && !dep.IsSources() {
		if e, ok := highest(l.packages, dep.AsSources()); ok {
			return e, nil
		}
	}
	return Entry{}, &NotAvailableError{Remote: remote, Query: dep, AllowSources: allowSources}
}

func highest(entries []Entry, query dependency.Dependency) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range entries {
		if !e.Dependency.Satisfies(query) {
			continue
		}
		if !found || best.Dependency.Version.Min.Less(e.Dependency.Version.Min) {
			best, found = e, true
		}
	}
	return best, found
}

// restore loads a persisted listing into l. It reports whether one was found.
func (l *listing) restore(o *options, remote string) bool {
	if o.index == nil {
		return false
	}
	saved, err := o.index.Load(remote)
	if err != nil {
		if !errors.Is(err, index.ErrListingNotFound) {
			o.logger.Warn("failed to read persisted listing", "error", err)
		}
		return false
	}

	entries := make([]Entry, 0, len(saved.Records))
	for _, r := range saved.Records {
		dep, err := dependency.FromPackageName(r.FileName)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Dependency: dep, URL: r.URL, ChecksumURL: r.ChecksumURL, Checksum: r.Checksum, Size: r.Size})
	}
	l.set(entries)
	o.logger.Debug("restored listing", "packages", len(entries), "synced_at", saved.SyncedAt.Format(time.RFC3339))
	return true
}

// persist stores the current listing when an index is attached.
func (l *listing) persist(o *options, remote string) {
	if o.index == nil {
		return
	}
	entries := l.Packages()
	records := make([]index.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, index.Record{
			FileName:    e.Dependency.FileName(),
			URL:         e.URL,
			ChecksumURL: e.ChecksumURL,
			Checksum:    e.Checksum,
			Size:        e.Size,
		})
	}
	if err := o.index.Save(index.Listing{Remote: remote, SyncedAt: time.Now().UTC(), Records: records}); err != nil {
		o.logger.Warn("failed to persist listing", "error", err)
	}
}
