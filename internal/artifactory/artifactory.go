// SPDX-License-Identifier: MPL-2.0

package artifactory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/invowk/parcel/internal/progress"
	"github.com/invowk/parcel/pkg/dependency"
)

const (
	// maxJSONResponseBytes bounds AQL and storage API responses (64 MB).
	maxJSONResponseBytes = 64 << 20

	// maxArtifactBytes bounds a single download (4 GB).
	maxArtifactBytes = 4 << 30
)

type (
	// Config describes one Artifactory repository.
	Config struct {
		// Name is both the remote's display name and the Artifactory repository key.
		Name string
		// BaseURL is the Artifactory root, e.g. https://host/artifactory.
		BaseURL string
		// Pattern locates an artifact inside the repository. Defaults to DefaultPattern.
		Pattern  string
		Username string
		Password string
	}

	// Artifactory is a Remote backed by an Artifactory generic repository.
	Artifactory struct {
		listing

		cfg  Config
		opts options
	}

	// aqlResponse is the JSON wire format of an AQL search.
	aqlResponse struct {
		Results []aqlItem `json:"results"`
		Range   *aqlRange `json:"range,omitempty"`
	}

	aqlItem struct {
		Repo    string `json:"repo"`
		Path    string `json:"path"`
		Name    string `json:"name"`
		Type    string `json:"type"`
		Size    int64  `json:"size"`
		Created string `json:"created"`
	}

	aqlRange struct {
		StartPos int64 `json:"start_pos"`
		EndPos   int64 `json:"end_pos"`
		Total    int64 `json:"total"`
	}

	// storageInfo is the JSON wire format of the storage API used for checksums.
	storageInfo struct {
		Checksums struct {
			MD5 string `json:"md5"`
		} `json:"checksums"`
	}
)

var _ Remote = (*Artifactory)(nil)

// New creates an Artifactory remote. Nothing is contacted until Ping or Sync.
func New(cfg Config, opts ...Option) *Artifactory {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	return &Artifactory{cfg: cfg, opts: newOptions(cfg.Name, opts)}
}

// Name implements Remote.
func (a *Artifactory) Name() string { return a.cfg.Name }

// ArtifactURL returns the download URL of dep.
func (a *Artifactory) ArtifactURL(dep dependency.Dependency) string {
	return a.cfg.BaseURL + "/" + a.cfg.Name + "/" + FormatPattern(a.cfg.Pattern, a.cfg.Name, dep)
}

// ChecksumURL returns the storage API URL describing dep.
func (a *Artifactory) ChecksumURL(dep dependency.Dependency) string {
	return a.cfg.BaseURL + "/api/storage/" + a.cfg.Name + "/" + FormatPattern(a.cfg.Pattern, a.cfg.Name, dep)
}

// Query returns the AQL listing every item of the repository, newest first.
func (a *Artifactory) Query() string {
	return fmt.Sprintf(`items.find({"repo": %q, "name": {"$match": "*"}}).sort({"$desc": ["created"]})`, a.cfg.Name)
}

// Ping implements Remote with a single GET against the base URL.
func (a *Artifactory) Ping(ctx context.Context) error {
	resp, err := a.doRequest(ctx, http.MethodGet, a.cfg.BaseURL, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UnreachableError{Remote: a.cfg.Name, URL: redactURL(a.cfg.BaseURL), Status: resp.StatusCode}
	}
	a.opts.logger.Debug("remote is reachable", "url", redactURL(a.cfg.BaseURL))
	return nil
}

// Sync implements Remote by running the AQL query and rebuilding the listing.
func (a *Artifactory) Sync(ctx context.Context, lazy bool) error {
	if lazy && a.populated() {
		return nil
	}
	if lazy && a.restore(&a.opts, a.cfg.Name) {
		return nil
	}

	aqlURL := a.cfg.BaseURL + "/api/search/aql"
	resp, err := a.doRequest(ctx, http.MethodPost, aqlURL, strings.NewReader(a.Query()), "text/plain")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return &UnreachableError{Remote: a.cfg.Name, URL: redactURL(aqlURL), Status: resp.StatusCode}
	}

	var ar aqlResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&ar); err != nil {
		return fmt.Errorf("syncing %s: decoding response: %w", a.cfg.Name, err)
	}

	entries := make([]Entry, 0, len(ar.Results))
	for _, item := range ar.Results {
		if item.Type != "" && item.Type != "file" {
			continue
		}
		dep, err := dependency.FromPackageName(item.Name)
		if err != nil {
			a.opts.logger.Warn("skipping artifact with unrecognized name", "name", item.Name, "path", item.Path)
			continue
		}
		entries = append(entries, Entry{
			Dependency:  dep,
			URL:         a.ArtifactURL(dep),
			ChecksumURL: a.ChecksumURL(dep),
			Size:        item.Size,
		})
	}

	a.set(entries)
	a.persist(&a.opts, a.cfg.Name)
	a.opts.logger.Debug("synced remote", "packages", len(entries))
	return nil
}

// LatestSatisfied implements Remote.
func (a *Artifactory) LatestSatisfied(dep dependency.Dependency, allowSources bool) (Entry, error) {
	return a.latest(a.cfg.Name, dep, allowSources)
}

// Get implements Remote: it downloads the newest matching artifact and verifies
// its MD5 against the storage API according to the checksum policy.
func (a *Artifactory) Get(ctx context.Context, dep dependency.Dependency, allowSources bool) ([]byte, dependency.Dependency, error) {
	entry, err := a.LatestSatisfied(dep, allowSources)
	if err != nil {
		return nil, dependency.Dependency{}, err
	}
	file := entry.Dependency.FileName()

	resp, err := a.doRequest(ctx, http.MethodGet, entry.URL, nil, "")
	if err != nil {
		return nil, dependency.Dependency{}, err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return nil, dependency.Dependency{}, &UnreachableError{Remote: a.cfg.Name, URL: redactURL(entry.URL), Status: resp.StatusCode}
	}

	a.opts.reporter.Start(file, resp.ContentLength)
	data, err := io.ReadAll(progress.Reader(io.LimitReader(resp.Body, maxArtifactBytes), a.opts.reporter))
	a.opts.reporter.Done()
	if err != nil {
		return nil, dependency.Dependency{}, fmt.Errorf("downloading %s: %w", file, err)
	}
	a.opts.metrics.Download(a.cfg.Name, len(data))

	expected, err := a.fetchChecksum(ctx, entry.ChecksumURL)
	if err != nil {
		if a.opts.policy == ChecksumStrict {
			return nil, dependency.Dependency{}, err
		}
		a.opts.logger.Warn("could not verify checksum", "file", file, "error", err)
		return data, entry.Dependency, nil
	}
	if err := a.opts.verify(a.cfg.Name, file, expected, data); err != nil {
		return nil, dependency.Dependency{}, err
	}
	return data, entry.Dependency, nil
}

func (a *Artifactory) fetchChecksum(ctx context.Context, checksumURL string) (string, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, checksumURL, nil, "")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return "", &UnreachableError{Remote: a.cfg.Name, URL: redactURL(checksumURL), Status: resp.StatusCode}
	}

	var info storageInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&info); err != nil {
		return "", fmt.Errorf("decoding checksum response: %w", err)
	}
	if info.Checksums.MD5 == "" {
		return "", fmt.Errorf("checksum not found in response from %s", redactURL(checksumURL))
	}
	return info.Checksums.MD5, nil
}

// Push implements Remote. An existing artifact is left alone unless req.Force is set.
func (a *Artifactory) Push(ctx context.Context, req PushRequest) (PushResult, error) {
	target := a.ArtifactURL(req.Dependency)

	exists, err := a.exists(ctx, target)
	if err != nil {
		return 0, err
	}
	result := Pushed
	if exists {
		if !req.Force {
			a.opts.logger.Info("artifact already exists, skipping push", "file", req.Dependency.FileName())
			return PushSkipped, nil
		}
		a.opts.logger.Warn("overwriting existing artifact", "file", req.Dependency.FileName())
		result = PushOverwritten
	}

	f, err := os.Open(req.Tarball)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", req.Tarball, err)
	}
	defer f.Close()

	resp, err := a.doRequest(ctx, http.MethodPut, target, f, "application/gzip")
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }() // response body is discarded

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &PushError{Remote: a.cfg.Name, URL: redactURL(target), Status: resp.StatusCode}
	}

	a.add(Entry{Dependency: req.Dependency, URL: target, ChecksumURL: a.ChecksumURL(req.Dependency)})
	a.opts.logger.Info("pushed artifact", "file", req.Dependency.FileName(), "result", result)
	return result, nil
}

// exists checks target with HEAD, falling back to GET when HEAD is not allowed.
func (a *Artifactory) exists(ctx context.Context, target string) (bool, error) {
	status, err := a.status(ctx, http.MethodHead, target)
	if err != nil {
		return false, err
	}
	if status == http.StatusMethodNotAllowed {
		if status, err = a.status(ctx, http.MethodGet, target); err != nil {
			return false, err
		}
	}

	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 200 && status <= 299:
		return true, nil
	default:
		return false, &UnreachableError{Remote: a.cfg.Name, URL: redactURL(target), Status: status}
	}
}

func (a *Artifactory) status(ctx context.Context, method, target string) (int, error) {
	resp, err := a.doRequest(ctx, method, target, nil, "")
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// doRequest creates and executes a request with basic auth when configured.
// Transport failures are reported as UnreachableError.
func (a *Artifactory) doRequest(ctx context.Context, method, reqURL string, body io.Reader, contentType string) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f, ok := body.(*os.File); ok {
		if info, statErr := f.Stat(); statErr == nil {
			req.ContentLength = info.Size()
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "parcel")
	if a.cfg.Username != "" || a.cfg.Password != "" {
		req.SetBasicAuth(a.cfg.Username, a.cfg.Password)
	}

	resp, err := a.opts.httpClient.Do(req)
	if err != nil {
		return nil, &UnreachableError{Remote: a.cfg.Name, URL: redactURL(reqURL), Err: err}
	}
	return resp, nil
}

// redactURL strips credentials, query parameters and fragments for safe logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
