// SPDX-License-Identifier: MPL-2.0

package artifactory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/invowk/parcel/internal/index"
	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	testRepo     = "main"
	testUser     = "deployer"
	testPassword = "secret"
)

// fakeArtifactory serves the subset of the Artifactory REST API parcel uses.
type fakeArtifactory struct {
	mu          sync.Mutex
	objects     map[string][]byte // repository-relative path -> content
	badChecksum bool
	rejectHead  bool
	aqlCalls    int
	lastAQL     string
}

func newFakeArtifactory(t *testing.T) (*fakeArtifactory, *httptest.Server) {
	t.Helper()

	f := &fakeArtifactory{objects: map[string][]byte{}}
	r := chi.NewRouter()
	r.Route("/artifactory", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Post("/api/search/aql", f.handleAQL)
		r.Get("/api/storage/{repo}/*", f.handleStorage)
		r.Get("/{repo}/*", f.handleDownload)
		r.Head("/{repo}/*", f.handleHead)
		r.With(middleware.BasicAuth("parcel", map[string]string{testUser: testPassword})).Put("/{repo}/*", f.handleUpload)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeArtifactory) put(rel string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[rel] = data
}

func (f *fakeArtifactory) get(rel string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[rel]
	return data, ok
}

func (f *fakeArtifactory) queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aqlCalls
}

func (f *fakeArtifactory) configure(fn func(*fakeArtifactory)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeArtifactory) handleAQL(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.aqlCalls++
	f.lastAQL = string(body)

	resp := aqlResponse{}
	for rel, data := range f.objects {
		resp.Results = append(resp.Results, aqlItem{
			Repo: testRepo, Path: path.Dir(rel), Name: path.Base(rel), Type: "file", Size: int64(len(data)),
		})
	}
	resp.Range = &aqlRange{Total: int64(len(resp.Results))}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeArtifactory) handleStorage(w http.ResponseWriter, r *http.Request) {
	data, ok := f.get(chi.URLParam(r, "*"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	sum := md5.Sum(data)
	info := storageInfo{}
	info.Checksums.MD5 = hex.EncodeToString(sum[:])
	f.mu.Lock()
	bad := f.badChecksum
	f.mu.Unlock()
	if bad {
		info.Checksums.MD5 = strings.Repeat("0", 32)
	}
	_ = json.NewEncoder(w).Encode(info)
}

func (f *fakeArtifactory) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, ok := f.get(chi.URLParam(r, "*"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (f *fakeArtifactory) handleHead(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	reject := f.rejectHead
	f.mu.Unlock()
	if reject {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := f.get(chi.URLParam(r, "*")); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeArtifactory) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.put(chi.URLParam(r, "*"), data)
	w.WriteHeader(http.StatusCreated)
}

func artifact(name, v string, dist dependency.Distribution) dependency.Dependency {
	return dependency.New(name, version.Exact(version.MustParse(v)), dependency.ArchX86_64, dependency.OSLinux, dist)
}

func seed(f *fakeArtifactory, deps ...dependency.Dependency) {
	for _, d := range deps {
		f.put(FormatPattern(DefaultPattern, testRepo, d), []byte("content of "+d.FileName()))
	}
}

func newTestRemote(srv *httptest.Server, opts ...Option) *Artifactory {
	return New(Config{Name: testRepo, BaseURL: srv.URL + "/artifactory/", Username: testUser, Password: testPassword}, opts...)
}

func TestArtifactory_SyncAndGet(t *testing.T) {
	t.Parallel()

	f, srv := newFakeArtifactory(t)
	seed(f,
		artifact("fmt", "9.1.0", dependency.DistributionShared),
		artifact("fmt", "10.2.1", dependency.DistributionShared),
		artifact("zlib", "1.3.0", dependency.DistributionSources),
	)
	f.put("docs/readme.txt", []byte("not a package"))

	a := newTestRemote(srv)
	ctx := context.Background()
	if err := a.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if err := a.Sync(ctx, false); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if got := len(a.Packages()); got != 3 {
		t.Errorf("Packages() has %d entries, want 3", got)
	}
	f.mu.Lock()
	lastAQL := f.lastAQL
	f.mu.Unlock()
	if !strings.Contains(lastAQL, `"repo": "main"`) || !strings.Contains(lastAQL, `"$desc": ["created"]`) {
		t.Errorf("AQL query = %s", lastAQL)
	}

	query := dependency.New("fmt", version.Any(), dependency.ArchX86_64, dependency.OSLinux, dependency.DistributionShared)
	if !a.Contains(query) {
		t.Error("Contains(fmt) = false")
	}
	data, found, err := a.Get(ctx, query, false)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if found.Version.Min != version.New(10, 2, 1) {
		t.Errorf("Get() picked %s, want 10.2.1", found)
	}
	if string(data) != "content of "+found.FileName() {
		t.Errorf("Get() data = %q", data)
	}

	zlib := dependency.New("zlib", version.Any(), dependency.ArchX86_64, dependency.OSLinux, dependency.DistributionStatic)
	if _, _, err := a.Get(ctx, zlib, false); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Get(binary zlib) error = %v, want ErrNotAvailable", err)
	}
	if _, found, err := a.Get(ctx, zlib, true); err != nil || !found.IsSources() {
		t.Errorf("Get(zlib, allowSources) = %s, %v", found, err)
	}
}

func TestArtifactory_ChecksumPolicy(t *testing.T) {
	t.Parallel()

	f, srv := newFakeArtifactory(t)
	f.configure(func(f *fakeArtifactory) { f.badChecksum = true })
	dep := artifact("fmt", "10.2.1", dependency.DistributionShared)
	seed(f, dep)

	tests := []struct {
		name    string
		policy  ChecksumPolicy
		wantErr bool
	}{
		{"lenient keeps artifact", ChecksumLenient, false},
		{"strict rejects artifact", ChecksumStrict, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newTestRemote(srv, WithChecksumPolicy(tt.policy))
			if err := a.Sync(context.Background(), false); err != nil {
				t.Fatal(err)
			}
			data, _, err := a.Get(context.Background(), dep, false)
			if tt.wantErr {
				var mismatch *ChecksumMismatchError
				if !errors.As(err, &mismatch) || !errors.Is(err, ErrChecksumMismatch) {
					t.Fatalf("Get() error = %v, want ChecksumMismatchError", err)
				}
				return
			}
			if err != nil || len(data) == 0 {
				t.Fatalf("Get() = %d bytes, %v", len(data), err)
			}
		})
	}
}

func TestArtifactory_LazySync(t *testing.T) {
	t.Parallel()

	f, srv := newFakeArtifactory(t)
	seed(f, artifact("fmt", "10.2.1", dependency.DistributionShared))

	store, err := index.Open(index.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	a := newTestRemote(srv, WithIndex(store))
	if err := a.Sync(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := a.Sync(ctx, true); err != nil {
		t.Fatal(err)
	}
	if f.queries() != 1 {
		t.Errorf("aql calls after two lazy syncs = %d, want 1", f.queries())
	}

	// A fresh remote sharing the index restores the listing without a query.
	b := newTestRemote(srv, WithIndex(store))
	if err := b.Sync(ctx, true); err != nil {
		t.Fatal(err)
	}
	if f.queries() != 1 || len(b.Packages()) != 1 {
		t.Errorf("restored listing: aql calls = %d, packages = %d", f.queries(), len(b.Packages()))
	}

	if err := b.Sync(ctx, false); err != nil {
		t.Fatal(err)
	}
	if f.queries() != 2 {
		t.Errorf("full sync should query, aql calls = %d", f.queries())
	}
}

func TestArtifactory_PingUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(Config{Name: "down", BaseURL: srv.URL})
	err := a.Ping(context.Background())
	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) || unreachable.Status != http.StatusServiceUnavailable {
		t.Fatalf("Ping() error = %v", err)
	}
	if !errors.Is(a.Sync(context.Background(), false), ErrRegistryUnreachable) {
		t.Error("Sync() against a failing server should be unreachable")
	}
}

func TestArtifactory_Push(t *testing.T) {
	t.Parallel()

	for _, rejectHead := range []bool{false, true} {
		name := "head check"
		if rejectHead {
			name = "get fallback"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f, srv := newFakeArtifactory(t)
			f.configure(func(f *fakeArtifactory) { f.rejectHead = rejectHead })
			a := newTestRemote(srv)

			dep := artifact("mylib", "1.0.0", dependency.DistributionStatic)
			tarball := filepath.Join(t.TempDir(), dep.FileName())
			if err := os.WriteFile(tarball, []byte("v1"), 0o644); err != nil {
				t.Fatal(err)
			}

			ctx := context.Background()
			steps := []struct {
				force bool
				want  PushResult
			}{
				{false, Pushed},
				{false, PushSkipped},
				{true, PushOverwritten},
			}
			for i, step := range steps {
				got, err := a.Push(ctx, PushRequest{Dependency: dep, Tarball: tarball, Force: step.force})
				if err != nil {
					t.Fatalf("step %d: Push() error: %v", i, err)
				}
				if got != step.want {
					t.Errorf("step %d: Push() = %s, want %s", i, got, step.want)
				}
			}

			if data, ok := f.get(FormatPattern(DefaultPattern, testRepo, dep)); !ok || string(data) != "v1" {
				t.Errorf("uploaded content = %q, %v", data, ok)
			}
			if !a.Contains(dep) {
				t.Error("pushed artifact should be listed")
			}
		})
	}
}

func TestArtifactory_PushRequiresAuth(t *testing.T) {
	t.Parallel()

	_, srv := newFakeArtifactory(t)
	a := New(Config{Name: testRepo, BaseURL: srv.URL + "/artifactory"})

	dep := artifact("mylib", "1.0.0", dependency.DistributionStatic)
	tarball := filepath.Join(t.TempDir(), dep.FileName())
	if err := os.WriteFile(tarball, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := a.Push(context.Background(), PushRequest{Dependency: dep, Tarball: tarball})
	var pushErr *PushError
	if !errors.As(err, &pushErr) || pushErr.Status != http.StatusUnauthorized {
		t.Fatalf("Push() without credentials error = %v", err)
	}
}

func TestFormatPattern(t *testing.T) {
	t.Parallel()

	dep := artifact("fmt", "10.2.1", dependency.DistributionShared)
	tests := []struct {
		pattern string
		want    string
	}{
		{DefaultPattern, "fmt/10.2.1/fmt-10.2.1-x86_64-linux-shared.tar.gz"},
		{"{repo}/{name}/{major}/{dist}/{arch}-{platform}", "libs/fmt/10/shared/x86_64-linux"},
		{"{name}-{unknown}", "fmt-{unknown}"},
	}
	for _, tt := range tests {
		if got := FormatPattern(tt.pattern, "libs", dep); got != tt.want {
			t.Errorf("FormatPattern(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestParseChecksumPolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]ChecksumPolicy{"": ChecksumLenient, "Lenient": ChecksumLenient, " strict ": ChecksumStrict} {
		if got, err := ParseChecksumPolicy(in); err != nil || got != want {
			t.Errorf("ParseChecksumPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseChecksumPolicy("paranoid"); !errors.Is(err, ErrInvalidChecksumPolicy) {
		t.Errorf("ParseChecksumPolicy(paranoid) error = %v", err)
	}
}
