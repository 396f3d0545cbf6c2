// SPDX-License-Identifier: MPL-2.0

package index

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	want := Listing{
		Remote:   "main",
		SyncedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Records: []Record{
			{FileName: "fmt-10.2.1-x86_64-linux-shared.tar.gz", URL: "http://r/fmt", ChecksumURL: "http://r/api/storage/fmt", Size: 42},
		},
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Load("main")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Remote != want.Remote || !got.SyncedAt.Equal(want.SyncedAt) || !slices.Equal(got.Records, want.Records) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	if _, err := s.Load("nope"); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("Load() error = %v, want ErrListingNotFound", err)
	}
	if err := s.Save(Listing{}); err == nil {
		t.Error("Save() without remote should fail")
	}
}

func TestStore_RemotesDeleteClear(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	for _, name := range []string{"b", "a", "c"} {
		if err := s.Save(Listing{Remote: name}); err != nil {
			t.Fatal(err)
		}
	}

	names, err := s.Remotes()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"a", "b", "c"}) {
		t.Errorf("Remotes() = %v", names)
	}

	if err := s.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("b"); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("deleted listing still loads: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if names, _ := s.Remotes(); len(names) != 0 {
		t.Errorf("Remotes() after Clear = %v", names)
	}
}

func TestOpen_Persistent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(Listing{Remote: "main", Records: []Record{{FileName: "a-1.0.0-unknown-unknown-sources.tar.gz"}}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	l, err := reopened.Load("main")
	if err != nil || len(l.Records) != 1 {
		t.Errorf("reopened Load() = %+v, %v", l, err)
	}

	if _, err := Open(Options{}); err == nil {
		t.Error("Open() without dir should fail")
	}
}
