// SPDX-License-Identifier: MPL-2.0

// Package index persists registry listings between runs so a lazy sync can
// skip the network entirely.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
)

const listingPrefix = "listing/"

// ErrListingNotFound is returned when no listing was persisted for a remote.
var ErrListingNotFound = errors.New("listing not found")

type (
	// Options configures a Store.
	Options struct {
		// Dir holds the badger files. Ignored when InMemory is set.
		Dir string
		// InMemory keeps everything in RAM, for tests.
		InMemory bool
		// Logger receives badger's internal messages. Nil silences them.
		Logger *log.Logger
	}

	// Record is one artifact of a remote listing.
	Record struct {
		FileName    string `json:"file_name"`
		URL         string `json:"url"`
		ChecksumURL string `json:"checksum_url"`
		Size        int64  `json:"size,omitempty"`
		Checksum    string `json:"checksum,omitempty"`
	}

	// Listing is the persisted snapshot of one remote.
	Listing struct {
		Remote   string    `json:"remote"`
		SyncedAt time.Time `json:"synced_at"`
		Records  []Record  `json:"records"`
	}

	// Store is a badger-backed listing store.
	Store struct {
		db *badger.DB
	}

	badgerLogger struct {
		l *log.Logger
	}
)

func (b badgerLogger) Errorf(format string, args ...any)   { b.l.Errorf(format, args...) }
func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warnf(format, args...) }
func (b badgerLogger) Infof(format string, args ...any)    { b.l.Debugf(format, args...) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.l.Debugf(format, args...) }

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("index directory is required")
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", opts.Dir, err)
		}
		bopts = badger.DefaultOptions(opts.Dir).WithSyncWrites(true)
	}
	bopts = bopts.WithNumVersionsToKeep(1)

	if opts.Logger != nil {
		bopts = bopts.WithLogger(badgerLogger{l: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the listing of l.Remote.
func (s *Store) Save(l Listing) error {
	if l.Remote == "" {
		return errors.New("listing has no remote name")
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode listing for %s: %w", l.Remote, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(listingPrefix+l.Remote), data)
	})
}

// Load returns the persisted listing of remote, or ErrListingNotFound.
func (s *Store) Load(remote string) (Listing, error) {
	var l Listing
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(listingPrefix + remote))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &l)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Listing{}, fmt.Errorf("%w: %s", ErrListingNotFound, remote)
	}
	if err != nil {
		return Listing{}, fmt.Errorf("failed to load listing for %s: %w", remote, err)
	}
	return l, nil
}

// Remotes lists the names of every persisted remote in key order.
func (s *Store) Remotes() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(listingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), listingPrefix))
		}
		return nil
	})
	return names, err
}

// Delete removes the listing of remote. Missing listings are not an error.
func (s *Store) Delete(remote string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(listingPrefix + remote))
	})
}

// Clear drops every listing.
func (s *Store) Clear() error {
	return s.db.DropPrefix([]byte(listingPrefix))
}
