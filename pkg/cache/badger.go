package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists entries in an embedded Badger key-value database.
// Suited to experiment suites that accumulate many fingerprints, where one
// file per entry gets unwieldy.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore opens (or creates) a Badger database at dir.
func NewBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache at %s: %w", dir, err)
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

// Get returns the entry for fingerprint, or nil when absent. Corrupt values
// are treated as a miss.
func (s *BadgerStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	if err := validateFingerprint(fingerprint); err != nil {
		return nil, err
	}

	var entry *Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fingerprint))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				s.logger.Warn("cache entry is corrupt, treating as miss",
					"fingerprint", fingerprint, "error", err)
				return nil
			}
			if e.Fingerprint != fingerprint {
				s.logger.Warn("cache entry fingerprint mismatch, treating as miss",
					"fingerprint", fingerprint, "stored", e.Fingerprint)
				return nil
			}
			entry = &e
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	return entry, nil
}

// Put persists the entry under fingerprint, replacing any previous one.
func (s *BadgerStore) Put(ctx context.Context, fingerprint string, entry *Entry) error {
	if err := validateFingerprint(fingerprint); err != nil {
		return err
	}

	entry.Fingerprint = fingerprint

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fingerprint), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// compile-time interface check
var _ Store = (*BadgerStore)(nil)
