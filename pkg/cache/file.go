package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// FileStore persists one JSON file per fingerprint. Writes go through a
// temporary file and a rename, so a crash mid-write leaves either the old
// entry or none, never a partial one.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store rooted at dir. If dir is empty,
// os.TempDir()/refiner-cache is used.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "refiner-cache")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileStore{dir: dir, logger: logger}, nil
}

// validateFingerprint checks that the fingerprint is safe for use in file
// paths. Fingerprints are hex digests in normal operation; anything with
// separators, traversal sequences or null bytes is rejected.
func validateFingerprint(fingerprint string) error {
	if fingerprint == "" {
		return ErrInvalidFingerprint
	}
	if strings.Contains(fingerprint, "..") {
		return ErrInvalidFingerprint
	}
	if strings.ContainsAny(fingerprint, `/\`) {
		return ErrInvalidFingerprint
	}
	if strings.ContainsRune(fingerprint, '\x00') {
		return ErrInvalidFingerprint
	}
	return nil
}

// entryPath returns the file path for a fingerprint's entry.
func (s *FileStore) entryPath(fingerprint string) (string, error) {
	if err := validateFingerprint(fingerprint); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, fmt.Sprintf("context_%s.json", fingerprint)), nil
}

// Get returns the entry for fingerprint, or nil when absent. An entry that
// fails to parse is treated as a miss: the caller recomputes and overwrites.
// A repair pass runs first, since truncated JSON from an interrupted write
// on a non-atomic filesystem is the common corruption shape.
func (s *FileStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	path, err := s.entryPath(fingerprint)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil || json.Unmarshal([]byte(repaired), &entry) != nil {
			s.logger.Warn("cache entry is corrupt, treating as miss",
				"fingerprint", fingerprint, "error", err)
			return nil, nil
		}
	}

	// An entry stored under the wrong key is as unusable as a corrupt one.
	if entry.Fingerprint != fingerprint {
		s.logger.Warn("cache entry fingerprint mismatch, treating as miss",
			"fingerprint", fingerprint, "stored", entry.Fingerprint)
		return nil, nil
	}

	return &entry, nil
}

// Put persists the entry under fingerprint, replacing any previous one.
func (s *FileStore) Put(ctx context.Context, fingerprint string, entry *Entry) error {
	path, err := s.entryPath(fingerprint)
	if err != nil {
		return err
	}

	entry.Fingerprint = fingerprint

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Write to a temporary file first, then rename for atomic write
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename cache entry: %w", err)
	}

	return nil
}

// Delete removes the entry for fingerprint, if present.
func (s *FileStore) Delete(ctx context.Context, fingerprint string) error {
	path, err := s.entryPath(fingerprint)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Dir returns the cache directory path.
func (s *FileStore) Dir() string {
	return s.dir
}

// Close implements Store (no resources to release).
func (s *FileStore) Close() error {
	return nil
}

// compile-time interface check
var _ Store = (*FileStore)(nil)
