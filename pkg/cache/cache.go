// Package cache persists composed contexts keyed by a deterministic
// fingerprint of the pipeline configuration and query set. Entries are
// written wholesale and matched exactly; a changed fingerprint is a new
// entry, never an update of an old one.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/soundprediction/refiner/pkg/metrics"
)

// ErrInvalidFingerprint is returned when a fingerprint contains characters
// unsafe for use as a storage key
var ErrInvalidFingerprint = errors.New("invalid fingerprint: contains path traversal or invalid characters")

// QueryContext is the cached record of one query: its text, the original
// passage texts it entered the pipeline with, and the composed texts the
// pipeline produced. Original texts are kept for later comparison and
// auditing.
type QueryContext struct {
	QueryID  string   `json:"query_id"`
	Query    string   `json:"query"`
	Original []string `json:"original"`
	Composed []string `json:"composed"`
}

// Entry is the persisted unit: every query context of one refine run plus
// its aggregate compression metrics. Entries are immutable once written;
// recomputation overwrites the whole entry.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	CreatedAt   time.Time       `json:"created_at"`
	Rewriter    string          `json:"rewriter"`
	Queries     []QueryContext  `json:"queries"`
	Metrics     metrics.Metrics `json:"metrics"`
}

// Store is the key-value abstraction the pipeline reads from before any
// generation begins and writes to once after all batches complete.
// Implementations must treat unparseable entries as a miss so the caller
// recomputes and overwrites.
type Store interface {
	// Get returns the entry for fingerprint, or nil when absent.
	Get(ctx context.Context, fingerprint string) (*Entry, error)

	// Put persists the entry under fingerprint, replacing any previous one.
	Put(ctx context.Context, fingerprint string, entry *Entry) error

	// Close releases any underlying resources.
	Close() error
}
