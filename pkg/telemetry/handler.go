// Package telemetry provides a slog.Handler that persists warning and error
// records from refine runs to Parquet files for later analysis.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// ContextKey is the type for telemetry values carried in a context.
type ContextKey string

const (
	// ContextKeyRunID identifies one refine invocation across log records.
	ContextKeyRunID ContextKey = "refiner_run_id"
	// ContextKeyFingerprint carries the cache fingerprint of the run.
	ContextKeyFingerprint ContextKey = "refiner_fingerprint"
)

// LogRecord represents a single log entry for Parquet storage
type LogRecord struct {
	ID          string    `parquet:"id"`
	Timestamp   time.Time `parquet:"timestamp"`
	Level       string    `parquet:"level"`
	Message     string    `parquet:"message"`
	RunID       string    `parquet:"run_id"`
	Fingerprint string    `parquet:"fingerprint"`
	SourceFile  string    `parquet:"source_file"`
	LineNumber  int       `parquet:"line_number"`
	Attributes  string    `parquet:"attributes"` // JSON string
}

// ParquetHandler is a slog.Handler that writes warning-and-above logs to
// Parquet files while forwarding every record to the next handler. Batch
// generation fallbacks surface here as the warning-level signal the pipeline
// contract requires.
type ParquetHandler struct {
	next      slog.Handler
	outputDir string
	mu        sync.Mutex
	buffer    []LogRecord
	batchSize int
}

// NewParquetHandler creates a new ParquetHandler
func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	h := &ParquetHandler{
		next:      next,
		outputDir: outputDir,
		batchSize: 100,
		buffer:    make([]LogRecord, 0, 100),
	}

	return h, nil
}

// Enabled implements slog.Handler
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always pass to next handler first
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	// Only persist warnings and above
	if r.Level < slog.LevelWarn {
		return nil
	}

	var runID, fingerprint string
	if v, ok := ctx.Value(ContextKeyRunID).(string); ok {
		runID = v
	}
	if v, ok := ctx.Value(ContextKeyFingerprint).(string); ok {
		fingerprint = v
	}

	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	record := LogRecord{
		ID:          uuid.New().String(),
		Timestamp:   r.Time.UTC(),
		Level:       r.Level.String(),
		Message:     r.Message,
		RunID:       runID,
		Fingerprint: fingerprint,
		SourceFile:  f.File,
		LineNumber:  f.Line,
		Attributes:  string(attrsJSON),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buffer = append(h.buffer, record)

	if len(h.buffer) >= h.batchSize {
		return h.flushLocked()
	}

	return nil
}

// Flush writes any buffered records to a Parquet file. Call before process
// exit so short runs are not lost to batching.
func (h *ParquetHandler) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked()
}

// flushLocked writes the current buffer to a new Parquet file.
// Caller must hold the lock.
func (h *ParquetHandler) flushLocked() error {
	if len(h.buffer) == 0 {
		return nil
	}

	filename := fmt.Sprintf("refine_warnings_%s_%d.parquet", time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(h.outputDir, filename)

	if err := parquet.WriteFile(path, h.buffer); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write telemetry parquet file: %v\n", err)
		return err
	}

	h.buffer = h.buffer[:0]
	return nil
}

// WithAttrs implements slog.Handler
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithAttrs(attrs),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		// Child loggers batch independently
		buffer: make([]LogRecord, 0, h.batchSize),
	}
}

// WithGroup implements slog.Handler
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithGroup(name),
		outputDir: h.outputDir,
		batchSize: h.batchSize,
		buffer:    make([]LogRecord, 0, h.batchSize),
	}
}
