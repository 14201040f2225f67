// Package batch drives ordered prompt lists through the generation
// capability in fixed-size batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soundprediction/refiner/pkg/nlp"
)

// ErrInvalidBatchSize indicates a non-positive batch size
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// ErrInvalidMaxNewTokens indicates a non-positive max_new_tokens value
var ErrInvalidMaxNewTokens = errors.New("max_new_tokens must be positive")

// Scheduler partitions prompts into contiguous batches of at most BatchSize
// and invokes the generator once per batch, sequentially and in order. A
// failed batch never aborts the run: every prompt in that batch degrades to
// its fallback text and a warning is logged.
type Scheduler struct {
	gen          nlp.Generator
	batchSize    int
	maxNewTokens int
	logger       *slog.Logger
}

// NewScheduler creates a Scheduler. batchSize and maxNewTokens must be positive.
func NewScheduler(gen nlp.Generator, batchSize, maxNewTokens int, logger *slog.Logger) (*Scheduler, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
	}
	if maxNewTokens <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxNewTokens, maxNewTokens)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		gen:          gen,
		batchSize:    batchSize,
		maxNewTokens: maxNewTokens,
		logger:       logger,
	}, nil
}

// Run generates one text per prompt, preserving global order across batches.
// fallbacks must have the same length as prompts; slot i falls back to
// fallbacks[i] when its batch fails. The second return value is the number
// of prompts that degraded to their fallback.
func (s *Scheduler) Run(ctx context.Context, prompts, fallbacks []string) ([]string, int) {
	if len(fallbacks) != len(prompts) {
		panic("batch: prompts and fallbacks length mismatch")
	}

	results := make([]string, 0, len(prompts))
	degraded := 0

	for start := 0; start < len(prompts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(prompts) {
			end = len(prompts)
		}
		chunk := prompts[start:end]

		generated, err := s.gen.Generate(ctx, chunk, s.maxNewTokens)
		if err == nil && len(generated) != len(chunk) {
			err = fmt.Errorf("%w: got %d, want %d", nlp.ErrLengthMismatch, len(generated), len(chunk))
		}
		if err != nil {
			s.logger.Warn("generation failed for batch, falling back to original text",
				"batch_start", start, "batch_size", len(chunk), "error", err)
			results = append(results, fallbacks[start:end]...)
			degraded += len(chunk)
			continue
		}

		results = append(results, generated...)
	}

	return results, degraded
}

// BatchSize returns the configured batch size.
func (s *Scheduler) BatchSize() int {
	return s.batchSize
}

// MaxNewTokens returns the configured per-prompt generation cap.
func (s *Scheduler) MaxNewTokens() int {
	return s.maxNewTokens
}
