package refiner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/refiner/pkg/batch"
	"github.com/soundprediction/refiner/pkg/cache"
	"github.com/soundprediction/refiner/pkg/compose"
	"github.com/soundprediction/refiner/pkg/metrics"
	"github.com/soundprediction/refiner/pkg/nlp"
	"github.com/soundprediction/refiner/pkg/prompt"
	"github.com/soundprediction/refiner/pkg/telemetry"
)

// Passage is one retrieved unit of text, ordered within its query's result
// set. Title is optional; when the title-preserving variant is active and
// Title is empty, the first sentence of Text is treated as the title.
type Passage struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Query is an identifier plus natural-language text and the retrieved
// passages to refine. Immutable once handed to the pipeline.
type Query struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Passages []Passage `json:"passages"`
}

// ComposedContext is the final ordered passage list for one query. In
// separate mode its length equals the input passage count; in combined mode
// it collapses to a single element (except when a failed rewrite keeps the
// originals as separate entries).
type ComposedContext struct {
	QueryID  string   `json:"query_id"`
	Passages []string `json:"passages"`
}

// Result is the outcome of one refine run.
type Result struct {
	Fingerprint string            `json:"fingerprint"`
	Contexts    []ComposedContext `json:"contexts"`
	Metrics     metrics.Metrics   `json:"metrics"`
	// FromCache is true when the run was served without any generation call.
	FromCache bool `json:"from_cache"`
}

// Pipeline identifies the surrounding retrieval pipeline for cache
// fingerprinting. The values are opaque to the rewriter.
type Pipeline struct {
	Dataset      string
	Retriever    string
	Reranker     string // empty means no reranker
	RetrieveTopK int
	RerankTopK   int
	GenerateTopK int
}

// Options holds the recognized rewriter options.
type Options struct {
	// Mode selects separate or combined rewriting (default separate)
	Mode compose.Mode
	// Policy selects concatenation or replacement (default concatenate)
	Policy compose.Policy
	// BatchSize is the number of prompts per generation call (default 4)
	BatchSize int
	// MaxNewTokens caps the generated length per prompt (default 256)
	MaxNewTokens int
	// Template overrides the default rewrite prompt template; it must
	// contain the required placeholders
	Template string
	// TitleField enables the title-preserving variant when non-empty. Its
	// value names the source field titles were taken from and feeds the
	// cache fingerprint.
	TitleField string
	// TokenEncoding enables the supplementary token compression metric
	TokenEncoding string
	// Pipeline identifies the upstream retrieval configuration
	Pipeline Pipeline
}

// DefaultOptions returns the default rewriter options.
func DefaultOptions() Options {
	return Options{
		Mode:         compose.ModeSeparate,
		Policy:       compose.PolicyConcatenate,
		BatchSize:    4,
		MaxNewTokens: 256,
	}
}

// Client drives the refine pipeline: cache lookup, prompt construction,
// batched generation, composition and metrics.
type Client struct {
	gen       nlp.Generator
	store     cache.Store
	builder   *prompt.Builder
	scheduler *batch.Scheduler
	composer  *compose.Composer
	collector *metrics.Collector
	logger    *slog.Logger
	opts      Options
}

// New creates a Client. store may be nil to disable caching (every call
// recomputes). All configuration is validated here; a malformed template or
// an invalid mode/policy combination never survives construction.
func New(gen nlp.Generator, store cache.Store, opts Options, logger *slog.Logger) (*Client, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = compose.ModeSeparate
	}
	if opts.Policy == "" {
		opts.Policy = compose.PolicyConcatenate
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 4
	}
	if opts.MaxNewTokens == 0 {
		opts.MaxNewTokens = 256
	}

	if opts.TitleField != "" && opts.Mode == compose.ModeCombined {
		return nil, fmt.Errorf("title-preserving rewriting requires separate mode")
	}

	var builder *prompt.Builder
	var err error
	if opts.TitleField != "" {
		builder, err = prompt.NewTitleBuilder(opts.Template)
	} else {
		builder, err = prompt.NewBuilder(opts.Template)
	}
	if err != nil {
		return nil, err
	}

	composer, err := compose.New(opts.Mode, opts.Policy)
	if err != nil {
		return nil, err
	}

	scheduler, err := batch.NewScheduler(gen, opts.BatchSize, opts.MaxNewTokens, logger)
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(opts.TokenEncoding)
	if err != nil {
		return nil, err
	}

	return &Client{
		gen:       gen,
		store:     store,
		builder:   builder,
		scheduler: scheduler,
		composer:  composer,
		collector: collector,
		logger:    logger,
		opts:      opts,
	}, nil
}

// Fingerprint returns the cache key this client derives for a query set.
func (c *Client) Fingerprint(queries []Query) string {
	keys := make([]cache.QueryKey, len(queries))
	for i, q := range queries {
		keys[i] = cache.QueryKey{ID: q.ID, Text: q.Text}
	}
	spec := cache.Spec{
		Dataset:       c.opts.Pipeline.Dataset,
		Retriever:     c.opts.Pipeline.Retriever,
		Reranker:      c.opts.Pipeline.Reranker,
		RetrieveTopK:  c.opts.Pipeline.RetrieveTopK,
		RerankTopK:    c.opts.Pipeline.RerankTopK,
		GenerateTopK:  c.opts.Pipeline.GenerateTopK,
		Rewriter:      c.gen.Identity(),
		Mode:          string(c.opts.Mode),
		Policy:        string(c.opts.Policy),
		TemplateHash:  c.builder.Hash(),
		TitleField:    c.opts.TitleField,
		TokenEncoding: c.opts.TokenEncoding,
	}
	return spec.Fingerprint(keys)
}

// Refine rewrites the passages of each query. The cache is read once before
// any generation begins and written once after all batches complete, so an
// aborted run leaves no partial entry behind. A failed cache write is logged
// and the computed result returned anyway; the next run simply recomputes.
func (c *Client) Refine(ctx context.Context, queries []Query) (*Result, error) {
	fingerprint := c.Fingerprint(queries)
	ctx = context.WithValue(ctx, telemetry.ContextKeyRunID, uuid.New().String())
	ctx = context.WithValue(ctx, telemetry.ContextKeyFingerprint, fingerprint)

	if c.store != nil {
		entry, err := c.store.Get(ctx, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("cache lookup failed: %w", err)
		}
		if entry != nil {
			c.logger.Debug("cache hit", "fingerprint", fingerprint, "queries", len(entry.Queries))
			return resultFromEntry(entry, fingerprint), nil
		}
	}

	var contexts []ComposedContext
	var degraded int
	if c.opts.Mode == compose.ModeSeparate {
		contexts, degraded = c.refineSeparate(ctx, queries)
	} else {
		contexts, degraded = c.refineCombined(ctx, queries)
	}

	originals := make([]string, 0, len(queries))
	finals := make([]string, 0, len(queries))
	for qi, q := range queries {
		for _, p := range q.Passages {
			originals = append(originals, fullText(p))
		}
		finals = append(finals, contexts[qi].Passages...)
	}

	m := c.collector.Collect(originals, finals)
	m.DegradedPrompts = degraded
	if degraded > 0 {
		c.logger.Warn("refine run degraded for some prompts",
			"degraded", degraded, "fingerprint", fingerprint)
	}

	result := &Result{
		Fingerprint: fingerprint,
		Contexts:    contexts,
		Metrics:     m,
	}

	if c.store != nil {
		entry := &cache.Entry{
			Fingerprint: fingerprint,
			CreatedAt:   time.Now().UTC(),
			Rewriter:    c.gen.Identity(),
			Metrics:     m,
			Queries:     make([]cache.QueryContext, len(queries)),
		}
		for qi, q := range queries {
			orig := make([]string, len(q.Passages))
			for pi, p := range q.Passages {
				orig[pi] = fullText(p)
			}
			entry.Queries[qi] = cache.QueryContext{
				QueryID:  q.ID,
				Query:    q.Text,
				Original: orig,
				Composed: contexts[qi].Passages,
			}
		}
		// The result is already computed; losing the cache entry only costs
		// a recompute on the next run, so a failed write never fails the run.
		if err := c.store.Put(ctx, fingerprint, entry); err != nil {
			c.logger.Warn("cache write failed, returning uncached result",
				"fingerprint", fingerprint, "error", err)
		}
	}

	return result, nil
}

// refineSeparate rewrites every non-empty passage on its own. Empty passages
// are never prompted and pass through unchanged; output cardinality always
// matches input cardinality.
func (c *Client) refineSeparate(ctx context.Context, queries []Query) ([]ComposedContext, int) {
	type unit struct {
		queryIdx   int
		passageIdx int
		title      string
	}

	var prompts, fallbacks []string
	var units []unit

	titled := c.builder.Titled()
	for qi, q := range queries {
		for pi, p := range q.Passages {
			full := fullText(p)
			if strings.TrimSpace(full) == "" {
				continue
			}
			if titled {
				title, content := p.Title, p.Text
				if title == "" {
					title, content = prompt.SplitTitleContent(p.Text)
				}
				prompts = append(prompts, c.builder.BuildTitled(q.Text, title, content))
				fallbacks = append(fallbacks, content)
				units = append(units, unit{queryIdx: qi, passageIdx: pi, title: title})
			} else {
				prompts = append(prompts, c.builder.Build(q.Text, full))
				fallbacks = append(fallbacks, full)
				units = append(units, unit{queryIdx: qi, passageIdx: pi})
			}
		}
	}

	generated, degraded := c.scheduler.Run(ctx, prompts, fallbacks)

	contexts := make([]ComposedContext, len(queries))
	for qi, q := range queries {
		passages := make([]string, len(q.Passages))
		for pi, p := range q.Passages {
			passages[pi] = fullText(p)
		}
		contexts[qi] = ComposedContext{QueryID: q.ID, Passages: passages}
	}

	for i, u := range units {
		original := contexts[u.queryIdx].Passages[u.passageIdx]
		text := generated[i]
		if titled {
			text = compose.ReattachTitle(u.title, text)
		}
		contexts[u.queryIdx].Passages[u.passageIdx] = c.composer.ComposeOne(original, text)
	}

	return contexts, degraded
}

// refineCombined rewrites all passages of a query in one prompt. The empty
// fallback makes a failed batch keep each query's original passages as
// separate entries instead of collapsing them.
func (c *Client) refineCombined(ctx context.Context, queries []Query) ([]ComposedContext, int) {
	var prompts, fallbacks []string
	var queryIdx []int

	for qi, q := range queries {
		texts := make([]string, len(q.Passages))
		nonEmpty := false
		for pi, p := range q.Passages {
			texts[pi] = fullText(p)
			if strings.TrimSpace(texts[pi]) != "" {
				nonEmpty = true
			}
		}
		if !nonEmpty {
			continue
		}
		prompts = append(prompts, c.builder.BuildCombined(q.Text, texts))
		fallbacks = append(fallbacks, "")
		queryIdx = append(queryIdx, qi)
	}

	generated, degraded := c.scheduler.Run(ctx, prompts, fallbacks)

	contexts := make([]ComposedContext, len(queries))
	for qi, q := range queries {
		passages := make([]string, len(q.Passages))
		for pi, p := range q.Passages {
			passages[pi] = fullText(p)
		}
		contexts[qi] = ComposedContext{QueryID: q.ID, Passages: passages}
	}

	for i, qi := range queryIdx {
		originals := contexts[qi].Passages
		contexts[qi].Passages = c.composer.ComposeCombined(originals, generated[i])
	}

	return contexts, degraded
}

// Close releases the generator and the cache store.
func (c *Client) Close() error {
	var firstErr error
	if err := c.gen.Close(); err != nil {
		firstErr = err
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fullText returns the passage text as seen downstream, with an explicit
// title prepended when present.
func fullText(p Passage) string {
	if p.Title == "" {
		return p.Text
	}
	return p.Title + " " + p.Text
}

func resultFromEntry(entry *cache.Entry, fingerprint string) *Result {
	contexts := make([]ComposedContext, len(entry.Queries))
	for i, q := range entry.Queries {
		contexts[i] = ComposedContext{QueryID: q.QueryID, Passages: q.Composed}
	}
	return &Result{
		Fingerprint: fingerprint,
		Contexts:    contexts,
		Metrics:     entry.Metrics,
		FromCache:   true,
	}
}
