package refiner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/soundprediction/refiner/pkg/cache"
	"github.com/soundprediction/refiner/pkg/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingGenerator returns a fixed rewrite per prompt and records every call.
type countingGenerator struct {
	calls    int
	prompts  []string
	rewrite  string
	failWith error
}

func (g *countingGenerator) Generate(ctx context.Context, prompts []string, maxNewTokens int) ([]string, error) {
	g.calls++
	g.prompts = append(g.prompts, prompts...)
	if g.failWith != nil {
		return nil, g.failWith
	}
	out := make([]string, len(prompts))
	for i := range prompts {
		out[i] = g.rewrite
	}
	return out, nil
}

func (g *countingGenerator) Identity() string { return "test/counting" }
func (g *countingGenerator) Close() error     { return nil }

// brokenStore misses on every Get and fails every Put.
type brokenStore struct {
	putErr error
	puts   int
}

func (s *brokenStore) Get(ctx context.Context, fingerprint string) (*cache.Entry, error) {
	return nil, nil
}

func (s *brokenStore) Put(ctx context.Context, fingerprint string, entry *cache.Entry) error {
	s.puts++
	return s.putErr
}

func (s *brokenStore) Close() error { return nil }

func testQueries() []Query {
	return []Query{
		{
			ID:   "q1",
			Text: "What is the capital of France?",
			Passages: []Passage{
				{Text: "France is a country in Western Europe."},
				{Text: "Paris is the capital and most populous city of France."},
			},
		},
		{
			ID:   "q2",
			Text: "Who wrote Hamlet?",
			Passages: []Passage{
				{Text: "Hamlet is a tragedy written by William Shakespeare."},
			},
		},
	}
}

func TestNew(t *testing.T) {
	gen := &countingGenerator{rewrite: "r"}

	t.Run("Nil generator rejected", func(t *testing.T) {
		_, err := New(nil, nil, DefaultOptions(), nil)
		assert.Error(t, err)
	})

	t.Run("Defaults are filled in", func(t *testing.T) {
		client, err := New(gen, nil, Options{}, nil)
		require.NoError(t, err)
		assert.Equal(t, compose.ModeSeparate, client.opts.Mode)
		assert.Equal(t, compose.PolicyConcatenate, client.opts.Policy)
		assert.Equal(t, 4, client.opts.BatchSize)
		assert.Equal(t, 256, client.opts.MaxNewTokens)
	})

	t.Run("Title variant requires separate mode", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Mode = compose.ModeCombined
		opts.TitleField = "title"
		_, err := New(gen, nil, opts, nil)
		assert.Error(t, err)
	})

	t.Run("Malformed template fails construction", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Template = "no placeholders at all"
		_, err := New(gen, nil, opts, nil)
		assert.Error(t, err)
	})
}

func TestRefineSeparate(t *testing.T) {
	ctx := context.Background()

	t.Run("Concatenate appends tagged rewrite to every passage", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "The capital of France is Paris."}
		client, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)

		result, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		require.Len(t, result.Contexts, 2)
		assert.False(t, result.FromCache)

		// Cardinality and order match the input.
		assert.Equal(t, "q1", result.Contexts[0].QueryID)
		assert.Equal(t, "q2", result.Contexts[1].QueryID)
		require.Len(t, result.Contexts[0].Passages, 2)
		require.Len(t, result.Contexts[1].Passages, 1)

		first := result.Contexts[0].Passages[0]
		assert.True(t, strings.HasPrefix(first, "France is a country in Western Europe."))
		assert.Contains(t, first, "\n\nRefined version: The capital of France is Paris.")

		// Concatenation grows the output, so compression goes negative.
		assert.Less(t, result.Metrics.CompressionPct, 0.0)
		assert.Zero(t, result.Metrics.DegradedPrompts)
	})

	t.Run("Replace keeps only the rewrite", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "short"}
		opts := DefaultOptions()
		opts.Policy = compose.PolicyReplace
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		result, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		for _, c := range result.Contexts {
			for _, p := range c.Passages {
				assert.Equal(t, "short", p)
			}
		}
		assert.Greater(t, result.Metrics.CompressionPct, 0.0)
	})

	t.Run("Empty passages pass through without prompting", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "r"}
		client, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)

		queries := []Query{{
			ID:   "q1",
			Text: "anything",
			Passages: []Passage{
				{Text: "real content"},
				{Text: "   "},
				{Text: ""},
			},
		}}

		result, err := client.Refine(ctx, queries)
		require.NoError(t, err)
		require.Len(t, result.Contexts[0].Passages, 3)
		assert.Equal(t, "   ", result.Contexts[0].Passages[1])
		assert.Equal(t, "", result.Contexts[0].Passages[2])
		assert.Len(t, gen.prompts, 1)
	})

	t.Run("Zero-passage query yields an empty context", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "r"}
		client, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)

		queries := []Query{
			{ID: "q1", Text: "has passages", Passages: []Passage{{Text: "real content"}}},
			{ID: "empty", Text: "retrieved nothing"},
		}

		result, err := client.Refine(ctx, queries)
		require.NoError(t, err)
		require.Len(t, result.Contexts, 2)
		assert.Equal(t, "empty", result.Contexts[1].QueryID)
		assert.Empty(t, result.Contexts[1].Passages)
		assert.Len(t, gen.prompts, 1)
		assert.Zero(t, result.Metrics.DegradedPrompts)
	})

	t.Run("Generation failure degrades to originals", func(t *testing.T) {
		gen := &countingGenerator{failWith: errors.New("model unavailable")}
		client, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)

		result, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		assert.Equal(t, 3, result.Metrics.DegradedPrompts)

		// Under concatenation the degraded passage carries its original text
		// in the refined slot as well.
		first := result.Contexts[0].Passages[0]
		assert.Equal(t,
			"France is a country in Western Europe.\n\nRefined version: France is a country in Western Europe.",
			first)
	})

	t.Run("Batches are respected", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "r"}
		opts := DefaultOptions()
		opts.BatchSize = 2
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		// 3 non-empty passages at batch size 2 means exactly 2 calls.
		_, err = client.Refine(ctx, testQueries())
		require.NoError(t, err)
		assert.Equal(t, 2, gen.calls)
	})
}

func TestRefineCombined(t *testing.T) {
	ctx := context.Background()

	t.Run("Replace collapses each query to one element", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "combined rewrite"}
		opts := DefaultOptions()
		opts.Mode = compose.ModeCombined
		opts.Policy = compose.PolicyReplace
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		result, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		require.Len(t, result.Contexts, 2)
		assert.Equal(t, []string{"combined rewrite"}, result.Contexts[0].Passages)
		assert.Equal(t, []string{"combined rewrite"}, result.Contexts[1].Passages)

		// One prompt per query, not per passage.
		assert.Len(t, gen.prompts, 2)
		assert.Contains(t, gen.prompts[0], "Passage 1:")
		assert.Contains(t, gen.prompts[0], "Passage 2:")
	})

	t.Run("Concatenate tags originals as documents", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "summary"}
		opts := DefaultOptions()
		opts.Mode = compose.ModeCombined
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		result, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		require.Len(t, result.Contexts[0].Passages, 1)
		combined := result.Contexts[0].Passages[0]
		assert.Contains(t, combined, "Document 1: France is a country in Western Europe.")
		assert.Contains(t, combined, "Document 2: Paris is the capital")
		assert.Contains(t, combined, "Refined version:\nsummary")
	})

	t.Run("Failure keeps originals as separate entries", func(t *testing.T) {
		gen := &countingGenerator{failWith: errors.New("model unavailable")}
		opts := DefaultOptions()
		opts.Mode = compose.ModeCombined
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		queries := testQueries()
		result, err := client.Refine(ctx, queries)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"France is a country in Western Europe.",
			"Paris is the capital and most populous city of France.",
		}, result.Contexts[0].Passages)
		assert.Equal(t, 2, result.Metrics.DegradedPrompts)
	})

	t.Run("Zero-passage query yields an empty context", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "r"}
		opts := DefaultOptions()
		opts.Mode = compose.ModeCombined
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		queries := []Query{
			{ID: "q1", Text: "has passages", Passages: []Passage{{Text: "real content"}}},
			{ID: "empty", Text: "retrieved nothing"},
		}

		result, err := client.Refine(ctx, queries)
		require.NoError(t, err)
		require.Len(t, result.Contexts, 2)
		assert.Empty(t, result.Contexts[1].Passages)
		assert.Len(t, gen.prompts, 1)
	})

	t.Run("All-empty query is never prompted", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "r"}
		opts := DefaultOptions()
		opts.Mode = compose.ModeCombined
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		queries := []Query{{ID: "q1", Text: "q", Passages: []Passage{{Text: ""}, {Text: "  "}}}}
		result, err := client.Refine(ctx, queries)
		require.NoError(t, err)
		assert.Zero(t, gen.calls)
		assert.Equal(t, []string{"", "  "}, result.Contexts[0].Passages)
	})
}

func TestRefineTitled(t *testing.T) {
	ctx := context.Background()

	t.Run("Explicit title is reattached verbatim", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "iron lattice tower in Paris"}
		opts := DefaultOptions()
		opts.TitleField = "title"
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		queries := []Query{{
			ID:   "q1",
			Text: "what is the eiffel tower",
			Passages: []Passage{
				{Title: "Eiffel Tower", Text: "A wrought-iron lattice tower on the Champ de Mars."},
			},
		}}

		result, err := client.Refine(ctx, queries)
		require.NoError(t, err)
		composed := result.Contexts[0].Passages[0]
		assert.Contains(t, composed, "Refined version: Eiffel Tower iron lattice tower in Paris")

		// The prompt carries title and content in separate slots.
		require.Len(t, gen.prompts, 1)
		assert.Contains(t, gen.prompts[0], "Title: Eiffel Tower")
		assert.NotContains(t, gen.prompts[0], "{title}")
	})

	t.Run("Missing title falls back to first sentence", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "rewritten content"}
		opts := DefaultOptions()
		opts.TitleField = "title"
		opts.Policy = compose.PolicyReplace
		client, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		queries := []Query{{
			ID:   "q1",
			Text: "q",
			Passages: []Passage{
				{Text: "Eiffel Tower. A lattice tower in Paris."},
			},
		}}

		result, err := client.Refine(ctx, queries)
		require.NoError(t, err)
		assert.Equal(t, "Eiffel Tower. rewritten content", result.Contexts[0].Passages[0])
	})
}

func TestRefineCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Second run is served from cache without generation", func(t *testing.T) {
		store, err := cache.NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)

		gen := &countingGenerator{rewrite: "rewrite"}
		client, err := New(gen, store, DefaultOptions(), nil)
		require.NoError(t, err)

		first, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		assert.False(t, first.FromCache)
		callsAfterFirst := gen.calls
		assert.Positive(t, callsAfterFirst)

		second, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		assert.True(t, second.FromCache)
		assert.Equal(t, callsAfterFirst, gen.calls)

		assert.Equal(t, first.Fingerprint, second.Fingerprint)
		assert.Equal(t, first.Contexts, second.Contexts)
		assert.InDelta(t, first.Metrics.CompressionPct, second.Metrics.CompressionPct, 1e-9)
	})

	t.Run("Changed query set misses", func(t *testing.T) {
		store, err := cache.NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)

		gen := &countingGenerator{rewrite: "rewrite"}
		client, err := New(gen, store, DefaultOptions(), nil)
		require.NoError(t, err)

		_, err = client.Refine(ctx, testQueries())
		require.NoError(t, err)
		callsAfterFirst := gen.calls

		changed := testQueries()
		changed[0].Text = "What is the capital of Germany?"
		result, err := client.Refine(ctx, changed)
		require.NoError(t, err)
		assert.False(t, result.FromCache)
		assert.Greater(t, gen.calls, callsAfterFirst)
	})

	t.Run("Failed cache write still returns the result", func(t *testing.T) {
		store := &brokenStore{putErr: errors.New("disk full")}
		gen := &countingGenerator{rewrite: "rewrite"}
		client, err := New(gen, store, DefaultOptions(), nil)
		require.NoError(t, err)

		result, err := client.Refine(ctx, testQueries())
		require.NoError(t, err)
		require.Len(t, result.Contexts, 2)
		assert.False(t, result.FromCache)
		assert.Equal(t, 1, store.puts)
	})

	t.Run("Nil store recomputes every call", func(t *testing.T) {
		gen := &countingGenerator{rewrite: "rewrite"}
		client, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)

		_, err = client.Refine(ctx, testQueries())
		require.NoError(t, err)
		first := gen.calls

		_, err = client.Refine(ctx, testQueries())
		require.NoError(t, err)
		assert.Equal(t, first*2, gen.calls)
	})
}

func TestFingerprint(t *testing.T) {
	gen := &countingGenerator{rewrite: "r"}

	t.Run("Stable across clients with equal options", func(t *testing.T) {
		a, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)
		b, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)
		assert.Equal(t, a.Fingerprint(testQueries()), b.Fingerprint(testQueries()))
	})

	t.Run("Mode and policy are part of the key", func(t *testing.T) {
		base, err := New(gen, nil, DefaultOptions(), nil)
		require.NoError(t, err)

		opts := DefaultOptions()
		opts.Mode = compose.ModeCombined
		combined, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		opts = DefaultOptions()
		opts.Policy = compose.PolicyReplace
		replace, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		q := testQueries()
		assert.NotEqual(t, base.Fingerprint(q), combined.Fingerprint(q))
		assert.NotEqual(t, base.Fingerprint(q), replace.Fingerprint(q))
	})

	t.Run("Pipeline identity is part of the key", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Pipeline = Pipeline{Dataset: "nq", Retriever: "bm25", RetrieveTopK: 50}
		a, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		opts.Pipeline.Dataset = "hotpotqa"
		b, err := New(gen, nil, opts, nil)
		require.NoError(t, err)

		q := testQueries()
		assert.NotEqual(t, a.Fingerprint(q), b.Fingerprint(q))
	})
}

func TestFullText(t *testing.T) {
	assert.Equal(t, "body", fullText(Passage{Text: "body"}))
	assert.Equal(t, "Title body", fullText(Passage{Title: "Title", Text: "body"}))
}

func TestClose(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	gen := &countingGenerator{rewrite: "r"}
	client, err := New(gen, store, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

// Exercised here rather than in an example file so the expected texts stay
// close to the assertions.
func TestRefineScenario(t *testing.T) {
	gen := &countingGenerator{rewrite: "Paris is France's capital city."}
	client, err := New(gen, nil, DefaultOptions(), nil)
	require.NoError(t, err)

	queries := []Query{{
		ID:   "nq-42",
		Text: "What is the capital of France?",
		Passages: []Passage{
			{Text: "France, officially the French Republic, is a country located primarily in Western Europe. Its capital is Paris."},
		},
	}}

	result, err := client.Refine(context.Background(), queries)
	require.NoError(t, err)

	expected := fmt.Sprintf("%s\n\n%s %s",
		queries[0].Passages[0].Text,
		compose.RefinedTag,
		"Paris is France's capital city.")
	assert.Equal(t, expected, result.Contexts[0].Passages[0])
}
