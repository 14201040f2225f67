package refiner

import (
	"fmt"
	"log/slog"

	"github.com/soundprediction/refiner/pkg/cache"
	"github.com/soundprediction/refiner/pkg/compose"
	"github.com/soundprediction/refiner/pkg/config"
	"github.com/soundprediction/refiner/pkg/nlp"
)

// FromConfig builds a fully wired Client from the application configuration:
// generator (with retry and circuit breaker wrappers when enabled), cache
// store and rewriter options.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gen, err := nlp.FromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := cache.FromConfig(cfg.Cache, logger)
	if err != nil {
		gen.Close()
		return nil, err
	}

	client, err := New(gen, store, OptionsFromConfig(cfg), logger)
	if err != nil {
		gen.Close()
		store.Close()
		return nil, fmt.Errorf("failed to create refiner: %w", err)
	}

	return client, nil
}

// OptionsFromConfig maps the configuration surface onto rewriter Options.
func OptionsFromConfig(cfg *config.Config) Options {
	mode := compose.ModeCombined
	if cfg.Rewriter.ProcessSeparately {
		mode = compose.ModeSeparate
	}
	policy := compose.PolicyReplace
	if cfg.Rewriter.ConcatenateOriginal {
		policy = compose.PolicyConcatenate
	}

	return Options{
		Mode:          mode,
		Policy:        policy,
		BatchSize:     cfg.Rewriter.BatchSize,
		MaxNewTokens:  cfg.Rewriter.MaxNewTokens,
		Template:      cfg.Rewriter.RewritePromptTemplate,
		TitleField:    cfg.Rewriter.TitleField,
		TokenEncoding: cfg.NLP.TokenEncoding,
		Pipeline: Pipeline{
			Dataset:      cfg.Pipeline.Dataset,
			Retriever:    cfg.Pipeline.Retriever,
			Reranker:     cfg.Pipeline.Reranker,
			RetrieveTopK: cfg.Pipeline.RetrieveTopK,
			RerankTopK:   cfg.Pipeline.RerankTopK,
			GenerateTopK: cfg.Pipeline.GenerateTopK,
		},
	}
}
