package nlp

import (
	"fmt"
	"log/slog"

	"github.com/soundprediction/refiner/pkg/alert"
	"github.com/soundprediction/refiner/pkg/config"
)

// FromConfig builds a Generator from the application configuration, applying
// the retry and circuit breaker wrappers when enabled.
func FromConfig(cfg *config.Config, logger *slog.Logger) (Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.NLP.Provider {
	case "", "openai":
		// fall through to the OpenAI-compatible client below
	default:
		return nil, fmt.Errorf("unknown nlp provider: %q", cfg.NLP.Provider)
	}

	temperature := cfg.NLP.Temperature
	gen, err := NewOpenAIGenerator(cfg.NLP.APIKey, Config{
		Model:       cfg.NLP.Model,
		BaseURL:     cfg.NLP.BaseURL,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	var wrapped Generator = gen
	if cfg.NLP.Retry {
		wrapped = NewRetryGenerator(wrapped, nil)
	}
	if cfg.CircuitBreaker.Enabled {
		var alerter alert.Alerter = &alert.NoOpAlerter{}
		if cfg.Alert.Enabled {
			alerter = alert.NewEmailAlerter(cfg.Alert)
		}
		wrapped = NewBreakerGenerator(wrapped, cfg.CircuitBreaker, alerter, "generation", logger)
	}

	return wrapped, nil
}
