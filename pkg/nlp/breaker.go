package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/refiner/pkg/alert"
	"github.com/soundprediction/refiner/pkg/config"
)

// BreakerGenerator wraps a Generator with circuit breaking logic. Once the
// failure ratio trips the breaker, generation requests fail fast until the
// timeout elapses, which lets the scheduler fall back to original passages
// without waiting on a dead upstream.
type BreakerGenerator struct {
	gen     Generator
	cb      *gobreaker.CircuitBreaker
	alerter alert.Alerter
	name    string
}

// NewBreakerGenerator creates a new circuit breaker generator
func NewBreakerGenerator(gen Generator, cfg config.CircuitBreakerConfig, alerter alert.Alerter, name string, logger *slog.Logger) *BreakerGenerator {
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				msg := fmt.Sprintf("Circuit breaker '%s' changed status from %s to %s. Too many generation failures detected.", name, from, to)
				if alerter != nil {
					_ = alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg)
				}
				logger.Warn("circuit breaker tripped", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}

	return &BreakerGenerator{
		gen:     gen,
		cb:      gobreaker.NewCircuitBreaker(st),
		alerter: alerter,
		name:    name,
	}
}

// Generate implements Generator
func (b *BreakerGenerator) Generate(ctx context.Context, prompts []string, maxNewTokens int) ([]string, error) {
	resp, err := b.cb.Execute(func() (interface{}, error) {
		return b.gen.Generate(ctx, prompts, maxNewTokens)
	})

	if err != nil {
		return nil, err
	}
	return resp.([]string), nil
}

// Identity implements Generator
func (b *BreakerGenerator) Identity() string {
	return b.gen.Identity()
}

// Close implements Generator
func (b *BreakerGenerator) Close() error {
	return b.gen.Close()
}

// compile-time interface check
var _ Generator = (*BreakerGenerator)(nil)
