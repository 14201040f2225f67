package cache

import (
	"fmt"
	"log/slog"

	"github.com/soundprediction/refiner/pkg/config"
)

// FromConfig builds a Store from the cache configuration.
func FromConfig(cfg config.CacheConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir, logger)
	case "badger":
		return NewBadgerStore(cfg.Dir, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
