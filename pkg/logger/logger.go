// Package logger builds the application slog.Logger from configuration.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/soundprediction/refiner/pkg/config"
	"github.com/soundprediction/refiner/pkg/telemetry"
)

// ParseLevel maps a configuration string to a slog level. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing to stderr with the given level and format
// ("text" or "json").
func New(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// FromConfig builds the logger described by cfg.Log. When a telemetry
// parquet path is configured, warnings are additionally buffered to parquet
// files; the returned handler must be flushed before exit and is nil
// otherwise.
func FromConfig(cfg *config.Config) (*slog.Logger, *telemetry.ParquetHandler, error) {
	level := ParseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		base = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		base = slog.NewTextHandler(os.Stderr, opts)
	}

	if cfg.Telemetry.ParquetPath == "" {
		return slog.New(base), nil, nil
	}

	ph, err := telemetry.NewParquetHandler(base, cfg.Telemetry.ParquetPath)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(ph), ph, nil
}
