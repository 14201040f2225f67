package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Rewriter configuration
	Rewriter RewriterConfig `mapstructure:"rewriter"`

	// Pipeline identity, used to fingerprint cached results
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// NLP configuration for the generation capability
	NLP NLPConfig `mapstructure:"nlp"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// RewriterConfig holds the recognized context-rewriting options.
type RewriterConfig struct {
	// BatchSize is the number of rewrite prompts per generation call
	BatchSize int `mapstructure:"batch_size"`
	// MaxNewTokens caps the generated length per prompt
	MaxNewTokens int `mapstructure:"max_new_tokens"`
	// ProcessSeparately selects separate (true) or combined (false) mode
	ProcessSeparately bool `mapstructure:"process_separately"`
	// ConcatenateOriginal selects concatenate (true) or replace (false) policy
	ConcatenateOriginal bool `mapstructure:"concatenate_original"`
	// RewritePromptTemplate overrides the default rewrite prompt; must keep
	// the required placeholders
	RewritePromptTemplate string `mapstructure:"rewrite_prompt_template"`
	// TitleField enables the title-preserving variant when non-empty
	TitleField string `mapstructure:"title_field"`
}

// PipelineConfig identifies the surrounding retrieval pipeline. These values
// are opaque to the rewriter; they only feed the cache fingerprint.
type PipelineConfig struct {
	Dataset      string `mapstructure:"dataset"`
	Retriever    string `mapstructure:"retriever"`
	Reranker     string `mapstructure:"reranker"`
	RetrieveTopK int    `mapstructure:"retrieve_top_k"`
	RerankTopK   int    `mapstructure:"rerank_top_k"`
	GenerateTopK int    `mapstructure:"generate_top_k"`
}

// CacheConfig holds configuration for the context cache.
type CacheConfig struct {
	// Backend selects the store implementation: "file" or "badger"
	Backend string `mapstructure:"backend"`
	// Dir is the on-disk location of the cache
	Dir string `mapstructure:"dir"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// NLPConfig holds configuration for the generation model
type NLPConfig struct {
	Provider    string  `mapstructure:"provider"` // openai or any OpenAI-compatible service
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	// Retry enables exponential-backoff retries around generation calls
	Retry bool `mapstructure:"retry"`
	// TokenEncoding selects the tiktoken encoding for the token-level
	// compression metric; empty disables the token metric
	TokenEncoding string `mapstructure:"token_encoding"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Rewriter defaults
	viper.SetDefault("rewriter.batch_size", 4)
	viper.SetDefault("rewriter.max_new_tokens", 256)
	viper.SetDefault("rewriter.process_separately", true)
	viper.SetDefault("rewriter.concatenate_original", true)

	// Pipeline defaults
	viper.SetDefault("pipeline.retrieve_top_k", 50)
	viper.SetDefault("pipeline.rerank_top_k", 10)
	viper.SetDefault("pipeline.generate_top_k", 5)

	// Cache defaults
	viper.SetDefault("cache.backend", "file")

	// NLP defaults
	viper.SetDefault("nlp.provider", "openai")
	viper.SetDefault("nlp.model", "gpt-4o-mini")
	viper.SetDefault("nlp.temperature", 0.7)
	viper.SetDefault("nlp.retry", true)

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("cache.dir", fmt.Sprintf("%s/.refiner/cache", home))
		viper.SetDefault("telemetry.parquet_path", fmt.Sprintf("%s/.refiner/telemetry", home))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.NLP.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.NLP.BaseURL = baseURL
	}
	if model := os.Getenv("REFINER_MODEL"); model != "" {
		config.NLP.Model = model
	}

	// Cache settings
	if dir := os.Getenv("REFINER_CACHE_DIR"); dir != "" {
		config.Cache.Dir = dir
	}
	if backend := os.Getenv("REFINER_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = backend
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		viper.Set("server.port", port)
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
