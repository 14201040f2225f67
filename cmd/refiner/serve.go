package refiner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundprediction/refiner"
	"github.com/soundprediction/refiner/pkg/config"
	"github.com/soundprediction/refiner/pkg/logger"
	"github.com/soundprediction/refiner/pkg/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the refiner HTTP server",
	Long: `Start the refiner HTTP server to provide REST API access to context
refinement.

The server provides endpoints for:
- Refining retrieved contexts (POST /api/v1/refine)
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServe,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server-specific flags
	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// NLP flags
	serveCmd.Flags().String("nlp-model", "gpt-4o-mini", "NLP model")
	serveCmd.Flags().String("nlp-api-key", "", "NLP API key")
	serveCmd.Flags().String("nlp-base-url", "", "NLP base URL")
	serveCmd.Flags().Float32("nlp-temperature", 0.7, "NLP temperature")

	// Rewriter flags
	serveCmd.Flags().Int("batch-size", 4, "Rewrite prompts per generation call")
	serveCmd.Flags().Int("max-new-tokens", 256, "Generated tokens per prompt")
	serveCmd.Flags().Bool("combined", false, "Rewrite all passages of a query in one prompt")
	serveCmd.Flags().Bool("replace", false, "Replace originals instead of appending the rewrite")
	serveCmd.Flags().String("title-field", "", "Preserve passage titles stored under this field")

	// Cache flags
	serveCmd.Flags().String("cache-backend", "file", "Cache backend (file, badger)")
	serveCmd.Flags().String("cache-dir", "", "Cache directory")

	// Telemetry flags
	serveCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for telemetry (warnings and degraded batches)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	log, telemetryHandler, err := logger.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(log)
	if telemetryHandler != nil {
		defer telemetryHandler.Flush()
	}

	// Initialize the refiner
	fmt.Println("Initializing refiner...")
	client, err := refiner.FromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize refiner: %w", err)
	}
	defer client.Close()

	// Create and setup server
	srv := server.New(cfg, client)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Shutdown server
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// NLP flags
	if cmd.Flags().Changed("nlp-model") {
		cfg.NLP.Model, _ = cmd.Flags().GetString("nlp-model")
	}
	if cmd.Flags().Changed("nlp-api-key") {
		cfg.NLP.APIKey, _ = cmd.Flags().GetString("nlp-api-key")
	}
	if cmd.Flags().Changed("nlp-base-url") {
		cfg.NLP.BaseURL, _ = cmd.Flags().GetString("nlp-base-url")
	}
	if cmd.Flags().Changed("nlp-temperature") {
		cfg.NLP.Temperature, _ = cmd.Flags().GetFloat32("nlp-temperature")
	}

	// Rewriter flags
	if cmd.Flags().Changed("batch-size") {
		cfg.Rewriter.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("max-new-tokens") {
		cfg.Rewriter.MaxNewTokens, _ = cmd.Flags().GetInt("max-new-tokens")
	}
	if cmd.Flags().Changed("combined") {
		combined, _ := cmd.Flags().GetBool("combined")
		cfg.Rewriter.ProcessSeparately = !combined
	}
	if cmd.Flags().Changed("replace") {
		replace, _ := cmd.Flags().GetBool("replace")
		cfg.Rewriter.ConcatenateOriginal = !replace
	}
	if cmd.Flags().Changed("title-field") {
		cfg.Rewriter.TitleField, _ = cmd.Flags().GetString("title-field")
	}

	// Cache flags
	if cmd.Flags().Changed("cache-backend") {
		cfg.Cache.Backend, _ = cmd.Flags().GetString("cache-backend")
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.Cache.Dir, _ = cmd.Flags().GetString("cache-dir")
	}

	// Telemetry flags
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}
}
