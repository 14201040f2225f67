package refiner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/soundprediction/refiner"
	"github.com/soundprediction/refiner/pkg/config"
	"github.com/soundprediction/refiner/pkg/logger"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <queries.json>",
	Short: "Refine a batch of queries from a JSON file",
	Long: `Run one refinement pass over queries read from a JSON file and print the
composed contexts as JSON.

The input file holds a list of queries, each with its retrieved passages:

  [
    {
      "id": "q1",
      "text": "What is the capital of France?",
      "passages": [{"title": "Paris", "text": "Paris is the capital ..."}]
    }
  ]

Results are cached under a fingerprint of the pipeline identity and query
set; a second run with the same inputs is served from the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

var runOutputPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "Write results to this file instead of stdout")
}

// queryInput mirrors the wire shape of one query in the input file.
type queryInput struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Passages []struct {
		Title string `json:"title,omitempty"`
		Text  string `json:"text"`
	} `json:"passages"`
}

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, telemetryHandler, err := logger.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(log)
	if telemetryHandler != nil {
		defer telemetryHandler.Flush()
	}

	queries, err := readQueries(args[0])
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries in %s", args[0])
	}

	client, err := refiner.FromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize refiner: %w", err)
	}
	defer client.Close()

	result, err := client.Refine(cmd.Context(), queries)
	if err != nil {
		return fmt.Errorf("refinement failed: %w", err)
	}

	log.Info("refinement complete",
		"queries", len(queries),
		"fingerprint", result.Fingerprint,
		"from_cache", result.FromCache,
		"compression_pct", result.Metrics.CompressionPct)

	return writeResult(result)
}

func readQueries(path string) ([]refiner.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var inputs []queryInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	queries := make([]refiner.Query, len(inputs))
	for i, in := range inputs {
		passages := make([]refiner.Passage, len(in.Passages))
		for j, p := range in.Passages {
			passages[j] = refiner.Passage{Title: p.Title, Text: p.Text}
		}
		queries[i] = refiner.Query{ID: in.ID, Text: in.Text, Passages: passages}
	}
	return queries, nil
}

func writeResult(result *refiner.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if runOutputPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(runOutputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", runOutputPath, err)
	}
	fmt.Fprintln(os.Stderr, "Results written to", runOutputPath)
	return nil
}
