package refiner

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a configuration file populated with the default settings, ready to
edit. Existing files are not overwritten unless --force is given.`,
	RunE: runInit,
}

var (
	initPath  string
	initForce bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initPath, "path", "p", ".refiner.yaml", "Where to write the config file")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}

// defaultConfigYAML mirrors the viper defaults so that a scaffolded file and
// a missing file behave the same.
type defaultConfigYAML struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Rewriter struct {
		BatchSize           int    `yaml:"batch_size"`
		MaxNewTokens        int    `yaml:"max_new_tokens"`
		ProcessSeparately   bool   `yaml:"process_separately"`
		ConcatenateOriginal bool   `yaml:"concatenate_original"`
		TitleField          string `yaml:"title_field"`
	} `yaml:"rewriter"`
	Pipeline struct {
		Dataset      string `yaml:"dataset"`
		Retriever    string `yaml:"retriever"`
		Reranker     string `yaml:"reranker"`
		RetrieveTopK int    `yaml:"retrieve_top_k"`
		RerankTopK   int    `yaml:"rerank_top_k"`
		GenerateTopK int    `yaml:"generate_top_k"`
	} `yaml:"pipeline"`
	Cache struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
	} `yaml:"cache"`
	NLP struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		Temperature float32 `yaml:"temperature"`
		Retry       bool    `yaml:"retry"`
	} `yaml:"nlp"`
}

func runInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if _, err := os.Stat(initPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", initPath)
		}
	}

	var cfg defaultConfigYAML
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8080
	cfg.Server.Mode = "debug"
	cfg.Rewriter.BatchSize = 4
	cfg.Rewriter.MaxNewTokens = 256
	cfg.Rewriter.ProcessSeparately = true
	cfg.Rewriter.ConcatenateOriginal = true
	cfg.Pipeline.RetrieveTopK = 50
	cfg.Pipeline.RerankTopK = 10
	cfg.Pipeline.GenerateTopK = 5
	cfg.Cache.Backend = "file"
	cfg.NLP.Provider = "openai"
	cfg.NLP.Model = "gpt-4o-mini"
	cfg.NLP.Temperature = 0.7
	cfg.NLP.Retry = true

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(initPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", initPath, err)
	}

	fmt.Println("Wrote", initPath)
	return nil
}
