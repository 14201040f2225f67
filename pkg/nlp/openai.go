package nlp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sashabaranov/go-openai"
)

// Config holds configuration for generator clients.
type Config struct {
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"` // Custom base URL for OpenAI-compatible services
}

// OpenAIGenerator implements the Generator interface on top of OpenAI chat
// completions. Supports OpenAI-compatible services through custom BaseURL
// configuration.
type OpenAIGenerator struct {
	client *openai.Client
	config Config
}

// NewOpenAIGenerator creates a new OpenAI-backed generator.
func NewOpenAIGenerator(apiKey string, config Config) (*OpenAIGenerator, error) {
	var client *openai.Client

	if config.BaseURL != "" {
		if err := validateBaseURL(config.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}

		// Use dummy API key if none provided (some services don't require authentication)
		if apiKey == "" {
			apiKey = "dummy-key"
		}

		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = config.BaseURL

		// Many services expect "/v1" to be appended to the base URL
		if !hasAPIPath(config.BaseURL) {
			clientConfig.BaseURL = config.BaseURL + "/v1"
		}

		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(apiKey)
	}

	if config.Model == "" {
		if config.BaseURL != "" {
			config.Model = "gpt-3.5-turbo" // Default fallback for OpenAI-compatible services
		} else {
			config.Model = openai.GPT4o
		}
	}

	return &OpenAIGenerator{
		client: client,
		config: config,
	}, nil
}

// Generate sends one chat completion request per prompt and returns the
// completions in prompt order. The batch fails as a whole on the first
// request error so the caller can apply its fallback to every slot.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompts []string, maxNewTokens int) ([]string, error) {
	texts := make([]string, 0, len(prompts))

	for i, prompt := range prompts {
		req := openai.ChatCompletionRequest{
			Model: g.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens: maxNewTokens,
		}
		if g.config.Temperature != nil {
			req.Temperature = *g.config.Temperature
		}
		if g.config.TopP != nil {
			req.TopP = *g.config.TopP
		}
		if len(g.config.Stop) > 0 {
			req.Stop = g.config.Stop
		}

		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("chat completion failed for prompt %d: %w", i, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("prompt %d: %w", i, ErrEmptyResponse)
		}

		texts = append(texts, resp.Choices[0].Message.Content)
	}

	return texts, nil
}

// Identity returns the configured model name.
func (g *OpenAIGenerator) Identity() string {
	return g.config.Model
}

// Close cleans up resources (no-op for OpenAI client).
func (g *OpenAIGenerator) Close() error {
	return nil
}

// validateBaseURL validates the base URL format.
func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("baseURL cannot be empty")
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL format: %w", err)
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("baseURL must include scheme (http:// or https://)")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("baseURL must use http:// or https:// scheme")
	}

	return nil
}

// hasAPIPath checks if the base URL already includes an API path component.
func hasAPIPath(baseURL string) bool {
	commonPaths := []string{"/v1", "/api", "/v1/", "/api/"}
	for _, path := range commonPaths {
		if len(baseURL) >= len(path) && baseURL[len(baseURL)-len(path):] == path {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ Generator = (*OpenAIGenerator)(nil)
