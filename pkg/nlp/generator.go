package nlp

import (
	"context"
)

// Generator defines the interface for the text generation capability used by
// the refine pipeline. A Generator receives an ordered batch of prompts and
// must return one generated text per prompt, in the same order.
type Generator interface {
	// Generate produces one completion per prompt. maxNewTokens caps the
	// generated length per prompt and is passed through uninterpreted.
	Generate(ctx context.Context, prompts []string, maxNewTokens int) ([]string, error)

	// Identity returns a stable identifier for the underlying model, used
	// when fingerprinting cached results.
	Identity() string

	// Close cleans up any resources.
	Close() error
}
