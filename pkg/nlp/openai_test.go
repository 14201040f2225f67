package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIGenerator(t *testing.T) {
	t.Run("Default model without base URL", func(t *testing.T) {
		gen, err := NewOpenAIGenerator("sk-test", Config{})
		require.NoError(t, err)
		assert.NotEmpty(t, gen.Identity())
	})

	t.Run("Configured model becomes the identity", func(t *testing.T) {
		gen, err := NewOpenAIGenerator("sk-test", Config{Model: "gpt-4o-mini"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", gen.Identity())
	})

	t.Run("Compatible service with custom base URL", func(t *testing.T) {
		gen, err := NewOpenAIGenerator("", Config{
			Model:   "llama-3-8b",
			BaseURL: "http://localhost:8000/v1",
		})
		require.NoError(t, err)
		assert.Equal(t, "llama-3-8b", gen.Identity())
	})

	t.Run("Invalid base URL rejected", func(t *testing.T) {
		_, err := NewOpenAIGenerator("", Config{BaseURL: "localhost:8000"})
		assert.Error(t, err)

		_, err = NewOpenAIGenerator("", Config{BaseURL: "ftp://example.com"})
		assert.Error(t, err)
	})

	t.Run("Close is a no-op", func(t *testing.T) {
		gen, err := NewOpenAIGenerator("sk-test", Config{})
		require.NoError(t, err)
		assert.NoError(t, gen.Close())
	})
}

func TestValidateBaseURL(t *testing.T) {
	valid := []string{
		"http://localhost:8000",
		"https://api.together.xyz/v1",
		"http://10.0.0.5:11434",
	}
	for _, u := range valid {
		assert.NoError(t, validateBaseURL(u), u)
	}

	invalid := []string{
		"",
		"localhost:8000",
		"ftp://example.com",
	}
	for _, u := range invalid {
		assert.Error(t, validateBaseURL(u), u)
	}
}

func TestHasAPIPath(t *testing.T) {
	assert.True(t, hasAPIPath("http://localhost:8000/v1"))
	assert.True(t, hasAPIPath("http://localhost:8000/api/"))
	assert.False(t, hasAPIPath("http://localhost:8000"))
	assert.False(t, hasAPIPath("http://localhost:8000/custom"))
}
