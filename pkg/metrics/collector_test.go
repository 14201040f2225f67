package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompression(t *testing.T) {
	t.Run("Positive compression", func(t *testing.T) {
		// 20 chars down to 10 is a 50% reduction.
		pct := Compression([]string{"aaaaaaaaaa", "bbbbbbbbbb"}, []string{"cccccccccc"})
		assert.InDelta(t, 50.0, pct, 1e-9)
	})

	t.Run("Negative when output grows", func(t *testing.T) {
		pct := Compression([]string{"short"}, []string{"a much longer final text"})
		assert.Less(t, pct, 0.0)
	})

	t.Run("Zero original length guards division", func(t *testing.T) {
		assert.Zero(t, Compression(nil, []string{"anything"}))
		assert.Zero(t, Compression([]string{"", ""}, []string{"anything"}))
	})

	t.Run("Counts code points, not bytes", func(t *testing.T) {
		// Five two-byte runes down to one is an 80% reduction.
		pct := Compression([]string{"ééééé"}, []string{"é"})
		assert.InDelta(t, 80.0, pct, 1e-9)
	})

	t.Run("Aggregate before dividing", func(t *testing.T) {
		// Per-passage ratios would be -100% and +50%; the aggregate is 25%.
		pct := Compression([]string{"ab", "cccccc"}, []string{"abcd", "cc"})
		assert.InDelta(t, 25.0, pct, 1e-9)
	})
}

func TestCollector(t *testing.T) {
	t.Run("Character metrics without token encoding", func(t *testing.T) {
		c, err := NewCollector("")
		require.NoError(t, err)

		m := c.Collect([]string{"aaaa"}, []string{"aa"})
		assert.InDelta(t, 50.0, m.CompressionPct, 1e-9)
		assert.Equal(t, 4, m.OriginalChars)
		assert.Equal(t, 2, m.FinalChars)
		assert.Nil(t, m.TokenCompressionPct)
	})

	t.Run("Character counts are rune counts", func(t *testing.T) {
		c, err := NewCollector("")
		require.NoError(t, err)

		m := c.Collect([]string{"héllo"}, []string{"hé"})
		assert.Equal(t, 5, m.OriginalChars)
		assert.Equal(t, 2, m.FinalChars)
	})

	t.Run("Token metric with cl100k_base", func(t *testing.T) {
		c, err := NewCollector("cl100k_base")
		if err != nil {
			t.Skipf("cl100k_base unavailable: %v", err)
		}

		m := c.Collect(
			[]string{"The quick brown fox jumps over the lazy dog."},
			[]string{"Quick fox."},
		)
		require.NotNil(t, m.TokenCompressionPct)
		assert.Greater(t, *m.TokenCompressionPct, 0.0)
	})

	t.Run("Token metric zero on empty originals", func(t *testing.T) {
		c, err := NewCollector("cl100k_base")
		if err != nil {
			t.Skipf("cl100k_base unavailable: %v", err)
		}

		m := c.Collect(nil, []string{"something"})
		require.NotNil(t, m.TokenCompressionPct)
		assert.Zero(t, *m.TokenCompressionPct)
	})

	t.Run("Unknown encoding fails construction", func(t *testing.T) {
		_, err := NewCollector("no_such_encoding")
		assert.Error(t, err)
	})
}
