// Package metrics computes compression statistics over processed batches.
package metrics

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Metrics holds the compression statistics of one processed batch.
type Metrics struct {
	// CompressionPct is the percentage reduction in aggregate character
	// length from original to final text. Negative values mean the output
	// grew (expected under concatenation) and are not an error.
	CompressionPct float64 `json:"compression_pct"`
	// OriginalChars is the summed character length of the original texts
	OriginalChars int `json:"original_chars"`
	// FinalChars is the summed character length of the final texts
	FinalChars int `json:"final_chars"`
	// TokenCompressionPct is the same ratio over tiktoken token counts,
	// present only when a token encoding is configured
	TokenCompressionPct *float64 `json:"token_compression_pct,omitempty"`
	// DegradedPrompts counts prompts that fell back to original text after
	// a generation failure
	DegradedPrompts int `json:"degraded_prompts,omitempty"`
}

// Collector computes batch compression metrics. The character-level ratio is
// the contract metric; the token-level ratio is a supplementary statistic.
type Collector struct {
	enc *tiktoken.Tiktoken
}

// NewCollector creates a Collector. encoding names a tiktoken encoding
// (e.g. "cl100k_base") for the supplementary token metric; empty disables it.
func NewCollector(encoding string) (*Collector, error) {
	c := &Collector{}
	if encoding != "" {
		enc, err := tiktoken.GetEncoding(encoding)
		if err != nil {
			return nil, fmt.Errorf("unknown token encoding %q: %w", encoding, err)
		}
		c.enc = enc
	}
	return c, nil
}

// Compression returns the aggregate character compression percentage across
// a batch. Lengths are summed before dividing, so short passages do not skew
// the ratio. Returns 0 when the originals are empty.
func Compression(originals, finals []string) float64 {
	origLen := totalLen(originals)
	if origLen == 0 {
		return 0
	}
	finalLen := totalLen(finals)
	return float64(origLen-finalLen) / float64(origLen) * 100
}

// Collect computes the full metrics for a batch of original and final texts.
func (c *Collector) Collect(originals, finals []string) Metrics {
	m := Metrics{
		CompressionPct: Compression(originals, finals),
		OriginalChars:  totalLen(originals),
		FinalChars:     totalLen(finals),
	}

	if c.enc != nil {
		origTokens := c.totalTokens(originals)
		if origTokens > 0 {
			finalTokens := c.totalTokens(finals)
			pct := float64(origTokens-finalTokens) / float64(origTokens) * 100
			m.TokenCompressionPct = &pct
		} else {
			zero := 0.0
			m.TokenCompressionPct = &zero
		}
	}

	return m
}

func (c *Collector) totalTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += len(c.enc.Encode(t, nil, nil))
	}
	return total
}

// totalLen sums character (code point) counts, so multibyte text compresses
// the same as ASCII.
func totalLen(texts []string) int {
	total := 0
	for _, t := range texts {
		total += utf8.RuneCountInString(t)
	}
	return total
}
