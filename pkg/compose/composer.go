// Package compose merges original passage text with generated rewrites
// according to the configured mode and policy.
package compose

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the rewrite granularity.
type Mode string

const (
	// ModeSeparate rewrites each passage on its own.
	ModeSeparate Mode = "separate"
	// ModeCombined rewrites all passages of a query in one prompt.
	ModeCombined Mode = "combined"
)

// Policy selects what the composed output retains.
type Policy string

const (
	// PolicyConcatenate keeps the original and appends the rewrite.
	PolicyConcatenate Policy = "concatenate"
	// PolicyReplace keeps only the rewrite.
	PolicyReplace Policy = "replace"
)

// Literal tags embedded in composed output. Downstream prompt construction
// may parse these, so changing them is a breaking interface change.
const (
	// RefinedTag labels the rewritten segment.
	RefinedTag = "Refined version:"
	// DocumentTagFormat labels each original passage in combined output.
	DocumentTagFormat = "Document %d:"
	// Separator joins the original and rewritten segments.
	Separator = "\n\n"
)

// ErrInvalidMode indicates an unrecognized mode value
var ErrInvalidMode = errors.New("invalid compose mode")

// ErrInvalidPolicy indicates an unrecognized policy value
var ErrInvalidPolicy = errors.New("invalid compose policy")

// Composer applies the concatenation or replacement policy to generated
// rewrites.
type Composer struct {
	mode   Mode
	policy Policy
}

// New creates a Composer. Mode and policy are validated here, at setup time.
func New(mode Mode, policy Policy) (*Composer, error) {
	switch mode {
	case ModeSeparate, ModeCombined:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	switch policy {
	case PolicyConcatenate, PolicyReplace:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}
	return &Composer{mode: mode, policy: policy}, nil
}

// Mode returns the configured mode.
func (c *Composer) Mode() Mode { return c.mode }

// Policy returns the configured policy.
func (c *Composer) Policy() Policy { return c.policy }

// ComposeOne merges a single original passage with its generated rewrite.
// A whitespace-only rewrite falls back to the original untouched, so output
// cardinality never depends on model behavior.
func (c *Composer) ComposeOne(original, generated string) string {
	generated = strings.TrimSpace(generated)
	if generated == "" {
		return original
	}
	if c.policy == PolicyConcatenate {
		return original + Separator + RefinedTag + " " + generated
	}
	return generated
}

// ComposeCombined merges the full original passage list of a query with the
// single combined rewrite. The result is a list with exactly one element:
// under concatenation, all originals tagged "Document k:" followed by one
// refined block; under replacement, the rewrite alone. A whitespace-only
// rewrite keeps the original passages as separate entries.
func (c *Composer) ComposeCombined(originals []string, generated string) []string {
	generated = strings.TrimSpace(generated)
	if generated == "" {
		out := make([]string, len(originals))
		copy(out, originals)
		return out
	}

	if c.policy == PolicyReplace {
		return []string{generated}
	}

	var parts []string
	for i, orig := range originals {
		if strings.TrimSpace(orig) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(DocumentTagFormat+" %s", i+1, orig))
	}
	combined := strings.Join(parts, Separator) + Separator + RefinedTag + "\n" + generated
	return []string{combined}
}

// ReattachTitle prepends a verbatim title onto a generated rewrite, used by
// the title-preserving variant before the policy is applied.
func ReattachTitle(title, generated string) string {
	generated = strings.TrimSpace(generated)
	if generated == "" {
		return ""
	}
	if title == "" {
		return generated
	}
	return title + " " + generated
}
