// Package prompt constructs rewrite instructions for the generation
// capability. Templates are plain strings with named placeholders that are
// validated once at construction, so a malformed template fails the pipeline
// setup instead of a generation call.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Template placeholders. A rewrite template must contain PlaceholderQuery and
// PlaceholderPassage; a title-preserving template must contain
// PlaceholderQuery, PlaceholderTitle and PlaceholderContent.
const (
	PlaceholderQuery   = "{query}"
	PlaceholderPassage = "{passage}"
	PlaceholderTitle   = "{title}"
	PlaceholderContent = "{content}"
)

// ErrMissingPlaceholder indicates a custom template lacks a required placeholder
var ErrMissingPlaceholder = errors.New("template is missing required placeholder")

// DefaultTemplate is the default rewrite prompt, filled with the query and a
// single passage (separate mode) or the serialized passage list (combined mode).
const DefaultTemplate = `Given the following query and passage, rewrite the passage to:
1. Remove redundant information
2. Highlight information relevant to the query
3. Integrate any relevant knowledge to make it more coherent
4. Keep the passage concise and focused

Query: {query}

Original Passage: {passage}

Rewritten Passage:`

// DefaultTitleTemplate is the default prompt for the title-preserving
// variant. Only the content is rewritten; the title is reattached verbatim
// by the composer and never passes through the model output.
const DefaultTitleTemplate = `Given the following query and passage with its title, rewrite ONLY the passage content to:
1. Remove redundant information
2. Highlight information relevant to the query
3. Integrate any relevant knowledge to make it more coherent
4. Keep the passage concise and focused

Do NOT include the title in your response, only output the rewritten content.

Query: {query}

Title: {title}

Original Content: {content}

Rewritten Content:`

// Builder fills rewrite templates with queries and passages.
type Builder struct {
	template string
	titled   bool
}

// NewBuilder creates a Builder for the standard rewrite template. An empty
// template selects DefaultTemplate. Custom templates are accepted verbatim as
// long as they contain the {query} and {passage} placeholders.
func NewBuilder(template string) (*Builder, error) {
	if template == "" {
		template = DefaultTemplate
	}
	for _, ph := range []string{PlaceholderQuery, PlaceholderPassage} {
		if !strings.Contains(template, ph) {
			return nil, fmt.Errorf("%w: %s", ErrMissingPlaceholder, ph)
		}
	}
	return &Builder{template: template}, nil
}

// NewTitleBuilder creates a Builder for the title-preserving template. An
// empty template selects DefaultTitleTemplate.
func NewTitleBuilder(template string) (*Builder, error) {
	if template == "" {
		template = DefaultTitleTemplate
	}
	for _, ph := range []string{PlaceholderQuery, PlaceholderTitle, PlaceholderContent} {
		if !strings.Contains(template, ph) {
			return nil, fmt.Errorf("%w: %s", ErrMissingPlaceholder, ph)
		}
	}
	return &Builder{template: template, titled: true}, nil
}

// Titled reports whether this builder uses the title-preserving template.
func (b *Builder) Titled() bool {
	return b.titled
}

// Build fills the template with a query and a single passage.
func (b *Builder) Build(query, passage string) string {
	r := strings.NewReplacer(PlaceholderQuery, query, PlaceholderPassage, passage)
	return r.Replace(b.template)
}

// BuildCombined fills the template once for a whole query, serializing all
// non-empty passages as an enumerated list in the passage slot.
func (b *Builder) BuildCombined(query string, passages []string) string {
	var parts []string
	for i, p := range passages {
		if strings.TrimSpace(p) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Passage %d: %s", i+1, p))
	}
	return b.Build(query, strings.Join(parts, "\n\n"))
}

// BuildTitled fills the title-preserving template with a query, a title and
// the passage content.
func (b *Builder) BuildTitled(query, title, content string) string {
	r := strings.NewReplacer(
		PlaceholderQuery, query,
		PlaceholderTitle, title,
		PlaceholderContent, content,
	)
	return r.Replace(b.template)
}

// Hash returns a stable short hash of the template text, used when
// fingerprinting cached results.
func (b *Builder) Hash() string {
	sum := sha256.Sum256([]byte(b.template))
	return hex.EncodeToString(sum[:])[:12]
}

// SplitTitleContent splits a passage into title (first sentence) and content
// (the rest). Used when the title-preserving variant is active but the
// passage carries no explicit title.
func SplitTitleContent(passage string) (title, content string) {
	parts := strings.SplitN(passage, ". ", 2)
	if len(parts) == 2 {
		return parts[0] + ".", parts[1]
	}
	return "", passage
}
