package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Spec enumerates everything that makes two refine runs the same
// computation. Two runs with equal Spec and query set share a fingerprint
// and must produce byte-identical results.
type Spec struct {
	// Upstream pipeline identity, opaque to the rewriter
	Dataset      string
	Retriever    string
	Reranker     string // empty means no reranker
	RetrieveTopK int
	RerankTopK   int
	GenerateTopK int

	// Rewriter identity
	Rewriter     string // generation model identity
	Mode         string
	Policy       string
	TemplateHash string
	TitleField   string
	// TokenEncoding keys the entry too: cached metrics embed the token
	// compression figure computed under this encoding.
	TokenEncoding string
}

// QueryKey identifies one query inside the fingerprinted query set.
type QueryKey struct {
	ID   string
	Text string
}

// Fingerprint derives the deterministic cache key for this spec and an
// ordered query set. Field order and separators are part of the persisted
// cache contract.
func (s Spec) Fingerprint(queries []QueryKey) string {
	reranker := s.Reranker
	if reranker == "" {
		reranker = "none"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "dataset=%s\nretriever=%s\nreranker=%s\n", s.Dataset, s.Retriever, reranker)
	fmt.Fprintf(&b, "retrieve_top_k=%d\nrerank_top_k=%d\ngenerate_top_k=%d\n", s.RetrieveTopK, s.RerankTopK, s.GenerateTopK)
	fmt.Fprintf(&b, "rewriter=%s\nmode=%s\npolicy=%s\ntemplate=%s\ntitle_field=%s\n", s.Rewriter, s.Mode, s.Policy, s.TemplateHash, s.TitleField)
	fmt.Fprintf(&b, "token_encoding=%s\n", s.TokenEncoding)
	for _, q := range queries {
		fmt.Fprintf(&b, "q:%s\x1f%s\x1e", q.ID, q.Text)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
