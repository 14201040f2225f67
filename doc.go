// Package refiner is a context-refinement stage for retrieval-augmented
// generation pipelines. Given a query and its retrieved passages, it uses
// the answer-generating model itself to rewrite each passage (or the whole
// passage list) for relevance and coherence, optionally keeping the original
// text alongside the rewrite, and caches the composed results on disk so
// repeated pipeline runs are deterministic and cheap.
//
// The pipeline never aborts because a rewrite failed: a failed generation
// batch degrades to the original passage text and the run continues.
package refiner
