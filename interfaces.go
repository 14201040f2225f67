package refiner

import "context"

// Refiner is the interface the generation stage consumes. The returned
// contexts are ordered passage texts ready to be inserted into the
// generation prompt exactly as any other passage list; no further formatting
// happens on the consumer side.
type Refiner interface {
	// Refine rewrites the passages of each query according to the
	// configured mode and policy, serving cached results when the run
	// fingerprint matches a previous computation.
	Refine(ctx context.Context, queries []Query) (*Result, error)

	// Close releases the generator and cache store.
	Close() error
}

// compile-time interface check
var _ Refiner = (*Client)(nil)
