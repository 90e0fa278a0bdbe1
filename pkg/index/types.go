package index

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector's dimensionality does not
// match the index.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a single search result. Score is the inner product between the
// normalized query and the stored vector, so 1.0 means identical direction.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// VectorIndex stores embedding vectors keyed by segment ID and answers
// nearest-neighbor queries by inner product.
type VectorIndex interface {
	// Add stores a vector under the given ID, replacing any previous vector
	// with the same ID. Vectors are L2-normalized on the way in.
	Add(ctx context.Context, id string, vector []float32) error

	// Search returns up to k hits ordered by descending score. An empty
	// index yields an empty slice, not an error.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Len reports the number of stored vectors.
	Len(ctx context.Context) (int, error)
}
