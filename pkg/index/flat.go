package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// FlatIndex is an exact inner-product index. Every query scans every stored
// vector; there is no approximation and no training step. Vectors are
// L2-normalized at insertion so the inner product equals cosine similarity.
type FlatIndex struct {
	dim     int
	ids     []string // insertion order, the tie-break for equal scores
	vectors map[string][]float32
	mutex   sync.RWMutex
}

// NewFlatIndex creates a flat index for vectors of the given dimension.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{
		dim:     dim,
		vectors: make(map[string][]float32),
	}
}

// Add stores a normalized copy of the vector. Re-adding an existing ID
// replaces the vector but keeps its original position in the tie-break order.
func (idx *FlatIndex) Add(ctx context.Context, id string, vector []float32) error {
	if len(vector) != idx.dim {
		return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), idx.dim)
	}

	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	if _, exists := idx.vectors[id]; !exists {
		idx.ids = append(idx.ids, id)
	}
	idx.vectors[id] = normalize(vector)
	return nil
}

// Search scans all stored vectors and returns the top k by inner product.
// Ties break by insertion order so results are stable across runs.
func (idx *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(query), idx.dim)
	}

	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	if len(idx.ids) == 0 || k <= 0 {
		return []Hit{}, nil
	}

	q := normalize(query)
	hits := make([]Hit, 0, len(idx.ids))
	for _, id := range idx.ids {
		hits = append(hits, Hit{ID: id, Score: dot(q, idx.vectors[id])})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len reports the number of stored vectors.
func (idx *FlatIndex) Len(ctx context.Context) (int, error) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return len(idx.ids), nil
}

// normalize returns an L2-normalized copy. Zero vectors pass through
// unchanged so they simply never score.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
