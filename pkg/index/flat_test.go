package index

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()
	idx := NewFlatIndex(3)
	ctx := context.Background()

	err := idx.Add(ctx, "a", []float32{1, 0})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 0, 0, 0}, 5)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatIndex_EmptyIndex(t *testing.T) {
	t.Parallel()
	idx := NewFlatIndex(2)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlatIndex_NormalizationAndOrdering(t *testing.T) {
	t.Parallel()
	idx := NewFlatIndex(2)
	ctx := context.Background()

	// Same direction, wildly different magnitudes: both must score 1.0
	// against the query.
	require.NoError(t, idx.Add(ctx, "small", []float32{0.001, 0}))
	require.NoError(t, idx.Add(ctx, "large", []float32{1000, 0}))
	require.NoError(t, idx.Add(ctx, "orthogonal", []float32{0, 1}))

	hits, err := idx.Search(ctx, []float32{5, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 1.0, hits[1].Score, 1e-6)
	// Equal scores keep insertion order.
	assert.Equal(t, "small", hits[0].ID)
	assert.Equal(t, "large", hits[1].ID)
	assert.Equal(t, "orthogonal", hits[2].ID)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
}

func TestFlatIndex_TopKTruncation(t *testing.T) {
	t.Parallel()
	idx := NewFlatIndex(2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, "b", []float32{0.9, 0.1}))
	require.NoError(t, idx.Add(ctx, "c", []float32{0, 1}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
}

func TestFlatIndex_ReAddReplacesVector(t *testing.T) {
	t.Parallel()
	idx := NewFlatIndex(2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "a", []float32{0, 1}))
	require.NoError(t, idx.Add(ctx, "a", []float32{1, 0}))

	n, err := idx.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestFlatIndex_ScoresBounded(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		dim := rapid.IntRange(1, 8).Draw(rt, "dim")
		idx := NewFlatIndex(dim)
		ctx := context.Background()

		count := rapid.IntRange(1, 20).Draw(rt, "count")
		nonZero := false
		for i := 0; i < count; i++ {
			vec := make([]float32, dim)
			for d := range vec {
				vec[d] = float32(rapid.Float64Range(-10, 10).Draw(rt, "v"))
				if vec[d] != 0 {
					nonZero = true
				}
			}
			require.NoError(rt, idx.Add(ctx, string(rune('a'+i)), vec))
		}
		if !nonZero {
			rt.Skip("all-zero corpus")
		}

		query := make([]float32, dim)
		query[0] = 1
		hits, err := idx.Search(ctx, query, count)
		require.NoError(rt, err)

		for i, hit := range hits {
			if math.Abs(hit.Score) > 1+1e-6 {
				rt.Fatalf("score out of bounds: %f", hit.Score)
			}
			if i > 0 && hits[i-1].Score < hit.Score {
				rt.Fatalf("results not sorted: %f before %f", hits[i-1].Score, hit.Score)
			}
		}
	})
}
