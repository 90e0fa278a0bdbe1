package retrieval

import (
	"context"

	"github.com/athapong/surgical-qa/pkg/graph"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// SegmentStore resolves segment IDs back to their text.
type SegmentStore interface {
	GetSegment(ctx context.Context, id string) (*graph.TextSegment, error)
	PutSegment(ctx context.Context, segment *graph.TextSegment) error
}

// ScoredSegment is one retrieval candidate with its score breakdown. A
// segment found only by graph traversal has VectorScore 0, and vice versa.
type ScoredSegment struct {
	Segment     graph.TextSegment `json:"segment"`
	VectorScore float64           `json:"vector_score"`
	GraphScore  float64           `json:"graph_score"`
	FusedScore  float64           `json:"fused_score"`
}

// Result is the outcome of one retrieval. Degraded is set when the knowledge
// graph was unavailable and only the vector stage ran.
type Result struct {
	Segments []ScoredSegment `json:"segments"`
	Entities []graph.Entity  `json:"entities,omitempty"` // query entities that seeded the graph stage
	Degraded bool            `json:"degraded"`
}

// TopScore returns the best fused score, or 0 for an empty result.
func (r *Result) TopScore() float64 {
	if len(r.Segments) == 0 {
		return 0
	}
	return r.Segments[0].FusedScore
}
