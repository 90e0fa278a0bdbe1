package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor emits a fixed extraction for every document.
type fakeProcessor struct {
	entities  []Entity
	relations []Relationship
	err       error
}

func (p fakeProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*Document, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &Document{Entities: p.entities, Relations: p.relations}, nil
}

func (p fakeProcessor) SupportedTypes() []string { return []string{"text/plain"} }

func TestPipelineProcess(t *testing.T) {
	t.Parallel()
	p := NewPipeline()
	p.AddProcessor(fakeProcessor{
		entities: []Entity{{Type: EntityProcedure, Name: "appendectomy"}},
		relations: []Relationship{
			{Type: RelationInvolves, From: "appendectomy", To: "appendix"},
		},
	})

	doc := &Document{ID: "doc-1", Content: "An appendectomy removes the appendix."}
	require.NoError(t, p.Process(context.Background(), doc))

	assert.Len(t, doc.Entities, 1)
	assert.Len(t, doc.Relations, 1)
	assert.False(t, doc.ProcessedAt.IsZero())
}

func TestPipelineProcess_NoProcessors(t *testing.T) {
	t.Parallel()
	p := NewPipeline()
	err := p.Process(context.Background(), &Document{ID: "doc-1"})
	assert.Error(t, err)
}

func TestPipelineProcess_NilDocument(t *testing.T) {
	t.Parallel()
	p := NewPipeline()
	p.AddProcessor(fakeProcessor{})
	assert.Error(t, p.Process(context.Background(), nil))
}

func TestBatchProcess_PropagatesFailure(t *testing.T) {
	t.Parallel()
	p := NewPipeline()
	p.AddProcessor(fakeProcessor{err: fmt.Errorf("malformed document")})

	err := p.BatchProcess(context.Background(), []*Document{{ID: "doc-1", Content: "x"}})
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()

	doc := &Document{
		ID:      "doc-1",
		Content: "Cholecystectomy may cause bile leak.",
		Segments: []TextSegment{
			{ID: "seg-1", DocumentID: "doc-1", Text: "Cholecystectomy may cause bile leak."},
			{ID: "seg-2", DocumentID: "doc-1", Text: "Unrelated scheduling note."},
		},
		Entities: []Entity{
			{Type: EntityProcedure, Name: "cholecystectomy"},
			{Type: EntityComplication, Name: "bile leak"},
		},
		Relations: []Relationship{
			{Type: RelationMayCause, From: "cholecystectomy", To: "bile leak", Confidence: 0.7},
		},
	}
	require.NoError(t, Ingest(ctx, kg, doc))

	exists, err := kg.RelationshipExists(ctx, "cholecystectomy", RelationMayCause, "bile leak")
	require.NoError(t, err)
	assert.True(t, exists)

	// Entities link only to segments that mention them.
	matches, err := kg.FindEntities(ctx, "bile leak")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"seg-1"}, matches[0].Segments)
	assert.Equal(t, []string{"doc-1"}, matches[0].Sources)
}

func TestIngest_SkipsUnresolvableRelations(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()

	doc := &Document{
		ID:       "doc-1",
		Entities: []Entity{{Type: EntityProcedure, Name: "cholecystectomy"}},
		Relations: []Relationship{
			// The object was never extracted as an entity; the edge is dropped.
			{Type: RelationMayCause, From: "cholecystectomy", To: "bile leak"},
		},
	}
	require.NoError(t, Ingest(ctx, kg, doc))

	stats, err := kg.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 0, stats.Relationships)
}
