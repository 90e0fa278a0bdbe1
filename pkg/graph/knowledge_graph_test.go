package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertEntity_MergesOnNameAndAlias(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()

	id1, err := kg.UpsertEntity(ctx, &Entity{
		Type:    EntityProcedure,
		Name:    "Cholecystectomy",
		Aliases: []string{"lap chole"},
	})
	require.NoError(t, err)

	// Same canonical name, different case.
	id2, err := kg.UpsertEntity(ctx, &Entity{Type: EntityProcedure, Name: "CHOLECYSTECTOMY"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Known alias resolves to the same node.
	id3, err := kg.UpsertEntity(ctx, &Entity{Type: EntityProcedure, Name: "lap chole"})
	require.NoError(t, err)
	assert.Equal(t, id1, id3)

	stats, err := kg.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entities)
}

func TestUpsertEntity_RejectsUnknownType(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()

	_, err := kg.UpsertEntity(context.Background(), &Entity{Type: "Disease", Name: "cholecystitis"})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestUpsertEntity_SameNameDifferentTypes(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()

	id1, err := kg.UpsertEntity(ctx, &Entity{Type: EntityComplication, Name: "hernia"})
	require.NoError(t, err)
	id2, err := kg.UpsertEntity(ctx, &Entity{Type: EntityProcedure, Name: "hernia"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestUpsertRelationship_SkipsMissingEndpoint(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()

	id, err := kg.UpsertEntity(ctx, &Entity{Type: EntityProcedure, Name: "appendectomy"})
	require.NoError(t, err)

	err = kg.UpsertRelationship(ctx, &Relationship{
		Type: RelationInvolves,
		From: id,
		To:   "nonexistent",
	})
	require.NoError(t, err)

	stats, err := kg.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Relationships)
}

func TestFindEntities_WordBoundaries(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()

	_, err := kg.UpsertEntity(ctx, &Entity{Type: EntityAnatomy, Name: "colon"})
	require.NoError(t, err)

	found, err := kg.FindEntities(ctx, "resection of the colon")
	require.NoError(t, err)
	require.Len(t, found, 1)

	// "colon" inside "semicolonic" must not match.
	found, err = kg.FindEntities(ctx, "a semicolonic observation")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindEntities_MatchesAlias(t *testing.T) {
	t.Parallel()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()

	_, err := kg.UpsertEntity(ctx, &Entity{
		Type:    EntityProcedure,
		Name:    "cholecystectomy",
		Aliases: []string{"lap chole"},
	})
	require.NoError(t, err)

	found, err := kg.FindEntities(ctx, "scheduled for a Lap Chole tomorrow")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "cholecystectomy", found[0].Name)
}

func buildTestGraph(t *testing.T) (*MemoryKnowledgeGraph, map[string]string) {
	t.Helper()
	kg := NewMemoryKnowledgeGraph()
	ctx := context.Background()
	ids := make(map[string]string)

	entities := []Entity{
		{Type: EntityProcedure, Name: "cholecystectomy"},
		{Type: EntityAnatomy, Name: "gallbladder"},
		{Type: EntityComplication, Name: "bile leak"},
		{Type: EntityInstrument, Name: "laparoscope"},
	}
	for _, e := range entities {
		id, err := kg.UpsertEntity(ctx, &e)
		require.NoError(t, err)
		ids[e.Name] = id
	}

	rels := []Relationship{
		{Type: RelationInvolves, From: ids["cholecystectomy"], To: ids["gallbladder"], Confidence: 0.9},
		{Type: RelationMayCause, From: ids["cholecystectomy"], To: ids["bile leak"], Confidence: 0.9},
		{Type: RelationRequires, From: ids["cholecystectomy"], To: ids["laparoscope"], Confidence: 0.9},
	}
	for _, r := range rels {
		require.NoError(t, kg.UpsertRelationship(ctx, &r))
	}
	return kg, ids
}

func TestTraverse_HopDistances(t *testing.T) {
	t.Parallel()
	kg, ids := buildTestGraph(t)
	ctx := context.Background()

	reached, err := kg.Traverse(ctx, []string{ids["gallbladder"]}, 2, true)
	require.NoError(t, err)

	hops := make(map[string]int)
	for _, r := range reached {
		hops[r.Entity.Name] = r.Hops
	}
	assert.Equal(t, 0, hops["gallbladder"])
	assert.Equal(t, 1, hops["cholecystectomy"])
	assert.Equal(t, 2, hops["bile leak"])
	assert.Equal(t, 2, hops["laparoscope"])
}

func TestTraverse_RespectsMaxHops(t *testing.T) {
	t.Parallel()
	kg, ids := buildTestGraph(t)

	reached, err := kg.Traverse(context.Background(), []string{ids["gallbladder"]}, 1, true)
	require.NoError(t, err)
	assert.Len(t, reached, 2) // seed plus cholecystectomy
}

func TestTraverse_DirectedIgnoresIncomingEdges(t *testing.T) {
	t.Parallel()
	kg, ids := buildTestGraph(t)

	reached, err := kg.Traverse(context.Background(), []string{ids["gallbladder"]}, 2, false)
	require.NoError(t, err)
	assert.Len(t, reached, 1) // gallbladder has no outgoing edges
}

func TestTraverse_UnknownSeedIgnored(t *testing.T) {
	t.Parallel()
	kg, _ := buildTestGraph(t)

	reached, err := kg.Traverse(context.Background(), []string{"missing"}, 2, true)
	require.NoError(t, err)
	assert.Empty(t, reached)
}

func TestRelationshipExists(t *testing.T) {
	t.Parallel()
	kg, _ := buildTestGraph(t)
	ctx := context.Background()

	exists, err := kg.RelationshipExists(ctx, "cholecystectomy", RelationInvolves, "gallbladder")
	require.NoError(t, err)
	assert.True(t, exists)

	// Wrong relation type.
	exists, err = kg.RelationshipExists(ctx, "cholecystectomy", RelationPrevents, "gallbladder")
	require.NoError(t, err)
	assert.False(t, exists)

	// Direction matters.
	exists, err = kg.RelationshipExists(ctx, "gallbladder", RelationInvolves, "cholecystectomy")
	require.NoError(t, err)
	assert.False(t, exists)

	// Unknown entity.
	exists, err = kg.RelationshipExists(ctx, "cholecystectomy", RelationInvolves, "pancreas")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSearchEntities(t *testing.T) {
	t.Parallel()
	kg, _ := buildTestGraph(t)
	ctx := context.Background()

	found, err := kg.SearchEntities(ctx, "chole")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "cholecystectomy", found[0].Name)

	all, err := kg.SearchEntities(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestExportImport_Roundtrip(t *testing.T) {
	t.Parallel()
	kg, _ := buildTestGraph(t)
	ctx := context.Background()

	snapshot := kg.Export()
	assert.Len(t, snapshot.Entities, 4)
	assert.Len(t, snapshot.Edges, 3)

	restored := NewMemoryKnowledgeGraph()
	require.NoError(t, restored.Import(ctx, snapshot))

	stats, err := restored.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Entities)
	assert.Equal(t, 3, stats.Relationships)

	exists, err := restored.RelationshipExists(ctx, "cholecystectomy", RelationMayCause, "bile leak")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLinkSegment(t *testing.T) {
	t.Parallel()
	kg, ids := buildTestGraph(t)
	ctx := context.Background()

	require.NoError(t, kg.LinkSegment(ctx, ids["gallbladder"], "seg-1"))
	require.NoError(t, kg.LinkSegment(ctx, ids["gallbladder"], "seg-1")) // idempotent

	entity, err := kg.GetEntity(ctx, ids["gallbladder"])
	require.NoError(t, err)
	assert.Equal(t, []string{"seg-1"}, entity.Segments)

	require.Error(t, kg.LinkSegment(ctx, "missing", "seg-1"))
}
