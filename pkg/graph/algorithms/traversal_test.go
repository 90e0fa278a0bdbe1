package algorithms

import (
	"context"
	"testing"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T) (graph.KnowledgeGraph, map[string]string) {
	t.Helper()
	kg := graph.NewMemoryKnowledgeGraph()
	ctx := context.Background()

	ids := make(map[string]string)
	for _, e := range []graph.Entity{
		{Type: graph.EntityProcedure, Name: "cholecystectomy"},
		{Type: graph.EntityAnatomy, Name: "gallbladder"},
		{Type: graph.EntityComplication, Name: "bile leak"},
		{Type: graph.EntityComplication, Name: "bleeding"},
		{Type: graph.EntityInstrument, Name: "laparoscope"},
	} {
		id, err := kg.UpsertEntity(ctx, &e)
		require.NoError(t, err)
		ids[e.Name] = id
	}
	for _, r := range []graph.Relationship{
		{Type: graph.RelationInvolves, From: ids["cholecystectomy"], To: ids["gallbladder"]},
		{Type: graph.RelationMayCause, From: ids["cholecystectomy"], To: ids["bile leak"]},
		{Type: graph.RelationMayCause, From: ids["cholecystectomy"], To: ids["bleeding"]},
		{Type: graph.RelationRequires, From: ids["cholecystectomy"], To: ids["laparoscope"]},
	} {
		require.NoError(t, kg.UpsertRelationship(ctx, &r))
	}
	return kg, ids
}

func TestNeighborhood(t *testing.T) {
	t.Parallel()
	kg, ids := buildGraph(t)
	traversal := NewGraphTraversal(kg)

	n, err := traversal.Neighborhood(context.Background(), ids["cholecystectomy"], 1)
	require.NoError(t, err)

	assert.Equal(t, "cholecystectomy", n.Seed.Name)
	require.Len(t, n.ByHops[1], 4)
	assert.Empty(t, n.ByHops[0], "the seed must not appear in its own neighborhood")

	complications := n.ByType[graph.EntityComplication]
	require.Len(t, complications, 2)
	// Groupings are name-sorted for stable output.
	assert.Equal(t, "bile leak", complications[0].Name)
	assert.Equal(t, "bleeding", complications[1].Name)
}

func TestNeighborhood_UnknownEntity(t *testing.T) {
	t.Parallel()
	kg, _ := buildGraph(t)
	traversal := NewGraphTraversal(kg)

	_, err := traversal.Neighborhood(context.Background(), "no-such-id", 1)
	assert.Error(t, err)
}

func TestRelatedOfType(t *testing.T) {
	t.Parallel()
	kg, ids := buildGraph(t)
	traversal := NewGraphTraversal(kg)

	// From the gallbladder, complications sit two hops away through the
	// procedure.
	related, err := traversal.RelatedOfType(context.Background(), ids["gallbladder"], graph.EntityComplication, 2)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, 2, related[0].Hops)
	assert.Equal(t, "bile leak", related[0].Entity.Name)

	none, err := traversal.RelatedOfType(context.Background(), ids["gallbladder"], graph.EntityMedication, 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}
