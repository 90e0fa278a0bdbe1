package query

import (
	"context"
	"testing"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T) graph.KnowledgeGraph {
	t.Helper()
	kg := graph.NewMemoryKnowledgeGraph()
	ctx := context.Background()

	for _, e := range []graph.Entity{
		{Type: graph.EntityProcedure, Name: "cholecystectomy", Aliases: []string{"lap chole"}},
		{Type: graph.EntityProcedure, Name: "appendectomy"},
		{Type: graph.EntityComplication, Name: "bile leak"},
		{Type: graph.EntityAnatomy, Name: "bile duct"},
	} {
		_, err := kg.UpsertEntity(ctx, &e)
		require.NoError(t, err)
	}
	return kg
}

func TestEntityQuery_ByName(t *testing.T) {
	t.Parallel()
	kg := buildGraph(t)

	entities, err := NewEntityQuery().WithNameContains("bile").Run(context.Background(), kg)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "bile leak", entities[0].Name)
	assert.Equal(t, "bile duct", entities[1].Name)
}

func TestEntityQuery_ByAlias(t *testing.T) {
	t.Parallel()
	kg := buildGraph(t)

	entities, err := NewEntityQuery().WithNameContains("Lap Chole").Run(context.Background(), kg)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "cholecystectomy", entities[0].Name)
}

func TestEntityQuery_TypeFilterAndLimit(t *testing.T) {
	t.Parallel()
	kg := buildGraph(t)

	entities, err := NewEntityQuery().
		WithType(graph.EntityProcedure).
		Run(context.Background(), kg)
	require.NoError(t, err)
	assert.Len(t, entities, 2)

	limited, err := NewEntityQuery().
		WithType(graph.EntityProcedure).
		WithLimit(1).
		Run(context.Background(), kg)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "cholecystectomy", limited[0].Name)
}

func TestEntityQuery_EmptyMatchesAll(t *testing.T) {
	t.Parallel()
	kg := buildGraph(t)

	entities, err := NewEntityQuery().Run(context.Background(), kg)
	require.NoError(t, err)
	assert.Len(t, entities, 4)
}
