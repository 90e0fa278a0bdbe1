package algorithms

import (
	"context"
	"sort"

	"github.com/athapong/surgical-qa/pkg/graph"
)

// Neighborhood groups the entities reachable from a seed by hop distance and
// entity type. It is a read-side convenience over KnowledgeGraph.Traverse.
type Neighborhood struct {
	Seed    graph.Entity
	ByType  map[graph.EntityType][]graph.Entity
	ByHops  map[int][]graph.Entity
	Reached []graph.Reached
}

type GraphTraversal struct {
	graph graph.KnowledgeGraph
}

func NewGraphTraversal(g graph.KnowledgeGraph) *GraphTraversal {
	return &GraphTraversal{graph: g}
}

// Neighborhood expands from a single entity and groups the results. Hop 0
// (the seed itself) is excluded from the groupings.
func (t *GraphTraversal) Neighborhood(ctx context.Context, entityID string, maxHops int) (*Neighborhood, error) {
	seed, err := t.graph.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	reached, err := t.graph.Traverse(ctx, []string{entityID}, maxHops, true)
	if err != nil {
		return nil, err
	}

	n := &Neighborhood{
		Seed:    *seed,
		ByType:  make(map[graph.EntityType][]graph.Entity),
		ByHops:  make(map[int][]graph.Entity),
		Reached: reached,
	}
	for _, r := range reached {
		if r.Hops == 0 {
			continue
		}
		n.ByType[r.Entity.Type] = append(n.ByType[r.Entity.Type], r.Entity)
		n.ByHops[r.Hops] = append(n.ByHops[r.Hops], r.Entity)
	}

	for _, entities := range n.ByType {
		sortByName(entities)
	}
	for _, entities := range n.ByHops {
		sortByName(entities)
	}
	return n, nil
}

// RelatedOfType returns the reachable entities of one type, nearest first.
func (t *GraphTraversal) RelatedOfType(ctx context.Context, entityID string, entityType graph.EntityType, maxHops int) ([]graph.Reached, error) {
	reached, err := t.graph.Traverse(ctx, []string{entityID}, maxHops, true)
	if err != nil {
		return nil, err
	}

	result := make([]graph.Reached, 0)
	for _, r := range reached {
		if r.Hops > 0 && r.Entity.Type == entityType {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Hops != result[j].Hops {
			return result[i].Hops < result[j].Hops
		}
		return result[i].Entity.Name < result[j].Entity.Name
	})
	return result, nil
}

func sortByName(entities []graph.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Name < entities[j].Name
	})
}
