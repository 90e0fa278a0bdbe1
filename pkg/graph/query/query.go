package query

import (
	"context"
	"encoding/json"

	"github.com/athapong/surgical-qa/pkg/graph"
)

// EntityQuery selects entities from a knowledge graph by type and name. It is
// the filter model behind the entity lookup tool.
type EntityQuery struct {
	Types        []graph.EntityType `json:"types,omitempty"`
	NameContains string             `json:"name_contains,omitempty"`
	Limit        int                `json:"limit,omitempty"`
}

func NewEntityQuery() *EntityQuery {
	return &EntityQuery{}
}

func (q *EntityQuery) WithType(t graph.EntityType) *EntityQuery {
	q.Types = append(q.Types, t)
	return q
}

func (q *EntityQuery) WithNameContains(s string) *EntityQuery {
	q.NameContains = graph.NormalizeName(s)
	return q
}

func (q *EntityQuery) WithLimit(limit int) *EntityQuery {
	q.Limit = limit
	return q
}

// Run evaluates the query. Matching entities come back in the graph's stable
// iteration order, truncated to Limit when set.
func (q *EntityQuery) Run(ctx context.Context, kg graph.KnowledgeGraph) ([]graph.Entity, error) {
	candidates, err := kg.SearchEntities(ctx, q.NameContains)
	if err != nil {
		return nil, err
	}

	result := make([]graph.Entity, 0)
	for _, entity := range candidates {
		if !q.matchesType(entity.Type) {
			continue
		}
		result = append(result, entity)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, nil
}

func (q *EntityQuery) matchesType(t graph.EntityType) bool {
	if len(q.Types) == 0 {
		return true
	}
	for _, want := range q.Types {
		if want == t {
			return true
		}
	}
	return false
}

func (q *EntityQuery) String() string {
	bytes, _ := json.MarshalIndent(q, "", "  ")
	return string(bytes)
}
