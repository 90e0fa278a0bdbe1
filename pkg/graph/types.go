package graph

import (
	"context"
	"errors"
	"time"
)

// EntityType classifies nodes in the surgical knowledge graph. The schema is
// fixed: ingestion rejects types outside this set so the graph cannot drift
// into arbitrary string labels.
type EntityType string

const (
	EntityProcedure    EntityType = "Procedure"
	EntityAnatomy      EntityType = "Anatomy"
	EntityInstrument   EntityType = "Instrument"
	EntityComplication EntityType = "Complication"
	EntityTechnique    EntityType = "Technique"
	EntityMedication   EntityType = "Medication"
)

// RelationType classifies directed edges between entities.
type RelationType string

const (
	RelationInvolves           RelationType = "INVOLVES"            // Procedure -> Anatomy
	RelationRequires           RelationType = "REQUIRES"            // Procedure -> Instrument
	RelationMayCause           RelationType = "MAY_CAUSE"           // Procedure -> Complication
	RelationUsesTechnique      RelationType = "USES_TECHNIQUE"      // Procedure -> Technique
	RelationRequiresMedication RelationType = "REQUIRES_MEDICATION" // Procedure -> Medication
	RelationPrevents           RelationType = "PREVENTS"            // Medication -> Complication
	RelationContraindicated    RelationType = "CONTRAINDICATED_WITH"
	RelationPrecedes           RelationType = "PRECEDES"
)

var entityTypes = map[EntityType]bool{
	EntityProcedure:    true,
	EntityAnatomy:      true,
	EntityInstrument:   true,
	EntityComplication: true,
	EntityTechnique:    true,
	EntityMedication:   true,
}

var relationTypes = map[RelationType]bool{
	RelationInvolves:           true,
	RelationRequires:           true,
	RelationMayCause:           true,
	RelationUsesTechnique:      true,
	RelationRequiresMedication: true,
	RelationPrevents:           true,
	RelationContraindicated:    true,
	RelationPrecedes:           true,
}

// ValidEntityType reports whether t belongs to the fixed schema.
func ValidEntityType(t EntityType) bool { return entityTypes[t] }

// ValidRelationType reports whether t belongs to the fixed schema.
func ValidRelationType(t RelationType) bool { return relationTypes[t] }

// ErrGraphUnavailable marks a transient failure of the backing graph store.
// Callers treat it as "graph degraded" and fall back to vector-only
// retrieval rather than failing the query.
var ErrGraphUnavailable = errors.New("knowledge graph unavailable")

// ErrUnknownType is returned when ingestion presents an entity or relation
// type outside the fixed schema.
var ErrUnknownType = errors.New("unknown entity or relation type")

// Entity is a node in the knowledge graph.
type Entity struct {
	ID         string                 `json:"id"`
	Type       EntityType             `json:"type"`
	Name       string                 `json:"name"` // canonical, lower-cased
	Aliases    []string               `json:"aliases,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Segments   []string               `json:"segments,omitempty"` // TextSegment IDs mentioning this entity
	Sources    []string               `json:"sources,omitempty"`  // owning document IDs
	Confidence float64                `json:"confidence"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Relationship is a typed, directed edge between two entities.
type Relationship struct {
	ID         string                 `json:"id"`
	Type       RelationType           `json:"type"`
	From       string                 `json:"from"` // entity ID
	To         string                 `json:"to"`   // entity ID
	Properties map[string]interface{} `json:"properties,omitempty"`
	Weight     float64                `json:"weight"`
	Confidence float64                `json:"confidence"`
	Source     string                 `json:"source"`
}

// Reached pairs an entity with the hop distance at which a traversal
// first visited it.
type Reached struct {
	Entity Entity
	Hops   int
}

// Stats summarizes graph size by type.
type Stats struct {
	Entities      int                  `json:"entities"`
	Relationships int                  `json:"relationships"`
	ByEntityType  map[EntityType]int   `json:"by_entity_type"`
	ByRelation    map[RelationType]int `json:"by_relation_type"`
}

// KnowledgeGraph defines the operations the retrieval and verification
// pipeline needs from a graph backend.
type KnowledgeGraph interface {
	// UpsertEntity creates or merges a node. Matching is case-insensitive
	// over canonical name and aliases within the same type.
	UpsertEntity(ctx context.Context, entity *Entity) (string, error)

	// UpsertRelationship creates a directed typed edge. It is a no-op when
	// either endpoint is absent: graph completeness degrades gracefully
	// instead of failing ingestion.
	UpsertRelationship(ctx context.Context, rel *Relationship) error

	// FindEntities returns entities whose name or alias occurs as a
	// substring of the given text.
	FindEntities(ctx context.Context, text string) ([]Entity, error)

	// SearchEntities returns entities whose name or alias contains the
	// given fragment. An empty fragment matches every entity.
	SearchEntities(ctx context.Context, namePart string) ([]Entity, error)

	// Traverse returns all entities reachable from the seed entity IDs
	// within maxHops edges, with hop distances. Edges are followed in both
	// directions when undirected is true.
	Traverse(ctx context.Context, entityIDs []string, maxHops int, undirected bool) ([]Reached, error)

	// RelationshipExists checks for a typed edge between two entities,
	// resolved by name.
	RelationshipExists(ctx context.Context, fromName string, relType RelationType, toName string) (bool, error)

	// EntityExists reports whether any entity is known under the given
	// name or alias.
	EntityExists(ctx context.Context, name string) (bool, error)

	// LinkSegment records that a text segment mentions an entity.
	LinkSegment(ctx context.Context, entityID, segmentID string) error

	// GetEntity retrieves an entity by ID.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// Stats reports graph size by type.
	Stats(ctx context.Context) (*Stats, error)
}

// Storage is a KnowledgeGraph with an explicit connection lifecycle,
// implemented by remote backends.
type Storage interface {
	Connect(ctx context.Context) error
	Close() error
	KnowledgeGraph
}
