package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MemoryKnowledgeGraph implements the KnowledgeGraph interface with in-memory
// storage. Ingestion and serving are separate phases: once serving starts the
// graph is read-mostly and concurrent reads only take the read lock.
type MemoryKnowledgeGraph struct {
	entities map[string]*Entity               // entity ID -> entity
	nameIdx  map[EntityType]map[string]string // type -> normalized name/alias -> entity ID
	edges    map[string]*Relationship         // edge ID -> edge
	outEdges map[string][]string              // entity ID -> edge IDs
	inEdges  map[string][]string              // entity ID -> edge IDs
	order    []string                         // entity IDs in insertion order, for deterministic scans
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

// NewMemoryKnowledgeGraph creates a new in-memory knowledge graph.
func NewMemoryKnowledgeGraph() *MemoryKnowledgeGraph {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &MemoryKnowledgeGraph{
		entities: make(map[string]*Entity),
		nameIdx:  make(map[EntityType]map[string]string),
		edges:    make(map[string]*Relationship),
		outEdges: make(map[string][]string),
		inEdges:  make(map[string][]string),
		logger:   logger,
	}
}

// NormalizeName lower-cases and trims an entity name for matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UpsertEntity creates or merges a node. Matching is case-insensitive over
// canonical name and aliases within the same type. Returns the entity ID.
func (g *MemoryKnowledgeGraph) UpsertEntity(ctx context.Context, entity *Entity) (string, error) {
	if !ValidEntityType(entity.Type) {
		return "", fmt.Errorf("%w: entity type %q", ErrUnknownType, entity.Type)
	}

	name := NormalizeName(entity.Name)
	if name == "" {
		return "", fmt.Errorf("entity name must not be empty")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	idx := g.nameIdx[entity.Type]
	if idx == nil {
		idx = make(map[string]string)
		g.nameIdx[entity.Type] = idx
	}

	if id, exists := idx[name]; exists {
		g.mergeLocked(g.entities[id], entity)
		return id, nil
	}
	for _, alias := range entity.Aliases {
		if id, exists := idx[NormalizeName(alias)]; exists {
			g.mergeLocked(g.entities[id], entity)
			return id, nil
		}
	}

	id := entity.ID
	if id == "" {
		id = uuid.New().String()
	}
	stored := &Entity{
		ID:         id,
		Type:       entity.Type,
		Name:       name,
		Properties: entity.Properties,
		Confidence: entity.Confidence,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	stored.Sources = append(stored.Sources, entity.Sources...)
	stored.Segments = append(stored.Segments, entity.Segments...)
	for _, alias := range entity.Aliases {
		a := NormalizeName(alias)
		if a != "" && a != name {
			stored.Aliases = append(stored.Aliases, a)
			idx[a] = id
		}
	}

	g.entities[id] = stored
	g.order = append(g.order, id)
	idx[name] = id
	return id, nil
}

// mergeLocked folds a new sighting of an entity into the stored node.
// Caller holds the write lock.
func (g *MemoryKnowledgeGraph) mergeLocked(stored *Entity, incoming *Entity) {
	idx := g.nameIdx[stored.Type]
	for _, alias := range incoming.Aliases {
		a := NormalizeName(alias)
		if a == "" || a == stored.Name {
			continue
		}
		if _, known := idx[a]; !known {
			stored.Aliases = append(stored.Aliases, a)
			idx[a] = stored.ID
		}
	}
	n := NormalizeName(incoming.Name)
	if n != stored.Name {
		if _, known := idx[n]; !known {
			stored.Aliases = append(stored.Aliases, n)
			idx[n] = stored.ID
		}
	}
	stored.Sources = appendUnique(stored.Sources, incoming.Sources...)
	stored.Segments = appendUnique(stored.Segments, incoming.Segments...)
	if incoming.Confidence > stored.Confidence {
		stored.Confidence = incoming.Confidence
	}
	stored.UpdatedAt = time.Now()
}

// UpsertRelationship creates a directed typed edge. Missing endpoints make
// this a logged no-op rather than an error: a sparse graph still serves
// queries, a failed ingestion does not.
func (g *MemoryKnowledgeGraph) UpsertRelationship(ctx context.Context, rel *Relationship) error {
	if !ValidRelationType(rel.Type) {
		return fmt.Errorf("%w: relation type %q", ErrUnknownType, rel.Type)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	from := g.entities[rel.From]
	to := g.entities[rel.To]
	if from == nil || to == nil {
		g.logger.WithFields(logrus.Fields{
			"from": rel.From,
			"to":   rel.To,
			"type": rel.Type,
		}).Warn("Skipping relationship with unknown endpoint")
		return nil
	}

	edgeID := fmt.Sprintf("%s-%s-%s", rel.From, rel.Type, rel.To)
	if existing, ok := g.edges[edgeID]; ok {
		existing.Weight = (existing.Weight + rel.Confidence) / 2 // average confidence
		return nil
	}

	edge := &Relationship{
		ID:         edgeID,
		Type:       rel.Type,
		From:       rel.From,
		To:         rel.To,
		Properties: rel.Properties,
		Weight:     rel.Confidence,
		Confidence: rel.Confidence,
		Source:     rel.Source,
	}
	g.edges[edgeID] = edge
	g.outEdges[rel.From] = append(g.outEdges[rel.From], edgeID)
	g.inEdges[rel.To] = append(g.inEdges[rel.To], edgeID)
	return nil
}

// FindEntities returns entities whose canonical name or alias occurs as a
// substring of the given text. Results are ordered by insertion order so
// repeated calls over an unchanged graph are deterministic.
func (g *MemoryKnowledgeGraph) FindEntities(ctx context.Context, text string) ([]Entity, error) {
	lowered := strings.ToLower(text)

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	found := make([]Entity, 0)
	for _, id := range g.order {
		entity := g.entities[id]
		if containsTerm(lowered, entity.Name) {
			found = append(found, *entity)
			continue
		}
		for _, alias := range entity.Aliases {
			if containsTerm(lowered, alias) {
				found = append(found, *entity)
				break
			}
		}
	}
	return found, nil
}

// containsTerm matches term inside text on word boundaries, so "open" does
// not match inside "reopened".
func containsTerm(text, term string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], term)
		if pos < 0 {
			return false
		}
		pos += idx
		before := pos == 0 || !isWordChar(text[pos-1])
		afterIdx := pos + len(term)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return true
		}
		idx = pos + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// SearchEntities returns entities whose name or alias contains the fragment,
// in insertion order. An empty fragment matches everything.
func (g *MemoryKnowledgeGraph) SearchEntities(ctx context.Context, namePart string) ([]Entity, error) {
	fragment := NormalizeName(namePart)

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	found := make([]Entity, 0)
	for _, id := range g.order {
		entity := g.entities[id]
		if matchesFragment(entity, fragment) {
			found = append(found, *entity)
		}
	}
	return found, nil
}

func matchesFragment(entity *Entity, fragment string) bool {
	if fragment == "" {
		return true
	}
	if strings.Contains(entity.Name, fragment) {
		return true
	}
	for _, alias := range entity.Aliases {
		if strings.Contains(alias, fragment) {
			return true
		}
	}
	return false
}

// Traverse runs a breadth-first expansion from the seed entities, recording
// the hop distance at which each entity is first reached. Seeds are hop 0.
func (g *MemoryKnowledgeGraph) Traverse(ctx context.Context, entityIDs []string, maxHops int, undirected bool) ([]Reached, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	visited := make(map[string]int)
	queue := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		if _, ok := g.entities[id]; !ok {
			continue
		}
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = 0
		queue = append(queue, id)
	}

	result := make([]Reached, 0, len(queue))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		hops := visited[current]
		result = append(result, Reached{Entity: *g.entities[current], Hops: hops})

		if hops >= maxHops {
			continue
		}
		for _, neighbor := range g.neighborsLocked(current, undirected) {
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = hops + 1
			queue = append(queue, neighbor)
		}
	}
	return result, nil
}

// neighborsLocked returns adjacent entity IDs in edge insertion order.
// Caller holds at least the read lock.
func (g *MemoryKnowledgeGraph) neighborsLocked(id string, undirected bool) []string {
	neighbors := make([]string, 0)
	for _, edgeID := range g.outEdges[id] {
		neighbors = append(neighbors, g.edges[edgeID].To)
	}
	if undirected {
		for _, edgeID := range g.inEdges[id] {
			neighbors = append(neighbors, g.edges[edgeID].From)
		}
	}
	return neighbors
}

// RelationshipExists checks for a typed edge between two entities resolved
// by case-insensitive name or alias.
func (g *MemoryKnowledgeGraph) RelationshipExists(ctx context.Context, fromName string, relType RelationType, toName string) (bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	fromIDs := g.resolveNameLocked(fromName)
	toIDs := g.resolveNameLocked(toName)
	if len(fromIDs) == 0 || len(toIDs) == 0 {
		return false, nil
	}

	for _, from := range fromIDs {
		for _, edgeID := range g.outEdges[from] {
			edge := g.edges[edgeID]
			if edge.Type != relType {
				continue
			}
			for _, to := range toIDs {
				if edge.To == to {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// resolveNameLocked maps a name to entity IDs across all types.
func (g *MemoryKnowledgeGraph) resolveNameLocked(name string) []string {
	normalized := NormalizeName(name)
	ids := make([]string, 0, 1)
	for _, idx := range g.nameIdx {
		if id, ok := idx[normalized]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// EntityExists reports whether any entity is known under the given name.
func (g *MemoryKnowledgeGraph) EntityExists(ctx context.Context, name string) (bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.resolveNameLocked(name)) > 0, nil
}

// LinkSegment records that a text segment mentions an entity.
func (g *MemoryKnowledgeGraph) LinkSegment(ctx context.Context, entityID, segmentID string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	entity, ok := g.entities[entityID]
	if !ok {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	entity.Segments = appendUnique(entity.Segments, segmentID)
	return nil
}

// GetEntity retrieves an entity by ID.
func (g *MemoryKnowledgeGraph) GetEntity(ctx context.Context, id string) (*Entity, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	entity, ok := g.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity not found: %s", id)
	}
	copied := *entity
	return &copied, nil
}

// Stats reports graph size by type.
func (g *MemoryKnowledgeGraph) Stats(ctx context.Context) (*Stats, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	stats := &Stats{
		Entities:      len(g.entities),
		Relationships: len(g.edges),
		ByEntityType:  make(map[EntityType]int),
		ByRelation:    make(map[RelationType]int),
	}
	for _, entity := range g.entities {
		stats.ByEntityType[entity.Type]++
	}
	for _, edge := range g.edges {
		stats.ByRelation[edge.Type]++
	}
	return stats, nil
}

// Export returns a serializable snapshot of the graph for persistence or
// visualization.
func (g *MemoryKnowledgeGraph) Export() *GraphData {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	data := &GraphData{
		Entities:    make([]Entity, 0, len(g.entities)),
		Edges:       make([]Relationship, 0, len(g.edges)),
		GeneratedAt: time.Now(),
	}
	for _, id := range g.order {
		data.Entities = append(data.Entities, *g.entities[id])
	}
	for _, edge := range g.edges {
		data.Edges = append(data.Edges, *edge)
	}
	sort.Slice(data.Edges, func(i, j int) bool { return data.Edges[i].ID < data.Edges[j].ID })
	return data
}

// Import loads a previously exported snapshot, replacing current contents.
func (g *MemoryKnowledgeGraph) Import(ctx context.Context, data *GraphData) error {
	fresh := NewMemoryKnowledgeGraph()
	idMap := make(map[string]string, len(data.Entities))
	for i := range data.Entities {
		entity := data.Entities[i]
		id, err := fresh.UpsertEntity(ctx, &entity)
		if err != nil {
			return err
		}
		idMap[entity.ID] = id
	}
	for i := range data.Edges {
		edge := data.Edges[i]
		edge.From = idMap[edge.From]
		edge.To = idMap[edge.To]
		if err := fresh.UpsertRelationship(ctx, &edge); err != nil {
			return err
		}
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.entities = fresh.entities
	g.nameIdx = fresh.nameIdx
	g.edges = fresh.edges
	g.outEdges = fresh.outEdges
	g.inEdges = fresh.inEdges
	g.order = fresh.order
	return nil
}

// GraphData is the serializable form of a knowledge graph.
type GraphData struct {
	Entities    []Entity       `json:"entities"`
	Edges       []Relationship `json:"edges"`
	GeneratedAt time.Time      `json:"generated_at"`
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		seen := false
		for _, existing := range dst {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}
