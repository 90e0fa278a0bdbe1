package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
)

// queryTimeout bounds each server round trip. The v4 driver API does not
// take a context, so the bound is enforced by abandoning the call.
const queryTimeout = 10 * time.Second

// Neo4jStorage implements the graph.Storage interface using Neo4j. Each
// entity type maps to a node label from the fixed schema; relation types map
// to relationship types. Connection failures surface as
// graph.ErrGraphUnavailable so callers can degrade to vector-only retrieval.
type Neo4jStorage struct {
	driver neo4j.Driver
	uri    string
	auth   neo4j.AuthToken
}

// NewNeo4jStorage creates a new Neo4j storage instance.
func NewNeo4jStorage(uri, username, password string) (*Neo4jStorage, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %v", err)
	}

	return &Neo4jStorage{
		driver: driver,
		uri:    uri,
		auth:   auth,
	}, nil
}

// Connect verifies connectivity and creates per-label name indexes.
func (s *Neo4jStorage) Connect(ctx context.Context) error {
	return s.run(ctx, func(session neo4j.Session) error {
		if _, err := session.Run("RETURN 1", nil); err != nil {
			return s.unavailable(err)
		}

		for entityType := range map[graph.EntityType]bool{
			graph.EntityProcedure:    true,
			graph.EntityAnatomy:      true,
			graph.EntityInstrument:   true,
			graph.EntityComplication: true,
			graph.EntityTechnique:    true,
			graph.EntityMedication:   true,
		} {
			query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.name)", entityType)
			if _, err := session.Run(query, nil); err != nil {
				return s.unavailable(err)
			}
		}
		return nil
	})
}

// Close releases the driver.
func (s *Neo4jStorage) Close() error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}

func (s *Neo4jStorage) unavailable(err error) error {
	return fmt.Errorf("%w: %v", graph.ErrGraphUnavailable, err)
}

// run executes fn against a fresh session with a deadline and one retry on
// failure. Results built inside fn must be (re)initialized there so a retry
// starts clean.
func (s *Neo4jStorage) run(ctx context.Context, fn func(session neo4j.Session) error) error {
	err := s.runOnce(ctx, fn)
	if err == nil || ctx.Err() != nil {
		return err
	}
	return s.runOnce(ctx, fn)
}

func (s *Neo4jStorage) runOnce(ctx context.Context, fn func(session neo4j.Session) error) error {
	return runBounded(ctx, queryTimeout, func() error {
		session := s.driver.NewSession(neo4j.SessionConfig{})
		defer session.Close()
		return fn(session)
	})
}

// runBounded executes fn in its own goroutine and abandons it when the
// deadline passes first; a stalled server then costs the caller the timeout,
// not the query.
func runBounded(ctx context.Context, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", graph.ErrGraphUnavailable, ctx.Err())
	}
}

// UpsertEntity merges a node on (label, name). Aliases and segment links are
// stored as array properties.
func (s *Neo4jStorage) UpsertEntity(ctx context.Context, entity *graph.Entity) (string, error) {
	if !graph.ValidEntityType(entity.Type) {
		return "", fmt.Errorf("%w: entity type %q", graph.ErrUnknownType, entity.Type)
	}

	id := entity.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := fmt.Sprintf(`
		MERGE (e:%s {name: $name})
		ON CREATE SET e.id = $id, e.aliases = $aliases, e.segments = $segments,
			e.sources = $sources, e.confidence = $confidence,
			e.created_at = datetime(), e.updated_at = datetime()
		ON MATCH SET e.aliases = apoc.coll.toSet(e.aliases + $aliases),
			e.segments = apoc.coll.toSet(e.segments + $segments),
			e.sources = apoc.coll.toSet(e.sources + $sources),
			e.updated_at = datetime()
		RETURN e.id AS id
	`, entity.Type)

	params := map[string]interface{}{
		"id":         id,
		"name":       graph.NormalizeName(entity.Name),
		"aliases":    lowered(entity.Aliases),
		"segments":   entity.Segments,
		"sources":    entity.Sources,
		"confidence": entity.Confidence,
	}

	out := id
	err := s.run(ctx, func(session neo4j.Session) error {
		result, err := session.Run(query, params)
		if err != nil {
			return s.unavailable(err)
		}
		if result.Next() {
			out = result.Record().Values[0].(string)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// UpsertRelationship creates a typed edge between existing nodes. Absent
// endpoints make the MATCH produce no rows, which is the intended no-op.
func (s *Neo4jStorage) UpsertRelationship(ctx context.Context, rel *graph.Relationship) error {
	if !graph.ValidRelationType(rel.Type) {
		return fmt.Errorf("%w: relation type %q", graph.ErrUnknownType, rel.Type)
	}

	query := fmt.Sprintf(`
		MATCH (from {id: $fromID})
		MATCH (to {id: $toID})
		MERGE (from)-[r:%s]->(to)
		ON CREATE SET r.weight = $confidence, r.confidence = $confidence,
			r.source = $source, r.created_at = datetime()
		ON MATCH SET r.weight = (r.weight + $confidence) / 2
	`, rel.Type)

	params := map[string]interface{}{
		"fromID":     rel.From,
		"toID":       rel.To,
		"confidence": rel.Confidence,
		"source":     rel.Source,
	}

	return s.run(ctx, func(session neo4j.Session) error {
		if _, err := session.Run(query, params); err != nil {
			return s.unavailable(err)
		}
		return nil
	})
}

// FindEntities returns entities whose name or alias is contained in the text.
func (s *Neo4jStorage) FindEntities(ctx context.Context, text string) ([]graph.Entity, error) {
	query := `
		MATCH (e)
		WHERE $text CONTAINS e.name
			OR any(alias IN coalesce(e.aliases, []) WHERE $text CONTAINS alias)
		RETURN e, labels(e)[0] AS label
		ORDER BY e.created_at
	`
	return s.collectEntities(ctx, query, map[string]interface{}{
		"text": graph.NormalizeName(text),
	})
}

// SearchEntities returns entities whose name or alias contains the fragment.
func (s *Neo4jStorage) SearchEntities(ctx context.Context, namePart string) ([]graph.Entity, error) {
	query := `
		MATCH (e)
		WHERE e.name CONTAINS $fragment
			OR any(alias IN coalesce(e.aliases, []) WHERE alias CONTAINS $fragment)
		RETURN e, labels(e)[0] AS label
		ORDER BY e.created_at
	`
	return s.collectEntities(ctx, query, map[string]interface{}{
		"fragment": graph.NormalizeName(namePart),
	})
}

func (s *Neo4jStorage) collectEntities(ctx context.Context, query string, params map[string]interface{}) ([]graph.Entity, error) {
	var entities []graph.Entity
	err := s.run(ctx, func(session neo4j.Session) error {
		result, err := session.Run(query, params)
		if err != nil {
			return s.unavailable(err)
		}
		entities = make([]graph.Entity, 0)
		for result.Next() {
			record := result.Record()
			node := record.Values[0].(neo4j.Node)
			label := record.Values[1].(string)
			entities = append(entities, nodeToEntity(node, graph.EntityType(label)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// Traverse expands from the seed entities up to maxHops relationships.
func (s *Neo4jStorage) Traverse(ctx context.Context, entityIDs []string, maxHops int, undirected bool) ([]graph.Reached, error) {
	arrow := "-[*1..%d]-"
	if !undirected {
		arrow = "-[*1..%d]->"
	}
	query := fmt.Sprintf(`
		MATCH (seed) WHERE seed.id IN $ids
		OPTIONAL MATCH path = (seed)`+arrow+`(other)
		WITH seed, other, min(length(path)) AS hops
		RETURN seed, labels(seed)[0], other, labels(other)[0], hops
	`, maxHops)

	var reached []graph.Reached
	err := s.run(ctx, func(session neo4j.Session) error {
		result, err := session.Run(query, map[string]interface{}{"ids": entityIDs})
		if err != nil {
			return s.unavailable(err)
		}

		reached = make([]graph.Reached, 0)
		seen := make(map[string]bool)
		for result.Next() {
			record := result.Record()
			seed := record.Values[0].(neo4j.Node)
			seedLabel := record.Values[1].(string)
			seedEntity := nodeToEntity(seed, graph.EntityType(seedLabel))
			if !seen[seedEntity.ID] {
				seen[seedEntity.ID] = true
				reached = append(reached, graph.Reached{Entity: seedEntity, Hops: 0})
			}
			if record.Values[2] == nil {
				continue
			}
			other := record.Values[2].(neo4j.Node)
			otherLabel := record.Values[3].(string)
			hops := int(record.Values[4].(int64))
			otherEntity := nodeToEntity(other, graph.EntityType(otherLabel))
			if !seen[otherEntity.ID] {
				seen[otherEntity.ID] = true
				reached = append(reached, graph.Reached{Entity: otherEntity, Hops: hops})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reached, nil
}

// RelationshipExists checks for a typed edge between two named entities.
func (s *Neo4jStorage) RelationshipExists(ctx context.Context, fromName string, relType graph.RelationType, toName string) (bool, error) {
	query := fmt.Sprintf(`
		MATCH (from)-[r:%s]->(to)
		WHERE (from.name = $from OR $from IN coalesce(from.aliases, []))
			AND (to.name = $to OR $to IN coalesce(to.aliases, []))
		RETURN count(r) > 0 AS exists
	`, relType)

	var exists bool
	err := s.run(ctx, func(session neo4j.Session) error {
		result, err := session.Run(query, map[string]interface{}{
			"from": graph.NormalizeName(fromName),
			"to":   graph.NormalizeName(toName),
		})
		if err != nil {
			return s.unavailable(err)
		}
		exists = false
		if result.Next() {
			exists = result.Record().Values[0].(bool)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// EntityExists reports whether any node matches the name or alias.
func (s *Neo4jStorage) EntityExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.run(ctx, func(session neo4j.Session) error {
		result, err := session.Run(`
			MATCH (e)
			WHERE e.name = $name OR $name IN coalesce(e.aliases, [])
			RETURN count(e) > 0 AS exists
		`, map[string]interface{}{"name": graph.NormalizeName(name)})
		if err != nil {
			return s.unavailable(err)
		}
		exists = false
		if result.Next() {
			exists = result.Record().Values[0].(bool)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// LinkSegment appends a segment ID to an entity's mention list.
func (s *Neo4jStorage) LinkSegment(ctx context.Context, entityID, segmentID string) error {
	query := `
		MATCH (e {id: $id})
		SET e.segments = apoc.coll.toSet(coalesce(e.segments, []) + $segment)
	`
	return s.run(ctx, func(session neo4j.Session) error {
		if _, err := session.Run(query, map[string]interface{}{
			"id":      entityID,
			"segment": segmentID,
		}); err != nil {
			return s.unavailable(err)
		}
		return nil
	})
}

// GetEntity retrieves an entity by ID.
func (s *Neo4jStorage) GetEntity(ctx context.Context, id string) (*graph.Entity, error) {
	var entity *graph.Entity
	err := s.run(ctx, func(session neo4j.Session) error {
		result, err := session.Run(`
			MATCH (e {id: $id})
			RETURN e, labels(e)[0] AS label
		`, map[string]interface{}{"id": id})
		if err != nil {
			return s.unavailable(err)
		}
		entity = nil
		if result.Next() {
			record := result.Record()
			node := record.Values[0].(neo4j.Node)
			label := record.Values[1].(string)
			e := nodeToEntity(node, graph.EntityType(label))
			entity = &e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("entity not found: %s", id)
	}
	return entity, nil
}

// Stats reports graph size by type.
func (s *Neo4jStorage) Stats(ctx context.Context) (*graph.Stats, error) {
	var stats *graph.Stats
	err := s.run(ctx, func(session neo4j.Session) error {
		stats = &graph.Stats{
			ByEntityType: make(map[graph.EntityType]int),
			ByRelation:   make(map[graph.RelationType]int),
		}

		result, err := session.Run(`
			MATCH (n) RETURN labels(n)[0] AS label, count(n) AS count
		`, nil)
		if err != nil {
			return s.unavailable(err)
		}
		for result.Next() {
			record := result.Record()
			label := record.Values[0].(string)
			count := int(record.Values[1].(int64))
			stats.ByEntityType[graph.EntityType(label)] = count
			stats.Entities += count
		}

		result, err = session.Run(`
			MATCH ()-[r]->() RETURN type(r) AS type, count(r) AS count
		`, nil)
		if err != nil {
			return s.unavailable(err)
		}
		for result.Next() {
			record := result.Record()
			relType := record.Values[0].(string)
			count := int(record.Values[1].(int64))
			stats.ByRelation[graph.RelationType(relType)] = count
			stats.Relationships += count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func nodeToEntity(node neo4j.Node, entityType graph.EntityType) graph.Entity {
	entity := graph.Entity{Type: entityType}
	if id, ok := node.Props["id"].(string); ok {
		entity.ID = id
	}
	if name, ok := node.Props["name"].(string); ok {
		entity.Name = name
	}
	if confidence, ok := node.Props["confidence"].(float64); ok {
		entity.Confidence = confidence
	}
	entity.Aliases = stringList(node.Props["aliases"])
	entity.Segments = stringList(node.Props["segments"])
	entity.Sources = stringList(node.Props["sources"])
	return entity
}

func stringList(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func lowered(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, graph.NormalizeName(v))
	}
	return out
}
