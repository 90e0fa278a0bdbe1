package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/athapong/surgical-qa/pkg/graph/algorithms"
	"github.com/athapong/surgical-qa/pkg/graph/query"
	"github.com/athapong/surgical-qa/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterKnowledgeGraphTools(s *server.MCPServer) {
	entityLookupTool := mcp.NewTool("surgical_entity_lookup",
		mcp.WithDescription("Look up surgical entities in the knowledge graph by name, with their typed neighbors"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entity name or fragment to search for")),
		mcp.WithString("type", mcp.Description("Restrict to one entity type: Procedure, Anatomy, Instrument, Complication, Technique, Medication")),
	)

	graphStatsTool := mcp.NewTool("surgical_graph_stats",
		mcp.WithDescription("Report knowledge graph size by entity and relation type"),
	)

	relatedSegmentsTool := mcp.NewTool("surgical_related_segments",
		mcp.WithDescription("Fetch guideline segments related to an entity through the knowledge graph, bypassing vector search"),
		mcp.WithString("entity", mcp.Required(), mcp.Description("Entity name")),
	)

	s.AddTool(entityLookupTool, util.ErrorGuard(entityLookupHandler))
	s.AddTool(graphStatsTool, util.ErrorGuard(graphStatsHandler))
	s.AddTool(relatedSegmentsTool, util.ErrorGuard(relatedSegmentsHandler))
}

func entityLookupHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.Params.Arguments
	name, ok := arguments["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("name must be a non-empty string"), nil
	}

	q := query.NewEntityQuery().WithNameContains(name).WithLimit(10)
	if typeArg, ok := arguments["type"].(string); ok && typeArg != "" {
		entityType := graph.EntityType(typeArg)
		if !graph.ValidEntityType(entityType) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown entity type: %s", typeArg)), nil
		}
		q = q.WithType(entityType)
	}

	entities, err := q.Run(ctx, defaultKnowledgeGraph())
	if err != nil {
		return nil, fmt.Errorf("entity lookup failed: %w", err)
	}
	if len(entities) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No entities matching %q", name)), nil
	}

	traversal := algorithms.NewGraphTraversal(defaultKnowledgeGraph())
	var sb strings.Builder
	for _, entity := range entities {
		fmt.Fprintf(&sb, "%s [%s]", entity.Name, entity.Type)
		if len(entity.Aliases) > 0 {
			fmt.Fprintf(&sb, " (aliases: %s)", strings.Join(entity.Aliases, ", "))
		}
		fmt.Fprintf(&sb, " - %d segments\n", len(entity.Segments))

		neighborhood, err := traversal.Neighborhood(ctx, entity.ID, 1)
		if err != nil {
			continue
		}
		types := make([]graph.EntityType, 0, len(neighborhood.ByType))
		for t := range neighborhood.ByType {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		for _, t := range types {
			names := make([]string, 0, len(neighborhood.ByType[t]))
			for _, n := range neighborhood.ByType[t] {
				names = append(names, n.Name)
			}
			fmt.Fprintf(&sb, "  %s: %s\n", t, strings.Join(names, ", "))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func graphStatsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := defaultKnowledgeGraph().Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph stats: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Entities: %d\nRelationships: %d\n\nBy entity type:\n", stats.Entities, stats.Relationships)
	for _, t := range []graph.EntityType{
		graph.EntityProcedure, graph.EntityAnatomy, graph.EntityInstrument,
		graph.EntityComplication, graph.EntityTechnique, graph.EntityMedication,
	} {
		fmt.Fprintf(&sb, "  %s: %d\n", t, stats.ByEntityType[t])
	}
	sb.WriteString("\nBy relation type:\n")
	relTypes := make([]graph.RelationType, 0, len(stats.ByRelation))
	for t := range stats.ByRelation {
		relTypes = append(relTypes, t)
	}
	sort.Slice(relTypes, func(i, j int) bool { return relTypes[i] < relTypes[j] })
	for _, t := range relTypes {
		fmt.Fprintf(&sb, "  %s: %d\n", t, stats.ByRelation[t])
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func relatedSegmentsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entity, ok := request.Params.Arguments["entity"].(string)
	if !ok || strings.TrimSpace(entity) == "" {
		return mcp.NewToolResultError("entity must be a non-empty string"), nil
	}

	result, err := defaultRetriever().RetrieveByEntity(ctx, entity, 10)
	if err != nil {
		return nil, fmt.Errorf("related segment retrieval failed: %w", err)
	}
	if result.Degraded {
		return mcp.NewToolResultError("knowledge graph is currently unavailable"), nil
	}
	if len(result.Segments) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No segments related to %q", entity)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Segments related to %q:\n", entity)
	for i, s := range result.Segments {
		fmt.Fprintf(&sb, "[%d] (graph score %.3f, doc %s) %s\n",
			i+1, s.GraphScore, s.Segment.DocumentID, truncate(s.Segment.Text, 160))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
