package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/athapong/surgical-qa/util"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkoukk/tiktoken-go"
)

func RegisterIngestTools(s *server.MCPServer) {
	indexDocumentTool := mcp.NewTool("surgical_index_document",
		mcp.WithDescription("Index a surgical guideline document: segment it, embed the segments, and extract entities and relations into the knowledge graph"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Stable document identifier")),
		mcp.WithString("title", mcp.Description("Document title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Plain text document content")),
	)

	indexFileTool := mcp.NewTool("surgical_index_file",
		mcp.WithDescription("Index a local guideline file"),
		mcp.WithString("filePath", mcp.Required(), mcp.Description("Path to the local file to be indexed")),
	)

	s.AddTool(indexDocumentTool, util.ErrorGuard(indexDocumentHandler))
	s.AddTool(indexFileTool, util.ErrorGuard(indexFileHandler))
}

func indexFileHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, ok := request.Params.Arguments["filePath"].(string)
	if !ok || filePath == "" {
		return mcp.NewToolResultError("filePath must be a non-empty string"), nil
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}

	request.Params.Arguments["document_id"] = filePath
	request.Params.Arguments["title"] = filePath
	request.Params.Arguments["content"] = string(content)
	return indexDocumentHandler(ctx, request)
}

func indexDocumentHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.Params.Arguments
	documentID, ok := arguments["document_id"].(string)
	if !ok || documentID == "" {
		return mcp.NewToolResultError("document_id must be a non-empty string"), nil
	}
	content, ok := arguments["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content must be a non-empty string"), nil
	}
	title, _ := arguments["title"].(string)

	doc, err := IndexDocument(ctx, documentID, title, content)
	if err != nil {
		return nil, err
	}

	result := fmt.Sprintf("Indexed document %s: %d segments, %d entities, %d relations",
		documentID, len(doc.Segments), len(doc.Entities), len(doc.Relations))
	return mcp.NewToolResultText(result), nil
}

// IndexDocument runs the full ingestion path for one document: segmentation,
// embedding, entity extraction, and graph ingestion. It is shared by the MCP
// tool and the offline graph builder.
func IndexDocument(ctx context.Context, documentID, title, content string) (*graph.Document, error) {
	chunks, err := splitIntoChunks(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split into chunks: %v", err)
	}

	doc := &graph.Document{
		ID:      documentID,
		Title:   title,
		Content: content,
	}
	for i, chunk := range chunks {
		segment := graph.TextSegment{
			ID:         uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID+fmt.Sprint(i))).String(),
			DocumentID: documentID,
			Ordinal:    i,
			Text:       chunk,
		}
		doc.Segments = append(doc.Segments, segment)

		if err := defaultSegmentStore().PutSegment(ctx, &segment); err != nil {
			return nil, fmt.Errorf("failed to store segment: %v", err)
		}
		embedding, err := defaultEmbedder().Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to embed segment: %v", err)
		}
		if err := defaultVectorIndex().Add(ctx, segment.ID, embedding); err != nil {
			return nil, fmt.Errorf("failed to index segment: %v", err)
		}
	}

	textPipeline := graph.NewPipeline()
	textPipeline.AddProcessor(defaultProcessor())
	if err := textPipeline.Process(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to process document: %v", err)
	}
	if err := graph.Ingest(ctx, defaultKnowledgeGraph(), doc); err != nil {
		return nil, fmt.Errorf("failed to ingest into knowledge graph: %v", err)
	}
	return doc, nil
}

// splitIntoChunks windows the content into overlapping token chunks sized
// for the embedding model.
func splitIntoChunks(content string) ([]string, error) {
	const (
		maxTokensPerChunk = 512
		overlapTokens     = 50
	)

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %v", err)
	}

	tokens := encoding.Encode(content, nil, nil)

	var chunks []string
	var currentChunk []int
	for i := 0; i < len(tokens); i++ {
		currentChunk = append(currentChunk, tokens[i])

		if len(currentChunk) >= maxTokensPerChunk {
			chunks = append(chunks, encoding.Decode(currentChunk))

			if len(currentChunk) > overlapTokens {
				currentChunk = currentChunk[len(currentChunk)-overlapTokens:]
			} else {
				currentChunk = []int{}
			}
		}
	}
	if len(currentChunk) > 0 {
		chunks = append(chunks, encoding.Decode(currentChunk))
	}
	return chunks, nil
}
