package graph

import (
	"context"
	"time"
)

// TextSegment is a contiguous chunk of guideline text produced by ingestion.
// Segments are immutable once created.
type TextSegment struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"` // position within the document
	Text       string `json:"text"`
}

// Document represents a guideline document moving through the ingestion
// pipeline, accumulating segments, entities and relations.
type Document struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content"`
	Segments    []TextSegment          `json:"segments,omitempty"`
	Entities    []Entity               `json:"entities,omitempty"`
	Relations   []Relationship         `json:"relations,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ProcessedAt time.Time              `json:"processed_at"`
}

// DocumentProcessor transforms raw document content into extracted
// entities and relations.
type DocumentProcessor interface {
	Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*Document, error)
	SupportedTypes() []string
}
