package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/pkg/errors"
)

// GraphStore defines an interface for persisting knowledge graph snapshots
type GraphStore interface {
	// StoreGraph persists a knowledge graph snapshot
	StoreGraph(ctx context.Context, data *graph.GraphData) error

	// LoadGraph loads a knowledge graph snapshot from storage
	LoadGraph(ctx context.Context) (*graph.GraphData, error)
}

// JSONGraphStore implements GraphStore using JSON files
type JSONGraphStore struct {
	filePath string
}

// NewJSONGraphStore creates a new JSON graph store
func NewJSONGraphStore(filePath string) *JSONGraphStore {
	return &JSONGraphStore{
		filePath: filePath,
	}
}

// StoreGraph stores the knowledge graph as JSON
func (s *JSONGraphStore) StoreGraph(ctx context.Context, data *graph.GraphData) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create snapshot directory")
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode graph snapshot")
	}

	return errors.Wrap(os.WriteFile(s.filePath, encoded, 0644), "write graph snapshot")
}

// LoadGraph loads a knowledge graph snapshot from a JSON file
func (s *JSONGraphStore) LoadGraph(ctx context.Context) (*graph.GraphData, error) {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "read graph snapshot")
	}

	var data graph.GraphData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(err, "decode graph snapshot")
	}

	return &data, nil
}
