package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex backs the VectorIndex interface with a Qdrant collection. The
// collection uses dot-product distance and vectors are normalized client-side
// so scores stay comparable with FlatIndex.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrantIndex wraps an existing client and collection.
func NewQdrantIndex(client *qdrant.Client, collection string, dim int) *QdrantIndex {
	return &QdrantIndex{
		client:     client,
		collection: collection,
		dim:        dim,
	}
}

// EnsureCollection creates the collection if it does not exist.
func (idx *QdrantIndex) EnsureCollection(ctx context.Context) error {
	info, err := idx.client.GetCollectionInfo(ctx, idx.collection)
	if err == nil && info != nil {
		return nil
	}

	return idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(idx.dim),
					Distance: qdrant.Distance_Dot,
				},
			},
		},
	})
}

// Add upserts a single point keyed by a UUID derived from the segment ID.
func (idx *QdrantIndex) Add(ctx context.Context, id string, vector []float32) error {
	if len(vector) != idx.dim {
		return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), idx.dim)
	}

	waitUpsert := true
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()),
		Vectors: qdrant.NewVectors(normalize(vector)...),
		Payload: qdrant.NewValueMap(map[string]any{
			"segment_id": id,
		}),
	}

	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Wait:           &waitUpsert,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %v", err)
	}
	return nil
}

// Search queries the collection and maps points back to segment IDs.
func (idx *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(query), idx.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	limit := uint64(k)
	points, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(normalize(query)...),
		Limit:          &limit,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{
				Enable: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search in Qdrant: %v", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, point := range points {
		hits = append(hits, Hit{
			ID:    point.Payload["segment_id"].GetStringValue(),
			Score: float64(point.Score),
		})
	}
	return hits, nil
}

// Len reports the number of points in the collection.
func (idx *QdrantIndex) Len(ctx context.Context) (int, error) {
	info, err := idx.client.GetCollectionInfo(ctx, idx.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection info: %v", err)
	}
	return int(info.GetPointsCount()), nil
}
