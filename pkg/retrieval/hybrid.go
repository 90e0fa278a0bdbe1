package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/athapong/surgical-qa/pkg/graph/metrics"
	"github.com/athapong/surgical-qa/pkg/index"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Config tunes the hybrid retriever. Zero values fall back to the defaults
// below.
type Config struct {
	VectorWeight    float64       // weight of the dense similarity score
	GraphWeight     float64       // weight of the graph proximity score
	MaxHops         int           // traversal depth from query entities
	OverFetchFactor int           // vector candidates fetched per requested result
	EmbedTimeout    time.Duration // per attempt, one retry
}

const (
	defaultVectorWeight    = 0.6
	defaultGraphWeight     = 0.4
	defaultMaxHops         = 2
	defaultOverFetchFactor = 2
	defaultEmbedTimeout    = 10 * time.Second
)

// withDefaults fills zero values and keeps the fusion weights summing to 1:
// a single configured weight implies its complement, and a pair that sums to
// something else is normalized.
func (c Config) withDefaults() Config {
	switch {
	case c.VectorWeight == 0 && c.GraphWeight == 0:
		c.VectorWeight = defaultVectorWeight
		c.GraphWeight = defaultGraphWeight
	case c.VectorWeight == 0:
		c.VectorWeight = 1 - c.GraphWeight
	case c.GraphWeight == 0:
		c.GraphWeight = 1 - c.VectorWeight
	}
	if sum := c.VectorWeight + c.GraphWeight; sum > 0 && sum != 1 {
		c.VectorWeight /= sum
		c.GraphWeight /= sum
	}
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = defaultEmbedTimeout
	}
	if c.MaxHops == 0 {
		c.MaxHops = defaultMaxHops
	}
	if c.OverFetchFactor == 0 {
		c.OverFetchFactor = defaultOverFetchFactor
	}
	return c
}

// HybridRetriever fuses dense vector search with knowledge graph traversal.
// The vector stage recalls semantically similar segments; the graph stage
// pulls in segments tied to entities near the query's entities, which the
// embedding may have missed. When the graph backend is down retrieval
// degrades to vector-only and flags the result.
type HybridRetriever struct {
	embedder Embedder
	vectors  index.VectorIndex
	kg       graph.KnowledgeGraph
	segments SegmentStore
	config   Config
	logger   *logrus.Logger
}

func NewHybridRetriever(embedder Embedder, vectors index.VectorIndex, kg graph.KnowledgeGraph, segments SegmentStore, config Config) *HybridRetriever {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &HybridRetriever{
		embedder: embedder,
		vectors:  vectors,
		kg:       kg,
		segments: segments,
		config:   config.withDefaults(),
		logger:   logger,
	}
}

// Retrieve returns the top k segments for the query, scored by the weighted
// fusion of vector similarity and graph proximity.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) (*Result, error) {
	if k <= 0 {
		return &Result{Segments: []ScoredSegment{}}, nil
	}

	vectorScores, order, err := r.vectorStage(ctx, query, k)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	graphScores := make(map[string]float64)
	entities, graphErr := r.graphStage(ctx, query, graphScores)
	switch {
	case graphErr == nil:
		result.Entities = entities
	case errors.Is(graphErr, graph.ErrGraphUnavailable):
		r.logger.WithFields(logrus.Fields{
			"query": query,
			"error": graphErr.Error(),
		}).Warn("Knowledge graph unavailable, falling back to vector-only retrieval")
		metrics.RetrievalFallbacks.Inc()
		result.Degraded = true
		graphScores = map[string]float64{}
	default:
		return nil, graphErr
	}

	// Union of both candidate sets. Graph-only candidates keep the stable
	// order of the traversal so ties stay deterministic.
	for _, id := range sortedKeys(graphScores) {
		if _, seen := vectorScores[id]; !seen {
			order = append(order, id)
			vectorScores[id] = 0
		}
	}

	scored := make([]ScoredSegment, 0, len(order))
	for _, id := range order {
		segment, err := r.segments.GetSegment(ctx, id)
		if err != nil {
			// Index and store can briefly disagree during ingestion.
			r.logger.WithField("segment", id).Warn("Dropping candidate with no stored text")
			continue
		}
		vs := vectorScores[id]
		gs := graphScores[id]
		scored = append(scored, ScoredSegment{
			Segment:     *segment,
			VectorScore: vs,
			GraphScore:  gs,
			FusedScore:  r.config.VectorWeight*vs + r.config.GraphWeight*gs,
		})
	}

	// Stable sort over candidates already in deterministic order: equal
	// fused scores fall back to vector score, then to candidate order.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FusedScore != scored[j].FusedScore {
			return scored[i].FusedScore > scored[j].FusedScore
		}
		return scored[i].VectorScore > scored[j].VectorScore
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	result.Segments = scored
	return result, nil
}

// vectorStage embeds the query and over-fetches candidates from the index.
// It returns per-segment scores plus the candidate order.
func (r *HybridRetriever) vectorStage(ctx context.Context, query string, k int) (map[string]float64, []string, error) {
	timer := prometheus.NewTimer(metrics.RetrievalDuration.WithLabelValues("vector"))
	defer timer.ObserveDuration()

	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.vectors.Search(ctx, embedding, k*r.config.OverFetchFactor)
	if err != nil {
		return nil, nil, fmt.Errorf("vector search failed: %w", err)
	}

	scores := make(map[string]float64, len(hits))
	order := make([]string, 0, len(hits))
	for _, hit := range hits {
		scores[hit.ID] = hit.Score
		order = append(order, hit.ID)
	}
	return scores, order, nil
}

// embedQuery calls the embedder with a per-attempt deadline and one retry.
// A backend that ignores its context still cannot stall the query past the
// deadline; the losing call is abandoned.
func (r *HybridRetriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embedding, err := r.embedOnce(ctx, query)
	if err == nil {
		return embedding, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	r.logger.WithError(err).Warn("Embedding attempt failed, retrying once")
	return r.embedOnce(ctx, query)
}

func (r *HybridRetriever) embedOnce(ctx context.Context, query string) ([]float32, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.config.EmbedTimeout)
	defer cancel()

	type embedResult struct {
		vector []float32
		err    error
	}
	done := make(chan embedResult, 1)
	go func() {
		vector, err := r.embedder.Embed(attemptCtx, query)
		done <- embedResult{vector: vector, err: err}
	}()

	select {
	case res := <-done:
		return res.vector, res.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("embedding timed out: %w", attemptCtx.Err())
	}
}

// graphStage finds the query's entities, expands the graph around them, and
// accumulates proximity scores onto the segments that mention each reached
// entity. A segment collects 1/(1+hops) per entity, capped at 1.0.
func (r *HybridRetriever) graphStage(ctx context.Context, query string, scores map[string]float64) ([]graph.Entity, error) {
	timer := prometheus.NewTimer(metrics.RetrievalDuration.WithLabelValues("graph"))
	defer timer.ObserveDuration()

	seeds, err := r.kg.FindEntities(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	seedIDs := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		seedIDs = append(seedIDs, seed.ID)
	}

	reached, err := r.kg.Traverse(ctx, seedIDs, r.config.MaxHops, true)
	if err != nil {
		return nil, err
	}

	for _, node := range reached {
		contribution := 1.0 / float64(1+node.Hops)
		for _, segmentID := range node.Entity.Segments {
			scores[segmentID] += contribution
			if scores[segmentID] > 1.0 {
				scores[segmentID] = 1.0
			}
		}
	}
	return seeds, nil
}

// RetrieveByEntity returns segments that mention the named entity, nearest
// graph neighbors included. It bypasses the vector stage entirely.
func (r *HybridRetriever) RetrieveByEntity(ctx context.Context, entityName string, k int) (*Result, error) {
	matches, err := r.kg.SearchEntities(ctx, entityName)
	if err != nil {
		if errors.Is(err, graph.ErrGraphUnavailable) {
			return &Result{Segments: []ScoredSegment{}, Degraded: true}, nil
		}
		return nil, err
	}
	if len(matches) == 0 {
		return &Result{Segments: []ScoredSegment{}}, nil
	}

	scores := make(map[string]float64)
	seedIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		seedIDs = append(seedIDs, m.ID)
	}
	reached, err := r.kg.Traverse(ctx, seedIDs, r.config.MaxHops, true)
	if err != nil {
		return nil, err
	}
	for _, node := range reached {
		contribution := 1.0 / float64(1+node.Hops)
		for _, segmentID := range node.Entity.Segments {
			scores[segmentID] += contribution
			if scores[segmentID] > 1.0 {
				scores[segmentID] = 1.0
			}
		}
	}

	scored := make([]ScoredSegment, 0, len(scores))
	for _, id := range sortedKeys(scores) {
		segment, err := r.segments.GetSegment(ctx, id)
		if err != nil {
			continue
		}
		scored = append(scored, ScoredSegment{
			Segment:    *segment,
			GraphScore: scores[id],
			FusedScore: r.config.GraphWeight * scores[id],
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FusedScore > scored[j].FusedScore
	})
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return &Result{Segments: scored, Entities: matches}, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
