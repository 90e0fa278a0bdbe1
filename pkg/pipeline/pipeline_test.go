package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/athapong/surgical-qa/pkg/confidence"
	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/athapong/surgical-qa/pkg/index"
	"github.com/athapong/surgical-qa/pkg/retrieval"
	"github.com/athapong/surgical-qa/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns fixed vectors per text, defaulting to the first axis.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0, 0}, nil
}

func (e stubEmbedder) Dimension() int { return 4 }

// scriptedGenerator fails its first failures calls, then answers.
type scriptedGenerator struct {
	mu       sync.Mutex
	calls    int
	failures int
	text     string
}

func (g *scriptedGenerator) Generate(ctx context.Context, query string, segments []retrieval.ScoredSegment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.failures {
		return "", fmt.Errorf("model overloaded")
	}
	return g.text, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// scriptedExtractor returns fixed claims regardless of the answer text.
type scriptedExtractor struct {
	claims []verify.Claim
	err    error
}

func (e scriptedExtractor) ExtractClaims(ctx context.Context, answer string) ([]verify.Claim, error) {
	return e.claims, e.err
}

// cancellingExtractor simulates the caller disconnecting while claims are
// being extracted.
type cancellingExtractor struct {
	cancel context.CancelFunc
}

func (e cancellingExtractor) ExtractClaims(ctx context.Context, answer string) ([]verify.Claim, error) {
	e.cancel()
	return nil, ctx.Err()
}

type fixture struct {
	kg        graph.KnowledgeGraph
	retriever *retrieval.HybridRetriever
	generator *scriptedGenerator
}

// newFixture builds a small corpus about cholecystectomy: two linked
// segments, one unrelated, over a graph with a known MAY_CAUSE edge.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	kg := graph.NewMemoryKnowledgeGraph()
	ids := make(map[string]string)
	for _, e := range []graph.Entity{
		{Type: graph.EntityProcedure, Name: "cholecystectomy"},
		{Type: graph.EntityComplication, Name: "bile leak"},
		{Type: graph.EntityMedication, Name: "cefazolin"},
		{Type: graph.EntityComplication, Name: "infection"},
	} {
		id, err := kg.UpsertEntity(ctx, &e)
		require.NoError(t, err)
		ids[e.Name] = id
	}
	require.NoError(t, kg.UpsertRelationship(ctx, &graph.Relationship{
		Type: graph.RelationMayCause, From: ids["cholecystectomy"], To: ids["bile leak"], Confidence: 0.9,
	}))
	require.NoError(t, kg.UpsertRelationship(ctx, &graph.Relationship{
		Type: graph.RelationPrevents, From: ids["cefazolin"], To: ids["infection"], Confidence: 0.9,
	}))

	vectors := index.NewFlatIndex(4)
	segments := retrieval.NewMemorySegmentStore()
	corpus := []struct {
		id     string
		text   string
		vector []float32
		entity string
	}{
		{"seg-proc", "Laparoscopic cholecystectomy removes the gallbladder.", []float32{1, 0, 0, 0}, "cholecystectomy"},
		{"seg-leak", "Bile leak is managed with drainage.", []float32{0.2, 0.1, 0.9, 0}, "bile leak"},
		{"seg-unrelated", "Operating room scheduling notes.", []float32{0, 1, 0, 0}, ""},
	}
	for _, c := range corpus {
		require.NoError(t, segments.PutSegment(ctx, &graph.TextSegment{ID: c.id, DocumentID: "doc-1", Text: c.text}))
		require.NoError(t, vectors.Add(ctx, c.id, c.vector))
		if c.entity != "" {
			require.NoError(t, kg.LinkSegment(ctx, ids[c.entity], c.id))
		}
	}

	embedder := stubEmbedder{vectors: map[string][]float32{
		"off-topic question": {0, 0, 0, 1},
	}}
	retriever := retrieval.NewHybridRetriever(embedder, vectors, kg, segments, retrieval.Config{})
	return &fixture{
		kg:        kg,
		retriever: retriever,
		generator: &scriptedGenerator{text: "Cholecystectomy may cause bile leak."},
	}
}

func (f *fixture) pipeline(extractor verify.ClaimExtractor) *AnswerPipeline {
	return NewAnswerPipeline(
		f.retriever,
		f.generator,
		extractor,
		verify.NewGraphVerifier(f.kg),
		confidence.NewEngine(confidence.DefaultThresholds()),
		Config{GenerationTimeout: time.Second},
	)
}

func supportedClaim() verify.Claim {
	return verify.Claim{
		Text:     "Cholecystectomy may cause bile leak.",
		Category: verify.CategoryComplication,
		Subject:  "cholecystectomy",
		Relation: graph.RelationMayCause,
		Object:   "bile leak",
	}
}

func TestAsk_AnswersWithHighConfidence(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.pipeline(scriptedExtractor{claims: []verify.Claim{supportedClaim()}})

	answer, err := p.Ask(context.Background(), "What complications can cholecystectomy cause?")
	require.NoError(t, err)

	assert.Equal(t, confidence.DecisionAnswer, answer.Outcome.Decision)
	assert.Equal(t, confidence.LevelHigh, answer.Outcome.Level)
	assert.Equal(t, f.generator.text, answer.Text)
	assert.Equal(t, 1, f.generator.callCount())
	require.NotNil(t, answer.Report)
	assert.Equal(t, 1.0, answer.Report.Score)
	assert.NotEmpty(t, answer.Sources)
	assert.False(t, answer.Degraded)
}

func TestAsk_RetriesGenerationOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.generator.failures = 1
	p := f.pipeline(scriptedExtractor{claims: []verify.Claim{supportedClaim()}})

	answer, err := p.Ask(context.Background(), "What complications can cholecystectomy cause?")
	require.NoError(t, err)

	assert.Equal(t, 2, f.generator.callCount())
	assert.Equal(t, confidence.DecisionAnswer, answer.Outcome.Decision)
	assert.Equal(t, f.generator.text, answer.Text)
}

func TestAsk_AbstainsWhenGenerationKeepsFailing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.generator.failures = 2
	p := f.pipeline(scriptedExtractor{claims: []verify.Claim{supportedClaim()}})

	answer, err := p.Ask(context.Background(), "What complications can cholecystectomy cause?")
	require.NoError(t, err)

	assert.Equal(t, 2, f.generator.callCount())
	assert.Equal(t, confidence.DecisionAbstain, answer.Outcome.Decision)
	assert.Equal(t, confidence.ReasonGenerationFailed, answer.Outcome.Reason)
	assert.Empty(t, answer.Text)
}

func TestAsk_PropagatesCancellationDuringVerification(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := f.pipeline(cancellingExtractor{cancel: cancel})

	answer, err := p.Ask(ctx, "What complications can cholecystectomy cause?")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, answer)
}

func TestAsk_AbstainsOnUnsupportedClaims(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// The generated answer invents a medication the corpus never mentioned.
	p := f.pipeline(scriptedExtractor{claims: []verify.Claim{{
		Text:     "Warfarin prevents bile leak.",
		Category: verify.CategoryMedication,
		Subject:  "warfarin",
		Relation: graph.RelationPrevents,
		Object:   "bile leak",
	}}})

	answer, err := p.Ask(context.Background(), "What complications can cholecystectomy cause?")
	require.NoError(t, err)

	assert.Equal(t, confidence.DecisionAbstain, answer.Outcome.Decision)
	assert.Equal(t, confidence.ReasonVerificationFailed, answer.Outcome.Reason)
	assert.Empty(t, answer.Text)
	require.NotNil(t, answer.Report)
	assert.Len(t, answer.Report.Unsupported, 1)
}

func TestAsk_CapsAtLowWhenVerificationUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.pipeline(scriptedExtractor{err: fmt.Errorf("extractor backend down")})

	answer, err := p.Ask(context.Background(), "What complications can cholecystectomy cause?")
	require.NoError(t, err)

	assert.Equal(t, confidence.DecisionAnswer, answer.Outcome.Decision)
	assert.Equal(t, confidence.LevelLow, answer.Outcome.Level)
	assert.Equal(t, confidence.ReasonVerificationUnavailable, answer.Outcome.Reason)
	assert.Equal(t, f.generator.text, answer.Text)
}

func TestAsk_AbstainsWithoutEvidence(t *testing.T) {
	t.Parallel()
	kg := graph.NewMemoryKnowledgeGraph()
	retriever := retrieval.NewHybridRetriever(
		stubEmbedder{}, index.NewFlatIndex(4), kg, retrieval.NewMemorySegmentStore(), retrieval.Config{})
	generator := &scriptedGenerator{text: "should never be produced"}
	p := NewAnswerPipeline(
		retriever, generator, scriptedExtractor{},
		verify.NewGraphVerifier(kg),
		confidence.NewEngine(confidence.DefaultThresholds()),
		Config{},
	)

	answer, err := p.Ask(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, confidence.DecisionAbstain, answer.Outcome.Decision)
	assert.Equal(t, confidence.ReasonNoEvidence, answer.Outcome.Reason)
	assert.Zero(t, generator.callCount(), "generation must not run without evidence")
}

func TestAsk_AbstainsOnWeakRetrieval(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.pipeline(scriptedExtractor{claims: []verify.Claim{supportedClaim()}})

	// The query embeds orthogonally to the whole corpus and mentions no
	// graph entity, so every fused score is zero.
	answer, err := p.Ask(context.Background(), "off-topic question")
	require.NoError(t, err)

	assert.Equal(t, confidence.DecisionAbstain, answer.Outcome.Decision)
	assert.Equal(t, confidence.ReasonWeakRetrieval, answer.Outcome.Reason)
	assert.Zero(t, f.generator.callCount(), "generation must not run on weak retrieval")
}

func TestAsk_HonorsCancellation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.pipeline(scriptedExtractor{claims: []verify.Claim{supportedClaim()}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer, err := p.Ask(ctx, "What complications can cholecystectomy cause?")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, answer)
}
