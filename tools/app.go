package tools

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/athapong/surgical-qa/pkg/confidence"
	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/athapong/surgical-qa/pkg/graph/processors"
	"github.com/athapong/surgical-qa/pkg/graph/storage"
	"github.com/athapong/surgical-qa/pkg/index"
	"github.com/athapong/surgical-qa/pkg/pipeline"
	"github.com/athapong/surgical-qa/pkg/retrieval"
	"github.com/athapong/surgical-qa/pkg/verify"
	"github.com/athapong/surgical-qa/services"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sashabaranov/go-openai"
)

// Component singletons, wired from the environment on first use. Tools share
// one graph, one index and one pipeline for the lifetime of the server.

var qdrantClient = sync.OnceValue(func() *qdrant.Client {
	host := os.Getenv("QDRANT_HOST")
	port := os.Getenv("QDRANT_PORT")
	apiKey := os.Getenv("QDRANT_API_KEY")
	if host == "" || port == "" {
		panic("QDRANT_HOST or QDRANT_PORT is not set, please set it in MCP Config")
	}

	portInt, err := strconv.Atoi(port)
	if err != nil {
		panic(fmt.Sprintf("failed to parse QDRANT_PORT: %v", err))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   portInt,
		APIKey: apiKey,
		UseTLS: apiKey != "",
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect to Qdrant: %v", err))
	}
	return client
})

var defaultEmbedder = sync.OnceValue(func() retrieval.Embedder {
	model := openai.EmbeddingModel(os.Getenv("EMBEDDING_MODEL"))
	if model == "" {
		model = openai.SmallEmbedding3
	}

	embedder, err := retrieval.NewOpenAIEmbedder(services.DefaultOpenAIClient(), model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
})

var defaultVectorIndex = sync.OnceValue(func() index.VectorIndex {
	dim := defaultEmbedder().Dimension()

	if os.Getenv("QDRANT_HOST") != "" {
		collection := os.Getenv("QDRANT_COLLECTION")
		if collection == "" {
			collection = "surgical_segments"
		}
		idx := index.NewQdrantIndex(qdrantClient(), collection, dim)
		if err := idx.EnsureCollection(context.Background()); err != nil {
			panic(fmt.Sprintf("failed to ensure Qdrant collection: %v", err))
		}
		return idx
	}
	return index.NewFlatIndex(dim)
})

var defaultKnowledgeGraph = sync.OnceValue(func() graph.KnowledgeGraph {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		store, err := storage.NewNeo4jStorage(uri, os.Getenv("NEO4J_USERNAME"), os.Getenv("NEO4J_PASSWORD"))
		if err != nil {
			panic(fmt.Sprintf("failed to create Neo4j storage: %v", err))
		}
		if err := store.Connect(context.Background()); err != nil {
			panic(fmt.Sprintf("failed to connect to Neo4j: %v", err))
		}
		return store
	}

	kg := graph.NewMemoryKnowledgeGraph()
	if path := os.Getenv("KG_SNAPSHOT_PATH"); path != "" {
		store := storage.NewJSONGraphStore(path)
		data, err := store.LoadGraph(context.Background())
		if err != nil {
			panic(fmt.Sprintf("failed to load graph snapshot %s: %v", path, err))
		}
		if err := kg.Import(context.Background(), data); err != nil {
			panic(fmt.Sprintf("failed to import graph snapshot: %v", err))
		}
	}
	return kg
})

var defaultSegmentStore = sync.OnceValue(func() retrieval.SegmentStore {
	return retrieval.NewMemorySegmentStore()
})

var defaultProcessor = sync.OnceValue(func() *processors.SurgicalProcessor {
	return processors.NewSurgicalProcessor()
})

var defaultRetriever = sync.OnceValue(func() *retrieval.HybridRetriever {
	return retrieval.NewHybridRetriever(
		defaultEmbedder(),
		defaultVectorIndex(),
		defaultKnowledgeGraph(),
		defaultSegmentStore(),
		retrievalConfigFromEnv(),
	)
})

func retrievalConfigFromEnv() retrieval.Config {
	config := retrieval.Config{}
	if v := os.Getenv("FUSION_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil {
			config.VectorWeight = w
		}
	}
	if v := os.Getenv("FUSION_GRAPH_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil {
			config.GraphWeight = w
		}
	}
	if v := os.Getenv("GRAPH_MAX_HOPS"); v != "" {
		if hops, err := strconv.Atoi(v); err == nil {
			config.MaxHops = hops
		}
	}
	return config
}

var defaultClaimExtractor = sync.OnceValue(func() verify.ClaimExtractor {
	rules := verify.NewRuleClaimExtractor(defaultProcessor())
	if os.Getenv("CLAIM_EXTRACTOR") == "llm" {
		model := os.Getenv("CLAIM_EXTRACTOR_MODEL")
		if model == "" {
			model = openai.GPT4oMini
		}
		return verify.NewLLMClaimExtractor(services.DefaultOpenAIClient(), model, rules)
	}
	return rules
})

var defaultVerifier = sync.OnceValue(func() *verify.GraphVerifier {
	return verify.NewGraphVerifier(defaultKnowledgeGraph())
})

var defaultGenerator = sync.OnceValue(func() pipeline.Generator {
	model := os.Getenv("GENERATOR_MODEL")
	if model == "" {
		model = openai.GPT4oMini
	}
	if os.Getenv("USE_DEEPSEEK_GENERATOR") == "true" {
		return pipeline.NewOpenAIGenerator(services.DefaultDeepseekClient(), "deepseek-chat")
	}
	return pipeline.NewOpenAIGenerator(services.DefaultOpenAIClient(), model)
})

var defaultPipeline = sync.OnceValue(func() *pipeline.AnswerPipeline {
	thresholds := confidence.DefaultThresholds()
	if v := os.Getenv("CONFIDENCE_ABSTAIN"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.Abstain = t
		}
	}
	if v := os.Getenv("CONFIDENCE_HIGH"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			thresholds.High = t
		}
	}

	return pipeline.NewAnswerPipeline(
		defaultRetriever(),
		defaultGenerator(),
		defaultClaimExtractor(),
		defaultVerifier(),
		confidence.NewEngine(thresholds),
		pipeline.Config{},
	)
})
