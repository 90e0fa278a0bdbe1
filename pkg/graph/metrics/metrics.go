package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_goroutines",
		Help: "Number of goroutines",
	})

	// Pipeline metrics
	PipelineQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_queue_length",
		Help: "Number of documents waiting to be processed",
	})

	DocumentProcessingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_processing_errors_total",
			Help: "Total number of document processing errors",
		},
		[]string{"processor", "error_type"},
	)

	// Graph metrics
	GraphNodeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graph_nodes_total",
			Help: "Total number of nodes in the graph",
		},
		[]string{"node_type"},
	)

	GraphEdgeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graph_edges_total",
			Help: "Total number of edges in the graph",
		},
		[]string{"edge_type"},
	)

	// Retrieval metrics
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_duration_seconds",
			Help:    "Time spent in each retrieval stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	RetrievalFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrieval_graph_fallbacks_total",
		Help: "Number of retrievals that degraded to vector-only mode",
	})

	// Verification metrics
	ClaimsVerified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_verified_total",
			Help: "Total number of claims checked against the graph",
		},
		[]string{"category", "verdict"},
	)

	// Answer metrics
	AnswerDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_decisions_total",
			Help: "Answer decisions by outcome and reason",
		},
		[]string{"decision", "reason"},
	)

	GenerationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generation_retries_total",
		Help: "Number of answer generation retries",
	})
)

// UpdateSystemMetrics updates system-level metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
