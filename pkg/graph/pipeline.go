package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	pipelineProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_processing_duration_seconds",
			Help: "Time spent processing documents in pipeline",
		},
		[]string{"status"},
	)

	documentProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_documents_processed_total",
			Help: "Total number of documents processed",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(pipelineProcessingDuration)
	prometheus.MustRegister(documentProcessedTotal)
}

// TextPipeline runs guideline documents through the configured processors
// and ingests the extracted entities and relations into a knowledge graph.
type TextPipeline struct {
	processors []DocumentProcessor
	mutex      sync.RWMutex
	logger     *logrus.Logger
	batchSize  int
}

// NewPipeline creates a new text processing pipeline.
func NewPipeline() *TextPipeline {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &TextPipeline{
		processors: make([]DocumentProcessor, 0),
		batchSize:  10,
		logger:     logger,
	}
}

// AddProcessor adds a new processor to the pipeline.
func (p *TextPipeline) AddProcessor(processor DocumentProcessor) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.processors = append(p.processors, processor)
}

// BatchProcess processes multiple documents concurrently in fixed-size
// batches.
func (p *TextPipeline) BatchProcess(ctx context.Context, docs []*Document) error {
	p.logger.WithField("document_count", len(docs)).Info("Starting batch processing")

	for i := 0; i < len(docs); i += p.batchSize {
		end := i + p.batchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := docs[i:end]
		errors := make(chan error, len(batch))
		var wg sync.WaitGroup

		for _, doc := range batch {
			wg.Add(1)
			go func(d *Document) {
				defer wg.Done()

				timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("processing"))
				err := p.Process(ctx, d)
				timer.ObserveDuration()

				if err != nil {
					p.logger.WithError(err).WithField("doc_id", d.ID).Error("Failed to process document")
					documentProcessedTotal.WithLabelValues("error").Inc()
					errors <- err
					return
				}

				documentProcessedTotal.WithLabelValues("success").Inc()
			}(doc)
		}

		wg.Wait()
		close(errors)

		for err := range errors {
			if err != nil {
				return fmt.Errorf("batch processing failed: %v", err)
			}
		}
	}

	p.logger.Info("Batch processing completed successfully")
	return nil
}

// Process runs the document through all processors, merging each
// processor's extracted entities and relations into the document.
func (p *TextPipeline) Process(ctx context.Context, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("cannot process nil document")
	}

	p.mutex.RLock()
	processors := p.processors
	p.mutex.RUnlock()

	if len(processors) == 0 {
		return fmt.Errorf("no processors configured in pipeline")
	}

	timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("single"))
	defer timer.ObserveDuration()

	for i, processor := range processors {
		processed, err := processor.Process(ctx, []byte(doc.Content), doc.Metadata)
		if err != nil {
			return fmt.Errorf("processor %d failed: %v", i, err)
		}
		doc.Entities = append(doc.Entities, processed.Entities...)
		doc.Relations = append(doc.Relations, processed.Relations...)
	}
	doc.ProcessedAt = time.Now()

	p.logger.WithFields(logrus.Fields{
		"doc_id":    doc.ID,
		"entities":  len(doc.Entities),
		"relations": len(doc.Relations),
	}).Info("Document processing completed")
	return nil
}

// Ingest upserts a processed document's entities and relations into the
// graph and links entities back to the segments that mention them.
// Relations produced by processors reference entities by name; they are
// resolved here. Unresolvable relations are skipped by the graph's
// graceful-degradation rule.
func Ingest(ctx context.Context, kg KnowledgeGraph, doc *Document) error {
	nameToID := make(map[string]string, len(doc.Entities))

	for i := range doc.Entities {
		entity := doc.Entities[i]
		entity.Sources = appendUnique(entity.Sources, doc.ID)
		id, err := kg.UpsertEntity(ctx, &entity)
		if err != nil {
			return fmt.Errorf("upsert entity %q: %w", entity.Name, err)
		}
		nameToID[NormalizeName(entity.Name)] = id

		for _, seg := range doc.Segments {
			if containsTerm(NormalizeName(seg.Text), NormalizeName(entity.Name)) {
				if err := kg.LinkSegment(ctx, id, seg.ID); err != nil {
					return err
				}
			}
		}
	}

	for i := range doc.Relations {
		rel := doc.Relations[i]
		rel.From = nameToID[NormalizeName(rel.From)]
		rel.To = nameToID[NormalizeName(rel.To)]
		rel.Source = doc.ID
		if err := kg.UpsertRelationship(ctx, &rel); err != nil {
			return fmt.Errorf("upsert relationship: %w", err)
		}
	}
	return nil
}
