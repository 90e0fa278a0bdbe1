package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athapong/surgical-qa/pkg/confidence"
	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/athapong/surgical-qa/pkg/graph/metrics"
	"github.com/athapong/surgical-qa/pkg/retrieval"
	"github.com/athapong/surgical-qa/pkg/verify"
	"github.com/sirupsen/logrus"
)

// Config tunes the answer pipeline.
type Config struct {
	TopK              int           // segments fed to the generator
	GenerationTimeout time.Duration // per attempt
	MaxConcurrent     int           // in-flight questions
}

const (
	defaultTopK              = 5
	defaultGenerationTimeout = 30 * time.Second
	defaultMaxConcurrent     = 8
)

func (c Config) withDefaults() Config {
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = defaultGenerationTimeout
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	return c
}

// Answer is the uniform response payload: the same fields come back whether
// the pipeline answered or abstained.
type Answer struct {
	Query    string                    `json:"query"`
	Text     string                    `json:"text,omitempty"` // empty when abstaining
	Outcome  confidence.Outcome        `json:"outcome"`
	Report   *verify.Report            `json:"verification,omitempty"`
	Sources  []retrieval.ScoredSegment `json:"sources,omitempty"`
	Degraded bool                      `json:"degraded"` // graph was unavailable during retrieval
}

// AnswerPipeline runs retrieve, generate, verify, decide. Generation gets
// one retry; the whole question respects caller cancellation and a bounded
// number of questions run at once.
type AnswerPipeline struct {
	retriever *retrieval.HybridRetriever
	generator Generator
	extractor verify.ClaimExtractor
	verifier  *verify.GraphVerifier
	engine    *confidence.Engine
	config    Config
	semaphore chan struct{}
	logger    *logrus.Logger
}

func NewAnswerPipeline(
	retriever *retrieval.HybridRetriever,
	generator Generator,
	extractor verify.ClaimExtractor,
	verifier *verify.GraphVerifier,
	engine *confidence.Engine,
	config Config,
) *AnswerPipeline {
	config = config.withDefaults()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &AnswerPipeline{
		retriever: retriever,
		generator: generator,
		extractor: extractor,
		verifier:  verifier,
		engine:    engine,
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrent),
		logger:    logger,
	}
}

// Ask answers one question. Abstentions are not errors: the returned Answer
// carries the decision and its reason either way. An error means the
// pipeline itself failed (embedding, cancellation) and no decision was made.
func (p *AnswerPipeline) Ask(ctx context.Context, query string) (*Answer, error) {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result, err := p.retriever.Retrieve(ctx, query, p.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	answer := &Answer{Query: query, Degraded: result.Degraded, Sources: result.Segments}

	// Gate on evidence before spending a generation call.
	pre := p.engine.Decide(confidence.Input{
		VerificationScore: verify.ScoreNeutral,
		VerificationOK:    true,
		TopRetrieval:      result.TopScore(),
		SegmentCount:      len(result.Segments),
	})
	if pre.Decision == confidence.DecisionAbstain && pre.Reason != confidence.ReasonVerificationFailed {
		answer.Outcome = pre
		p.record(answer)
		return answer, nil
	}

	text, err := p.generateWithRetry(ctx, query, result.Segments)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.WithError(err).Error("Answer generation failed after retry")
		answer.Outcome = confidence.Outcome{
			Decision: confidence.DecisionAbstain,
			Reason:   confidence.ReasonGenerationFailed,
		}
		p.record(answer)
		return answer, nil
	}

	report, verificationOK, err := p.verify(ctx, text)
	if err != nil {
		return nil, err
	}
	answer.Report = report

	answer.Outcome = p.engine.Decide(confidence.Input{
		VerificationScore: report.Score,
		VerificationOK:    verificationOK,
		TopRetrieval:      result.TopScore(),
		SegmentCount:      len(result.Segments),
	})
	if answer.Outcome.Decision == confidence.DecisionAnswer {
		answer.Text = text
	}
	p.record(answer)
	return answer, nil
}

// generateWithRetry calls the generator with a per-attempt timeout and one
// retry on failure.
func (p *AnswerPipeline) generateWithRetry(ctx context.Context, query string, segments []retrieval.ScoredSegment) (string, error) {
	text, err := p.generateOnce(ctx, query, segments)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", err
	}

	metrics.GenerationRetries.Inc()
	p.logger.WithError(err).Warn("Generation attempt failed, retrying once")
	return p.generateOnce(ctx, query, segments)
}

func (p *AnswerPipeline) generateOnce(ctx context.Context, query string, segments []retrieval.ScoredSegment) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.config.GenerationTimeout)
	defer cancel()
	return p.generator.Generate(attemptCtx, query, segments)
}

// verify extracts and checks claims. A cancelled caller propagates as an
// error; any other failure makes the answer unverifiable, not wrong: the
// report comes back neutral with verificationOK false so the gate caps
// confidence at LOW.
func (p *AnswerPipeline) verify(ctx context.Context, text string) (*verify.Report, bool, error) {
	claims, err := p.extractor.ExtractClaims(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		p.logger.WithError(err).Warn("Claim extraction failed, answer is unverifiable")
		return &verify.Report{Score: verify.ScoreNeutral}, false, nil
	}

	report, err := p.verifier.Verify(ctx, claims)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if errors.Is(err, graph.ErrGraphUnavailable) {
			p.logger.Warn("Knowledge graph unavailable, answer is unverifiable")
		} else {
			p.logger.WithError(err).Warn("Verification failed, answer is unverifiable")
		}
		return &verify.Report{Score: verify.ScoreNeutral}, false, nil
	}
	return report, true, nil
}

func (p *AnswerPipeline) record(answer *Answer) {
	metrics.AnswerDecisions.WithLabelValues(
		string(answer.Outcome.Decision),
		string(answer.Outcome.Reason),
	).Inc()

	p.logger.WithFields(logrus.Fields{
		"query":    answer.Query,
		"decision": answer.Outcome.Decision,
		"level":    answer.Outcome.Level,
		"reason":   answer.Outcome.Reason,
		"score":    answer.Outcome.Score,
		"degraded": answer.Degraded,
	}).Info("Answer decision")
}
