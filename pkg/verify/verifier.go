package verify

import (
	"context"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/athapong/surgical-qa/pkg/graph/metrics"
	"github.com/sirupsen/logrus"
)

// GraphVerifier checks extracted claims against the knowledge graph. Each
// claim gets a graded score: a confirmed relationship scores 1.0, known
// entities with an unconfirmed relationship score 0.5 (weak support), and a
// claim mentioning an entity the graph has never seen scores 0.0. The
// aggregate is the severity-weighted mean.
type GraphVerifier struct {
	kg     graph.KnowledgeGraph
	logger *logrus.Logger
}

func NewGraphVerifier(kg graph.KnowledgeGraph) *GraphVerifier {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &GraphVerifier{kg: kg, logger: logger}
}

// Verify checks each claim and aggregates. An empty claim list yields a
// neutral report: no evidence either way. Graph failures propagate as
// graph.ErrGraphUnavailable so the caller can cap confidence instead of
// pretending the answer was checked.
func (v *GraphVerifier) Verify(ctx context.Context, claims []Claim) (*Report, error) {
	report := &Report{
		Claims: make([]CheckedClaim, 0, len(claims)),
	}
	if len(claims) == 0 {
		report.Score = ScoreNeutral
		return report, nil
	}

	var weightedSum, totalWeight float64
	categorySum := make(map[Category]float64)
	categoryCount := make(map[Category]int)
	for _, claim := range claims {
		checked, err := v.checkClaim(ctx, claim)
		if err != nil {
			return nil, err
		}

		weight := claim.Category.Weight()
		weightedSum += weight * checked.Score
		totalWeight += weight
		categorySum[claim.Category] += checked.Score
		categoryCount[claim.Category]++
		report.Claims = append(report.Claims, checked)
		if checked.Verdict == VerdictUnsupported {
			report.Unsupported = append(report.Unsupported, claim)
		}
		metrics.ClaimsVerified.WithLabelValues(string(claim.Category), string(checked.Verdict)).Inc()
	}

	report.Score = weightedSum / totalWeight
	report.ByCategory = make(map[Category]float64, len(categorySum))
	for category, sum := range categorySum {
		report.ByCategory[category] = sum / float64(categoryCount[category])
	}
	if len(report.Unsupported) > 0 {
		v.logger.WithFields(logrus.Fields{
			"unsupported": len(report.Unsupported),
			"total":       len(claims),
			"score":       report.Score,
		}).Warn("Answer contains claims about entities the knowledge graph does not know")
	}
	return report, nil
}

func (v *GraphVerifier) checkClaim(ctx context.Context, claim Claim) (CheckedClaim, error) {
	if !claim.Checkable() {
		return CheckedClaim{Claim: claim, Verdict: VerdictNeutral, Score: ScoreNeutral}, nil
	}

	if claim.HasRelation() {
		exists, err := v.kg.RelationshipExists(ctx, claim.Subject, claim.Relation, claim.Object)
		if err != nil {
			return CheckedClaim{}, err
		}
		if exists {
			return CheckedClaim{Claim: claim, Verdict: VerdictSupported, Score: ScoreSupported}, nil
		}
	}

	// The relationship is unasserted or unconfirmed. Entity existence decides
	// between weak support and a flagged hallucination: a claim about an
	// entity the corpus never mentioned cannot be grounded at all.
	for _, name := range []string{claim.Subject, claim.Object} {
		if name == "" {
			continue
		}
		known, err := v.kg.EntityExists(ctx, name)
		if err != nil {
			return CheckedClaim{}, err
		}
		if !known {
			return CheckedClaim{Claim: claim, Verdict: VerdictUnsupported, Score: ScoreUnsupported}, nil
		}
	}
	return CheckedClaim{Claim: claim, Verdict: VerdictNeutral, Score: ScoreNeutral}, nil
}
