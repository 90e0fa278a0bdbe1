package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDecide(t *testing.T) {
	t.Parallel()
	engine := NewEngine(DefaultThresholds())

	tests := []struct {
		name     string
		in       Input
		decision Decision
		level    Level
		reason   Reason
	}{
		{
			name:     "no segments abstains before anything else",
			in:       Input{VerificationScore: 1.0, VerificationOK: true, TopRetrieval: 1.0, SegmentCount: 0},
			decision: DecisionAbstain,
			reason:   ReasonNoEvidence,
		},
		{
			name:     "weak retrieval abstains even with perfect verification",
			in:       Input{VerificationScore: 1.0, VerificationOK: true, TopRetrieval: 0.1, SegmentCount: 3},
			decision: DecisionAbstain,
			reason:   ReasonWeakRetrieval,
		},
		{
			name:     "unverifiable answer passes but is capped at low",
			in:       Input{VerificationScore: 0.5, VerificationOK: false, TopRetrieval: 0.9, SegmentCount: 3},
			decision: DecisionAnswer,
			level:    LevelLow,
			reason:   ReasonVerificationUnavailable,
		},
		{
			name:     "verification below threshold abstains",
			in:       Input{VerificationScore: 0.4, VerificationOK: true, TopRetrieval: 0.9, SegmentCount: 3},
			decision: DecisionAbstain,
			reason:   ReasonVerificationFailed,
		},
		{
			name:     "mid verification answers low",
			in:       Input{VerificationScore: 0.6, VerificationOK: true, TopRetrieval: 0.9, SegmentCount: 3},
			decision: DecisionAnswer,
			level:    LevelLow,
		},
		{
			name:     "strong verification answers high",
			in:       Input{VerificationScore: 0.95, VerificationOK: true, TopRetrieval: 0.9, SegmentCount: 3},
			decision: DecisionAnswer,
			level:    LevelHigh,
		},
		{
			name:     "abstain boundary is inclusive of the threshold",
			in:       Input{VerificationScore: 0.5, VerificationOK: true, TopRetrieval: 0.9, SegmentCount: 1},
			decision: DecisionAnswer,
			level:    LevelLow,
		},
		{
			name:     "high boundary is inclusive of the threshold",
			in:       Input{VerificationScore: 0.8, VerificationOK: true, TopRetrieval: 0.9, SegmentCount: 1},
			decision: DecisionAnswer,
			level:    LevelHigh,
		},
		{
			name:     "retrieval floor boundary passes",
			in:       Input{VerificationScore: 0.9, VerificationOK: true, TopRetrieval: 0.25, SegmentCount: 1},
			decision: DecisionAnswer,
			level:    LevelHigh,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := engine.Decide(tt.in)
			assert.Equal(t, tt.decision, out.Decision)
			assert.Equal(t, tt.level, out.Level)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestDecide_VerificationDominates(t *testing.T) {
	t.Parallel()
	engine := NewEngine(DefaultThresholds())

	rapid.Check(t, func(t *rapid.T) {
		in := Input{
			VerificationScore: rapid.Float64Range(0, 1).Draw(t, "verification"),
			VerificationOK:    true,
			TopRetrieval:      rapid.Float64Range(0.25, 1).Draw(t, "retrieval"),
			SegmentCount:      rapid.IntRange(1, 10).Draw(t, "segments"),
		}
		out := engine.Decide(in)

		if in.VerificationScore < 0.5 {
			assert.Equal(t, DecisionAbstain, out.Decision)
			assert.Equal(t, ReasonVerificationFailed, out.Reason)
		} else {
			assert.Equal(t, DecisionAnswer, out.Decision)
		}
		if out.Level == LevelHigh {
			assert.GreaterOrEqual(t, in.VerificationScore, 0.8)
		}
	})
}
