// Package confidence decides whether an answer is trustworthy enough to
// show. Verification dominates: strong retrieval never rescues an answer
// the knowledge graph cannot ground.
package confidence

// Thresholds hold the decision boundaries. All scores live in [0, 1].
type Thresholds struct {
	// Abstain is the verification score below which the system refuses to
	// answer.
	Abstain float64
	// High is the verification score at or above which an answer is
	// labeled high confidence.
	High float64
	// RetrievalFloor is the minimum top fused retrieval score; below it
	// the corpus does not cover the question.
	RetrievalFloor float64
}

// DefaultThresholds returns the production boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Abstain:        0.5,
		High:           0.8,
		RetrievalFloor: 0.25,
	}
}

// Decision is the outcome of the confidence gate.
type Decision string

const (
	DecisionAnswer  Decision = "ANSWER"
	DecisionAbstain Decision = "ABSTAIN"
)

// Level grades an answered response.
type Level string

const (
	LevelHigh Level = "HIGH"
	LevelLow  Level = "LOW"
)

// Reason names why the gate abstained or capped confidence.
type Reason string

const (
	ReasonVerificationFailed      Reason = "verification_below_threshold"
	ReasonWeakRetrieval           Reason = "retrieval_below_floor"
	ReasonNoEvidence              Reason = "no_supporting_segments"
	ReasonVerificationUnavailable Reason = "verification_unavailable"
	ReasonGenerationFailed        Reason = "generation_failed"
)

// Outcome is the full result of a confidence decision.
type Outcome struct {
	Decision Decision `json:"decision"`
	Level    Level    `json:"level,omitempty"` // set only when answering
	Reason   Reason   `json:"reason,omitempty"`
	Score    float64  `json:"score"` // the verification score the decision rests on
}

// Engine applies the thresholds.
type Engine struct {
	thresholds Thresholds
}

func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{thresholds: thresholds}
}

// Input carries the signals the gate looks at. VerificationOK is false when
// the graph was unavailable and the answer could not be checked.
type Input struct {
	VerificationScore float64
	VerificationOK    bool
	TopRetrieval      float64
	SegmentCount      int
}

// Decide applies the gate. Order matters: lack of evidence abstains before
// verification is even consulted, and an unverifiable answer can pass but
// never above LOW.
func (e *Engine) Decide(in Input) Outcome {
	if in.SegmentCount == 0 {
		return Outcome{Decision: DecisionAbstain, Reason: ReasonNoEvidence}
	}
	if in.TopRetrieval < e.thresholds.RetrievalFloor {
		return Outcome{Decision: DecisionAbstain, Reason: ReasonWeakRetrieval, Score: in.VerificationScore}
	}
	if !in.VerificationOK {
		return Outcome{
			Decision: DecisionAnswer,
			Level:    LevelLow,
			Reason:   ReasonVerificationUnavailable,
			Score:    in.VerificationScore,
		}
	}
	if in.VerificationScore < e.thresholds.Abstain {
		return Outcome{Decision: DecisionAbstain, Reason: ReasonVerificationFailed, Score: in.VerificationScore}
	}

	level := LevelLow
	if in.VerificationScore >= e.thresholds.High {
		level = LevelHigh
	}
	return Outcome{Decision: DecisionAnswer, Level: level, Score: in.VerificationScore}
}
