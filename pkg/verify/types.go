package verify

import (
	"context"

	"github.com/athapong/surgical-qa/pkg/graph"
)

// Category classifies a claim by what gets hurt when it is wrong. The
// weights below make safety-critical categories dominate the aggregate
// verification score.
type Category string

const (
	CategoryMedication       Category = "medication"
	CategoryContraindication Category = "contraindication"
	CategoryComplication     Category = "complication"
	CategoryProcedure        Category = "procedure"
	CategoryAnatomy          Category = "anatomy"
	CategoryInstrument       Category = "instrument"
	CategoryQuantitative     Category = "quantitative"
	CategoryGeneral          Category = "general"
	CategoryAttribution      Category = "attribution"
)

// categoryWeights determine how much each claim counts in the aggregate.
// A wrong medication or contraindication claim is worth four wrong general
// statements; who-said-what attribution claims matter least of all.
var categoryWeights = map[Category]float64{
	CategoryMedication:       2.0,
	CategoryContraindication: 2.0,
	CategoryComplication:     1.5,
	CategoryProcedure:        1.0,
	CategoryAnatomy:          1.0,
	CategoryInstrument:       1.0,
	CategoryQuantitative:     0.75,
	CategoryGeneral:          0.5,
	CategoryAttribution:      0.25,
}

// ValidCategory reports whether c is one of the taxonomy's categories.
func ValidCategory(c Category) bool {
	_, ok := categoryWeights[c]
	return ok
}

// Weight returns the severity weight for a category. Unknown categories
// count as general.
func (c Category) Weight() float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return categoryWeights[CategoryGeneral]
}

// CategoryFor maps a relation type to the claim category it belongs to.
func CategoryFor(relType graph.RelationType) Category {
	switch relType {
	case graph.RelationRequiresMedication, graph.RelationPrevents:
		return CategoryMedication
	case graph.RelationContraindicated:
		return CategoryContraindication
	case graph.RelationMayCause:
		return CategoryComplication
	case graph.RelationRequires, graph.RelationUsesTechnique, graph.RelationPrecedes:
		return CategoryProcedure
	case graph.RelationInvolves:
		return CategoryAnatomy
	default:
		return CategoryGeneral
	}
}

// Claim is one factual statement pulled out of a generated answer. Subject
// and Object carry the entities the claim mentions; Relation is set when the
// claim asserts a typed relationship between them. A claim naming no
// entities at all can only score neutral.
type Claim struct {
	Text     string             `json:"text"`
	Category Category           `json:"category"`
	Subject  string             `json:"subject,omitempty"`
	Relation graph.RelationType `json:"relation,omitempty"`
	Object   string             `json:"object,omitempty"`
}

// Checkable reports whether the claim mentions entities to test against the
// graph.
func (c Claim) Checkable() bool {
	return c.Subject != ""
}

// HasRelation reports whether the claim asserts a full typed triple.
func (c Claim) HasRelation() bool {
	return c.Subject != "" && c.Object != "" && graph.ValidRelationType(c.Relation)
}

// Verdict labels the outcome of checking one claim.
type Verdict string

const (
	VerdictSupported   Verdict = "supported"   // asserted edge found in the graph, score 1.0
	VerdictNeutral     Verdict = "neutral"     // entities known but relationship unconfirmed, or nothing to check, score 0.5
	VerdictUnsupported Verdict = "unsupported" // claim mentions an entity the graph does not know, score 0.0
)

// Scores assigned per verdict. The middle value keeps unverifiable claims
// from either inflating or sinking the aggregate.
const (
	ScoreSupported   = 1.0
	ScoreNeutral     = 0.5
	ScoreUnsupported = 0.0
)

// CheckedClaim is a claim with its verification outcome.
type CheckedClaim struct {
	Claim   Claim   `json:"claim"`
	Verdict Verdict `json:"verdict"`
	Score   float64 `json:"score"`
}

// Report aggregates the verification of one answer. Score is the
// severity-weighted mean of per-claim scores; an answer with no claims
// scores neutral.
type Report struct {
	Score       float64              `json:"score"`
	Claims      []CheckedClaim       `json:"claims"`
	ByCategory  map[Category]float64 `json:"by_category,omitempty"` // mean score per category present
	Unsupported []Claim              `json:"unsupported,omitempty"`
}

// ClaimExtractor pulls factual claims out of generated answer text.
type ClaimExtractor interface {
	ExtractClaims(ctx context.Context, answer string) ([]Claim, error)
}
