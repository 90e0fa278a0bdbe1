package verify

import (
	"context"
	"strings"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/jdkato/prose/v2"
)

// EntityExtractor finds schema entities mentioned in text.
type EntityExtractor interface {
	Extract(text string) []graph.Entity
}

// RuleClaimExtractor derives claims from an answer with sentence splitting
// and dictionary entity matching. It is deterministic and has no external
// dependency, so it is the extractor used when no LLM is configured and the
// fallback when the LLM extractor fails.
type RuleClaimExtractor struct {
	entities EntityExtractor
}

func NewRuleClaimExtractor(entities EntityExtractor) *RuleClaimExtractor {
	return &RuleClaimExtractor{entities: entities}
}

// claimVerbs maps relation verbs in answer text onto schema relations. The
// reversed set marks verbs whose grammatical subject is the edge's target.
var claimVerbs = map[string]graph.RelationType{
	"requires":        graph.RelationRequires,
	"require":         graph.RelationRequires,
	"needs":           graph.RelationRequires,
	"uses":            graph.RelationRequires,
	"involves":        graph.RelationInvolves,
	"involve":         graph.RelationInvolves,
	"causes":          graph.RelationMayCause,
	"cause":           graph.RelationMayCause,
	"risks":           graph.RelationMayCause,
	"prevents":        graph.RelationPrevents,
	"prevent":         graph.RelationPrevents,
	"precedes":        graph.RelationPrecedes,
	"follows":         graph.RelationPrecedes,
	"contraindicated": graph.RelationContraindicated,
}

// ExtractClaims turns each sentence mentioning at least one schema entity
// into a claim. Sentences with two entities and a relation verb become full
// triples; sentences with entities but no relation still carry the entity
// mentions so their existence can be checked.
func (e *RuleClaimExtractor) ExtractClaims(ctx context.Context, answer string) ([]Claim, error) {
	doc, err := prose.NewDocument(answer)
	if err != nil {
		return nil, err
	}

	claims := make([]Claim, 0)
	for _, sent := range doc.Sentences() {
		text := strings.TrimSpace(sent.Text)
		if text == "" {
			continue
		}

		entities := e.entities.Extract(text)
		if len(entities) == 0 {
			continue
		}

		claim := Claim{Text: text, Category: sentenceCategory(text), Subject: entities[0].Name}
		if len(entities) >= 2 {
			claim.Object = entities[1].Name
		}
		if relType, reversed := sentenceRelation(text); relType != "" && len(entities) >= 2 {
			subject, object := entities[0], entities[1]
			if reversed {
				subject, object = object, subject
			}
			claim.Subject = subject.Name
			claim.Object = object.Name
			claim.Relation = relType
			claim.Category = claimCategory(relType, entities)
		} else if len(entities) >= 2 {
			// No verb: fall back to the relation implied by the entity
			// type pair, when the schema defines one.
			if relType, from, to, ok := impliedRelation(entities); ok {
				claim.Subject = from
				claim.Object = to
				claim.Relation = relType
				claim.Category = claimCategory(relType, entities)
			}
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// attributionCues mark sentences that report what a source says rather than
// asserting surgical fact themselves.
var attributionCues = []string{
	"according to",
	"guidelines state",
	"guideline recommends",
	"studies show",
	"studies suggest",
	"as described by",
	"reported by",
}

// sentenceCategory tags sentences that assert no schema relation.
// Attribution cues outrank number mentions.
func sentenceCategory(text string) Category {
	lowered := strings.ToLower(text)
	for _, cue := range attributionCues {
		if strings.Contains(lowered, cue) {
			return CategoryAttribution
		}
	}
	if strings.ContainsAny(text, "0123456789%") {
		return CategoryQuantitative
	}
	return CategoryGeneral
}

// claimCategory refines the relation-derived category with the entity types
// in the sentence: a REQUIRES edge into an instrument is an instrument
// claim, not a procedural one.
func claimCategory(relType graph.RelationType, entities []graph.Entity) Category {
	if relType == graph.RelationRequires {
		for _, e := range entities {
			if e.Type == graph.EntityInstrument {
				return CategoryInstrument
			}
		}
	}
	return CategoryFor(relType)
}

func sentenceRelation(sentence string) (graph.RelationType, bool) {
	for _, word := range strings.Fields(strings.ToLower(sentence)) {
		word = strings.Trim(word, ".,;:()")
		if rel, ok := claimVerbs[word]; ok {
			return rel, word == "follows"
		}
	}
	return "", false
}

// impliedRelation scans entity pairs in mention order for one the schema
// assigns a relation to.
func impliedRelation(entities []graph.Entity) (graph.RelationType, string, string, bool) {
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if rel, ok := pairRelation(entities[i].Type, entities[j].Type); ok {
				return rel, entities[i].Name, entities[j].Name, true
			}
			if rel, ok := pairRelation(entities[j].Type, entities[i].Type); ok {
				return rel, entities[j].Name, entities[i].Name, true
			}
		}
	}
	return "", "", "", false
}

func pairRelation(from, to graph.EntityType) (graph.RelationType, bool) {
	switch {
	case from == graph.EntityProcedure && to == graph.EntityAnatomy:
		return graph.RelationInvolves, true
	case from == graph.EntityProcedure && to == graph.EntityInstrument:
		return graph.RelationRequires, true
	case from == graph.EntityProcedure && to == graph.EntityComplication:
		return graph.RelationMayCause, true
	case from == graph.EntityProcedure && to == graph.EntityTechnique:
		return graph.RelationUsesTechnique, true
	case from == graph.EntityProcedure && to == graph.EntityMedication:
		return graph.RelationRequiresMedication, true
	case from == graph.EntityMedication && to == graph.EntityComplication:
		return graph.RelationPrevents, true
	}
	return "", false
}
