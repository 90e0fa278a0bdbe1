package processors

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/athapong/surgical-qa/pkg/graph"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	processingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nlp_processing_duration_seconds",
			Help: "Time spent processing documents",
		},
		[]string{"processor_type"},
	)

	entityCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlp_entities_extracted_total",
			Help: "Number of entities extracted",
		},
		[]string{"entity_type"},
	)
)

func init() {
	prometheus.MustRegister(processingDuration)
	prometheus.MustRegister(entityCount)
}

// Surgical term dictionaries. Curated rather than learned: the corpus is
// narrow enough that dictionary matching plus prose tagging outperforms a
// generic NER model on procedure names.
var surgicalDictionaries = map[graph.EntityType][]string{
	graph.EntityProcedure: {
		"appendectomy", "cholecystectomy", "colectomy", "gastrectomy",
		"mastectomy", "hysterectomy", "prostatectomy", "nephrectomy",
		"splenectomy", "thyroidectomy", "laparoscopy", "arthroscopy",
		"craniotomy", "thoracotomy", "laparotomy", "cesarean section",
		"hernia repair", "bypass surgery", "angioplasty", "amputation",
		"biopsy", "debridement", "excision", "resection", "anastomosis",
		"tracheostomy", "colostomy", "ileostomy", "catheterization",
	},
	graph.EntityAnatomy: {
		"appendix", "gallbladder", "colon", "stomach", "intestine",
		"liver", "pancreas", "spleen", "kidney", "bladder", "uterus",
		"prostate", "breast", "thyroid", "heart", "lung", "brain",
		"spine", "bone", "muscle", "tendon", "ligament", "cartilage",
		"artery", "vein", "nerve", "skin", "fascia", "peritoneum",
		"pleura", "pericardium", "esophagus", "trachea", "bronchus",
		"duodenum", "jejunum", "ileum", "cecum", "rectum",
		"cystic duct", "common bile duct", "calot's triangle",
	},
	graph.EntityInstrument: {
		"scalpel", "forceps", "scissors", "retractor", "clamp", "needle",
		"suture", "stapler", "cautery", "electrocautery", "laser",
		"laparoscope", "endoscope", "trocar", "dilator", "probe",
		"curette", "drain", "catheter", "speculum", "syringe",
		"aspirator", "irrigator", "ultrasound", "microscope", "drill",
		"tourniquet", "clip applier", "grasper",
	},
	graph.EntityComplication: {
		"bleeding", "hemorrhage", "infection", "sepsis", "abscess",
		"perforation", "leak", "bile leak", "fistula", "stenosis",
		"obstruction", "ileus", "adhesion", "hernia", "dehiscence",
		"necrosis", "thrombosis", "embolism", "stroke", "infarction",
		"ischemia", "pneumonia", "atelectasis", "edema", "hematoma",
		"seroma", "nausea", "vomiting", "fever", "shock",
	},
	graph.EntityTechnique: {
		"laparoscopic", "open approach", "minimally invasive", "robotic",
		"endoscopic", "percutaneous", "transabdominal", "transthoracic",
		"radical", "elective", "emergency",
	},
	graph.EntityMedication: {
		"antibiotic", "antibiotics", "anesthesia", "anesthetic",
		"analgesic", "opioid", "morphine", "fentanyl",
		"anticoagulant", "heparin", "warfarin", "aspirin",
		"corticosteroid", "insulin", "saline",
		"epinephrine", "atropine", "propofol", "midazolam",
		"cefazolin", "metronidazole", "gentamicin", "vancomycin",
	},
}

// surgicalAliases maps alternative names onto canonical dictionary terms.
var surgicalAliases = map[string]string{
	"appendix removal":     "appendectomy",
	"gallbladder removal":  "cholecystectomy",
	"lap chole":            "cholecystectomy",
	"keyhole surgery":      "laparoscopic",
	"c-section":            "cesarean section",
	"blood loss":           "bleeding",
	"bovie":                "electrocautery",
}

// relationVerbs maps verbs appearing between entity mentions onto schema
// relation types.
var relationVerbs = map[string]graph.RelationType{
	"requires":  graph.RelationRequires,
	"require":   graph.RelationRequires,
	"uses":      graph.RelationRequires,
	"needs":     graph.RelationRequires,
	"involves":  graph.RelationInvolves,
	"involve":   graph.RelationInvolves,
	"targets":   graph.RelationInvolves,
	"causes":    graph.RelationMayCause,
	"cause":     graph.RelationMayCause,
	"risks":     graph.RelationMayCause,
	"prevents":  graph.RelationPrevents,
	"prevent":   graph.RelationPrevents,
	"precedes":  graph.RelationPrecedes,
	"follows":   graph.RelationPrecedes, // reversed below
}

// typedRelation returns the schema relation implied by a subject/object
// entity type pair when no informative verb is present.
func typedRelation(from, to graph.EntityType) (graph.RelationType, bool) {
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

// SurgicalProcessor extracts surgical entities and relations from guideline
// text using prose tokenization plus dictionary matching. Extraction is
// deterministic for identical input.
type SurgicalProcessor struct {
	logger *logrus.Logger
	terms  []dictTerm // sorted, longest-first
}

type dictTerm struct {
	term string
	typ  graph.EntityType
}

// NewSurgicalProcessor creates a new surgical NLP processor.
func NewSurgicalProcessor() *SurgicalProcessor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	terms := make([]dictTerm, 0)
	for typ, list := range surgicalDictionaries {
		for _, t := range list {
			terms = append(terms, dictTerm{term: t, typ: typ})
		}
	}
	// Longest-first so "common bile duct" wins over "bile"; alphabetical
	// within a length for deterministic output.
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i].term) != len(terms[j].term) {
			return len(terms[i].term) > len(terms[j].term)
		}
		return terms[i].term < terms[j].term
	})

	return &SurgicalProcessor{logger: logger, terms: terms}
}

// Process implements the DocumentProcessor interface.
func (p *SurgicalProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*graph.Document, error) {
	timer := prometheus.NewTimer(processingDuration.WithLabelValues("surgical"))
	defer timer.ObserveDuration()

	text := string(content)
	doc, err := prose.NewDocument(text)
	if err != nil {
		p.logger.WithError(err).Error("Failed to create prose document")
		return nil, err
	}

	entities := p.Extract(text)
	relations := p.extractRelations(doc, entities)

	processed := &graph.Document{
		Content:     text,
		Entities:    entities,
		Relations:   relations,
		Metadata:    metadata,
		ProcessedAt: time.Now(),
	}

	p.logger.WithFields(logrus.Fields{
		"entities_count":  len(entities),
		"relations_count": len(relations),
	}).Info("Surgical NLP processing completed")

	return processed, nil
}

// Extract returns the surgical entities mentioned in text, in first-mention
// order. This is the query-time entity extraction contract used by the
// hybrid retriever and the claim verifier.
func (p *SurgicalProcessor) Extract(text string) []graph.Entity {
	lowered := strings.ToLower(text)
	seen := mapset.NewSet[string]()

	type mention struct {
		entity graph.Entity
		pos    int
	}
	mentions := make([]mention, 0)

	match := func(term string, typ graph.EntityType, alias string) {
		pos := indexTerm(lowered, term)
		if pos < 0 {
			return
		}
		canonical := term
		if alias != "" {
			canonical = alias
		}
		if seen.Contains(canonical) {
			return
		}
		seen.Add(canonical)
		entity := graph.Entity{
			Type:       typ,
			Name:       canonical,
			Confidence: 0.9,
		}
		if alias != "" {
			entity.Aliases = []string{term}
		}
		mentions = append(mentions, mention{entity: entity, pos: pos})
		entityCount.WithLabelValues(string(typ)).Inc()
	}

	for _, dt := range p.terms {
		match(dt.term, dt.typ, "")
	}
	aliasKeys := make([]string, 0, len(surgicalAliases))
	for alias := range surgicalAliases {
		aliasKeys = append(aliasKeys, alias)
	}
	sort.Strings(aliasKeys)
	for _, alias := range aliasKeys {
		canonical := surgicalAliases[alias]
		typ, ok := p.termType(canonical)
		if !ok {
			continue
		}
		match(alias, typ, canonical)
	}

	sort.SliceStable(mentions, func(i, j int) bool { return mentions[i].pos < mentions[j].pos })
	result := make([]graph.Entity, 0, len(mentions))
	for _, m := range mentions {
		result = append(result, m.entity)
	}
	return result
}

func (p *SurgicalProcessor) termType(term string) (graph.EntityType, bool) {
	for _, dt := range p.terms {
		if dt.term == term {
			return dt.typ, true
		}
	}
	return "", false
}

// extractRelations walks sentences looking for verb-linked entity pairs.
// A sentence mentioning two entities with a known relation verb between
// them yields a typed edge; otherwise the entity-type pair decides.
func (p *SurgicalProcessor) extractRelations(doc *prose.Document, entities []graph.Entity) []graph.Relationship {
	relations := make([]graph.Relationship, 0)

	for _, sent := range doc.Sentences() {
		lowered := strings.ToLower(sent.Text)

		present := make([]graph.Entity, 0)
		for _, e := range entities {
			if indexTerm(lowered, e.Name) >= 0 {
				present = append(present, e)
			}
		}
		if len(present) < 2 {
			continue
		}

		relType, reversed := p.sentenceVerb(lowered)

		for i := 0; i < len(present); i++ {
			for j := i + 1; j < len(present); j++ {
				from, to := present[i], present[j]
				rel := relType
				if rel == "" {
					var ok bool
					rel, ok = typedRelation(from.Type, to.Type)
					if !ok {
						rel, ok = typedRelation(to.Type, from.Type)
						if !ok {
							continue
						}
						from, to = to, from
					}
				} else if reversed {
					from, to = to, from
				}
				relations = append(relations, graph.Relationship{
					Type:       rel,
					From:       from.Name,
					To:         to.Name,
					Confidence: 0.85,
				})
			}
		}
	}

	return relations
}

// sentenceVerb finds the first relation verb in a sentence. The second
// return value is true for verbs that invert subject/object order
// ("follows" asserts the PRECEDES edge in the opposite direction).
func (p *SurgicalProcessor) sentenceVerb(sentence string) (graph.RelationType, bool) {
	for _, word := range strings.Fields(sentence) {
		word = strings.Trim(word, ".,;:()")
		if rel, ok := relationVerbs[word]; ok {
			return rel, word == "follows"
		}
	}
	return "", false
}

// indexTerm locates term in text on word boundaries, returning -1 when
// absent.
func indexTerm(text, term string) int {
	idx := 0
	for {
		pos := strings.Index(text[idx:], term)
		if pos < 0 {
			return -1
		}
		pos += idx
		before := pos == 0 || !isWordChar(text[pos-1])
		afterIdx := pos + len(term)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return pos
		}
		idx = pos + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// SupportedTypes implements the DocumentProcessor interface.
func (p *SurgicalProcessor) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown"}
}
