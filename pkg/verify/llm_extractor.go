package verify

import (
	"context"
	"fmt"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const claimExtractionPrompt = `Extract the factual claims from the following answer about surgical procedures.
Return a JSON object with a "claims" array. Each claim has:
  "text": the sentence making the claim
  "subject": the entity the claim is about (lowercase)
  "relation": one of INVOLVES, REQUIRES, MAY_CAUSE, USES_TECHNIQUE, REQUIRES_MEDICATION, PREVENTS, CONTRAINDICATED_WITH, PRECEDES, or "" when none fits
  "object": the related entity (lowercase)
  "category": one of anatomy, procedure, instrument, complication, medication, contraindication, quantitative, attribution, general
Leave subject, relation and object empty for opinions, hedges, or claims that do not relate two entities. Use "attribution" for claims about what a source or study says, "quantitative" for claims about rates or measurements.

Answer:
%s`

// LLMClaimExtractor asks a chat model to decompose an answer into claims.
// Malformed model output is not an error: it falls back to the rule-based
// extractor so verification always has claims to work with.
type LLMClaimExtractor struct {
	client   *openai.Client
	model    string
	fallback ClaimExtractor
	logger   *logrus.Logger
}

func NewLLMClaimExtractor(client *openai.Client, model string, fallback ClaimExtractor) *LLMClaimExtractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &LLMClaimExtractor{
		client:   client,
		model:    model,
		fallback: fallback,
		logger:   logger,
	}
}

func (e *LLMClaimExtractor) ExtractClaims(ctx context.Context, answer string) ([]Claim, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(claimExtractionPrompt, answer),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		e.logger.WithError(err).Warn("LLM claim extraction failed, using rule-based extractor")
		return e.fallback.ExtractClaims(ctx, answer)
	}

	content := resp.Choices[0].Message.Content
	parsed := gjson.Get(content, "claims")
	if !parsed.IsArray() {
		e.logger.WithField("content", content).Warn("LLM returned no claims array, using rule-based extractor")
		return e.fallback.ExtractClaims(ctx, answer)
	}

	claims := make([]Claim, 0)
	parsed.ForEach(func(_, item gjson.Result) bool {
		relation := graph.RelationType(item.Get("relation").String())
		claim := Claim{
			Text:     item.Get("text").String(),
			Subject:  graph.NormalizeName(item.Get("subject").String()),
			Object:   graph.NormalizeName(item.Get("object").String()),
			Category: CategoryGeneral,
		}
		if category := Category(item.Get("category").String()); ValidCategory(category) {
			claim.Category = category
		}
		// An unknown relation string drops the relation but keeps the entity
		// mentions, so existence checks still apply.
		if graph.ValidRelationType(relation) {
			claim.Relation = relation
			if claim.Category == CategoryGeneral {
				claim.Category = CategoryFor(relation)
			}
		}
		if claim.Text != "" {
			claims = append(claims, claim)
		}
		return true
	})
	return claims, nil
}
