package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/athapong/surgical-qa/pkg/retrieval"
	"github.com/sashabaranov/go-openai"
)

// Generator produces an answer grounded in the retrieved segments.
type Generator interface {
	Generate(ctx context.Context, query string, segments []retrieval.ScoredSegment) (string, error)
}

const answerPrompt = `You are a surgical education assistant. Answer the question using only the reference passages below. If the passages do not contain the answer, say you do not know. Do not invent procedures, medications, or complications.

Reference passages:
%s

Question: %s`

// OpenAIGenerator generates answers through a chat completion model.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(client *openai.Client, model string) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, query string, segments []retrieval.ScoredSegment) (string, error) {
	var refs strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&refs, "[%d] %s\n", i+1, s.Segment.Text)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(answerPrompt, refs.String(), query),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
