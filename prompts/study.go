package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterStudyPrompts(s *server.MCPServer) {
	quiz := mcp.NewPrompt("procedure_quiz",
		mcp.WithPromptDescription("Quiz a trainee on a surgical procedure using the indexed guidelines"),
		mcp.WithArgument("procedure", mcp.ArgumentDescription("The procedure to quiz on, e.g. laparoscopic cholecystectomy")),
	)
	s.AddPrompt(quiz, procedureQuizHandler)

	caseReview := mcp.NewPrompt("complication_review",
		mcp.WithPromptDescription("Walk through the complications of a procedure and how to prevent them"),
		mcp.WithArgument("procedure", mcp.ArgumentDescription("The procedure whose complications to review")),
	)
	s.AddPrompt(caseReview, complicationReviewHandler)
}

func procedureQuizHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	procedure := request.Params.Arguments["procedure"]

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Quiz on %s", procedure),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Use the surgical_ask tool to quiz me on %s: ask one question at a time about the involved anatomy, required instruments, and possible complications, and verify my answers against the knowledge graph before telling me whether I was right.", procedure),
				},
			},
		},
	}, nil
}

func complicationReviewHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	procedure := request.Params.Arguments["procedure"]

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Complication review for %s", procedure),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Use surgical_entity_lookup and surgical_ask to list the complications of %s, and for each one explain what prevents it. Abstain rather than guess when the guidelines do not cover it.", procedure),
				},
			},
		},
	}, nil
}
