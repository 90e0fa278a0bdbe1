package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/athapong/surgical-qa/pkg/confidence"
	"github.com/athapong/surgical-qa/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterAskTools(s *server.MCPServer) {
	askTool := mcp.NewTool("surgical_ask",
		mcp.WithDescription("Answer a surgical education question from the indexed guidelines. The answer is verified against the knowledge graph and the system abstains when it cannot stand behind an answer."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("verbose", mcp.Description("Set to 'true' to include the claim-level verification report")),
	)

	s.AddTool(askTool, util.ErrorGuard(askHandler))
}

func askHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.Params.Arguments
	question, ok := arguments["question"].(string)
	if !ok || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question must be a non-empty string"), nil
	}
	verbose := arguments["verbose"] == "true"

	answer, err := defaultPipeline().Ask(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to answer question: %w", err)
	}

	var sb strings.Builder
	if answer.Outcome.Decision == confidence.DecisionAbstain {
		fmt.Fprintf(&sb, "ABSTAINED (%s)\n", answer.Outcome.Reason)
		sb.WriteString("The system cannot stand behind an answer to this question from the indexed material.\n")
	} else {
		fmt.Fprintf(&sb, "Answer (confidence: %s", answer.Outcome.Level)
		if answer.Outcome.Reason != "" {
			fmt.Fprintf(&sb, ", %s", answer.Outcome.Reason)
		}
		sb.WriteString(")\n\n")
		sb.WriteString(answer.Text)
		sb.WriteString("\n")
	}

	if answer.Report != nil {
		fmt.Fprintf(&sb, "\nVerification score: %.2f", answer.Report.Score)
		if len(answer.Report.Unsupported) > 0 {
			fmt.Fprintf(&sb, " (%d unsupported claims)", len(answer.Report.Unsupported))
		}
		sb.WriteString("\n")
	}
	if answer.Degraded {
		sb.WriteString("Note: knowledge graph was unavailable, retrieval ran vector-only.\n")
	}

	if len(answer.Sources) > 0 {
		sb.WriteString("\nSources:\n")
		for i, src := range answer.Sources {
			fmt.Fprintf(&sb, "[%d] (score %.3f, doc %s) %s\n",
				i+1, src.FusedScore, src.Segment.DocumentID, truncate(src.Segment.Text, 160))
		}
	}

	if verbose && answer.Report != nil {
		detail, err := json.MarshalIndent(answer.Report, "", "  ")
		if err == nil {
			sb.WriteString("\nVerification report:\n")
			sb.Write(detail)
			sb.WriteString("\n")
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
