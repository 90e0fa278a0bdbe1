package util

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

var logger = func() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	return l
}()

// ToolHandler is the request-based tool handler shape the MCP server accepts.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ErrorGuard wraps a tool handler so panics and errors come back to the MCP
// client as tool error results instead of killing the server.
func ErrorGuard(handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"tool":  request.Params.Name,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Tool handler panicked")
				result = mcp.NewToolResultError(fmt.Sprintf("tool panicked: %v", r))
				err = nil
			}
		}()

		result, err = handler(ctx, request)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"tool":  request.Params.Name,
				"error": err.Error(),
			}).Error("Tool handler failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}

// AdaptLegacyHandler lifts an argument-map handler into the request-based
// handler shape.
func AdaptLegacyHandler(handler func(arguments map[string]interface{}) (*mcp.CallToolResult, error)) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handler(request.Params.Arguments)
	}
}
