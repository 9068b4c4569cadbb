// Package tools implements the MCP tools that control debugging sessions.
//
// Each tool is a struct holding its dependencies, with a Definition for
// registration and a Handle compatible with mcp-go's tool handler
// signature. Session-control tools always answer with a JSON envelope
// (see session.Response), including when they fail.
package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/session"
)

// envelope renders resp as the tool result. Failed operations are flagged
// so hosts can tell them apart without parsing the payload.
func envelope(resp session.Response, failed bool) *mcp.CallToolResult {
	res := mcp.NewToolResultText(resp.JSON())
	res.IsError = failed
	return res
}

// stringArg returns a trimmed string argument.
func stringArg(req mcp.CallToolRequest, key string) string {
	return strings.TrimSpace(req.GetString(key, ""))
}

// tail returns at most the last n entries of logs.
func tail(logs []string, n int) []string {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
