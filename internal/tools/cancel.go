package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/coordinator"
)

// CancelTool handles the cancel MCP tool.
type CancelTool struct {
	coord *coordinator.Coordinator
}

// NewCancelTool creates a CancelTool.
func NewCancelTool(coord *coordinator.Coordinator) *CancelTool {
	return &CancelTool{coord: coord}
}

// Definition returns the MCP tool definition for registration.
func (t *CancelTool) Definition() mcp.Tool {
	return mcp.NewTool("cancel",
		mcp.WithDescription(
			"Stop a debugging session. Kills its scenario processes, stops the mother "+
				"agent and closes its tool connections. Cancelling a finished session "+
				"reports its recorded state and changes nothing.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by start"),
		),
	)
}

// Handle processes the cancel tool call.
func (t *CancelTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req, "session_id")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	resp, err := t.coord.CancelSession(id)
	return envelope(resp, err != nil), nil
}
