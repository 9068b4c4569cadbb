package memtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/memory"
)

// SessionTool handles the memory_session MCP tool: the full memory trail
// of one past or running investigation.
type SessionTool struct {
	store *memory.Store
}

// NewSessionTool creates a SessionTool.
func NewSessionTool(store *memory.Store) *SessionTool {
	return &SessionTool{store: store}
}

// Definition returns the MCP tool definition for memory_session.
func (t *SessionTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_session",
		mcp.WithDescription(
			"Show everything the memory bank recorded for one debugging session, oldest "+
				"first: the original error, how it ended, and every entry the agents wrote.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by start"),
		),
		detailLevelOption(),
	)
}

// Handle processes the memory_session tool call.
func (t *SessionTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("session_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	level := memory.ParseDetailLevel(req.GetString("detail_level", memory.DetailFull))

	ds, err := t.store.GetSession(id)
	if errors.Is(err, memory.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no memories recorded for session %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading session failed: %v", err)), nil
	}
	entries, err := t.store.SessionEntries(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading entries failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (project %s)\n", ds.ID, ds.Project)
	fmt.Fprintf(&b, "Repository: %s\nError: %s\nStarted: %s\n", ds.RepoPath, ds.Error, ds.StartedAt)
	if ds.EndedAt != nil {
		outcome := "unknown"
		if ds.Outcome != nil {
			outcome = *ds.Outcome
		}
		fmt.Fprintf(&b, "Ended: %s (%s)\n", *ds.EndedAt, outcome)
	} else {
		b.WriteString("Still running\n")
	}
	fmt.Fprintf(&b, "\n%d entries:\n\n", len(entries))
	for i, e := range entries {
		writeEntry(&b, i+1, e, level)
	}
	footer(&b, level)
	return mcp.NewToolResultText(b.String()), nil
}
