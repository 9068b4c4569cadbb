package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/memory"
)

// RecentTool handles the memory_recent MCP tool.
type RecentTool struct {
	store *memory.Store
}

// NewRecentTool creates a RecentTool.
func NewRecentTool(store *memory.Store) *RecentTool {
	return &RecentTool{store: store}
}

// Definition returns the MCP tool definition for memory_recent.
func (t *RecentTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_recent",
		mcp.WithDescription(
			"List the newest memory bank entries of one repository, newest first. "+
				"Filter by kind to read only progress records (how past sessions ended) "+
				"or only the agents' active context.",
		),
		mcp.WithString("repo_path",
			mcp.Description("Repository whose memories to list"),
		),
		mcp.WithString("project",
			mcp.Description("Project id whose memories to list (overrides repo_path)"),
		),
		mcp.WithString("kind",
			mcp.Description("Filter by kind: activeContext, progress, observation"),
			mcp.Enum(memory.KindActiveContext, memory.KindProgress, memory.KindObservation),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max entries (default: 10)"),
		),
		detailLevelOption(),
	)
}

// Handle processes the memory_recent tool call.
func (t *RecentTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := projectArg(req)
	if project == "" {
		return mcp.NewToolResultError("'repo_path' or 'project' is required"), nil
	}
	level := memory.ParseDetailLevel(req.GetString("detail_level", ""))
	limit := intArg(req, "limit", 10)

	entries, err := t.store.Recent(project, req.GetString("kind", ""), limit+1)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing memories failed: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No memories recorded for project %s.", project)), nil
	}
	more := len(entries) > limit
	if more {
		entries = entries[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent memories of project %s:\n\n", project)
	for i, e := range entries {
		writeEntry(&b, i+1, e, level)
	}
	if more {
		b.WriteString("\nMore entries exist. Raise limit or use memory_search to narrow down.\n")
	}
	footer(&b, level)
	return mcp.NewToolResultText(b.String()), nil
}
