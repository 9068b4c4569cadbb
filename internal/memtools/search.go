package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/memory"
)

// SearchTool handles the memory_search MCP tool.
type SearchTool struct {
	store *memory.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(store *memory.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for memory_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription(
			"Full-text search over the memory bank of past debugging sessions: the agents' "+
				"active context, observations and progress records. Use it before starting a "+
				"session to see what earlier investigations of the same repository tried.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, natural language or keywords"),
		),
		mcp.WithString("kind",
			mcp.Description("Filter by kind: activeContext, progress, observation"),
			mcp.Enum(memory.KindActiveContext, memory.KindProgress, memory.KindObservation),
		),
		mcp.WithString("repo_path",
			mcp.Description("Only search memories of this repository"),
		),
		mcp.WithString("project",
			mcp.Description("Only search memories of this project id (overrides repo_path)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 20)"),
		),
		detailLevelOption(),
	)
}

// Handle processes the memory_search tool call.
func (t *SearchTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	level := memory.ParseDetailLevel(req.GetString("detail_level", ""))

	results, err := t.store.Search(query, memory.SearchOptions{
		Kind:    req.GetString("kind", ""),
		Project: projectArg(req),
		Limit:   intArg(req, "limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No memories found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(results))
	for i, r := range results {
		writeEntry(&b, i+1, r.Entry, level)
	}
	footer(&b, level)
	return mcp.NewToolResultText(b.String()), nil
}
