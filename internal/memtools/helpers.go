// Package memtools provides MCP tool handlers over the memory bank.
//
// Each tool handler follows the same pattern as internal/tools:
// - A struct with dependencies (memory.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// The memory bank is written by the agents; these tools only read it, so a
// host can look up what earlier investigations of a repository found.
package memtools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/memory"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// projectArg resolves the project filter: an explicit project id wins,
// otherwise repo_path is turned into one.
func projectArg(req mcp.CallToolRequest) string {
	if p := strings.TrimSpace(req.GetString("project", "")); p != "" {
		return p
	}
	if repo := strings.TrimSpace(req.GetString("repo_path", "")); repo != "" {
		return memory.ProjectID(repo)
	}
	return ""
}

// writeEntry renders one entry at the given detail level.
func writeEntry(b *strings.Builder, n int, e memory.Entry, level string) {
	agent := ""
	if e.Agent != nil && *e.Agent != "" {
		agent = " by " + *e.Agent
	}
	dup := ""
	if e.DuplicateCount > 1 {
		dup = fmt.Sprintf(" (seen %dx)", e.DuplicateCount)
	}
	fmt.Fprintf(b, "[%d] #%d (%s%s) %s%s\n", n, e.ID, e.Kind, agent, e.Title, dup)

	switch snip := memory.SnippetLength(level); {
	case snip == 0:
	case snip < 0:
		fmt.Fprintf(b, "    %s\n", strings.TrimSpace(e.Content))
	default:
		fmt.Fprintf(b, "    %s\n", memory.Truncate(strings.TrimSpace(e.Content), snip))
	}
	fmt.Fprintf(b, "    session: %s | project: %s | %s\n\n", e.SessionID, e.Project, e.CreatedAt)
}

// footer appends the detail hint and the token estimate.
func footer(b *strings.Builder, level string) {
	if level == memory.DetailSummary {
		b.WriteString("\nUse detail_level=standard or full to see entry content.")
	}
	b.WriteString(memory.TokenFooter(memory.EstimateTokens(b.String())))
}

func detailLevelOption() mcp.ToolOption {
	return mcp.WithString("detail_level",
		mcp.Description("How much content to show: summary (titles only), standard (default, trimmed), full"),
		mcp.Enum(memory.DetailLevelValues()...),
	)
}
