package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/audit"
	"github.com/snagasuri/deebo-prototype/internal/mcpconn"
)

// ToolSource hands out the tool connections of an agent.
type ToolSource interface {
	AcquireRequired(ctx context.Context, agentName, sessionID, repoPath string) (mcpconn.Tools, error)
}

func knownServer(tools mcpconn.Tools) func(string) bool {
	return func(name string) bool {
		_, ok := tools.Get(name)
		return ok
	}
}

// toolOutcome is what the model sees for one executed call.
type toolOutcome struct {
	Server string              `json:"server"`
	Tool   string              `json:"tool"`
	Result *mcp.CallToolResult `json:"result"`
}

// runToolCalls executes calls in order. Execution errors are reported to
// the model as error results, never returned.
func runToolCalls(ctx context.Context, tools mcpconn.Tools, calls []ToolCall, log *audit.AgentLog) string {
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		client, _ := tools.Get(c.Server)
		res, err := client.CallTool(ctx, c.Tool, c.Args)
		if err != nil {
			log.Warn("tool call failed", map[string]any{"server": c.Server, "tool": c.Tool, "error": err.Error()})
			res = mcp.NewToolResultError(err.Error())
		} else {
			log.Debug("tool call", map[string]any{"server": c.Server, "tool": c.Tool, "isError": res.IsError})
		}
		data, mErr := json.Marshal(toolOutcome{Server: c.Server, Tool: c.Tool, Result: res})
		if mErr != nil {
			data = []byte(fmt.Sprintf(`{"server":%q,"tool":%q,"error":"unencodable result"}`, c.Server, c.Tool))
		}
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}

func malformedMessage(err error) string {
	return "One of your tool calls was malformed and none were run. Error: " + err.Error()
}
