package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Markers the agents look for in model output.
const (
	toolOpen        = "<use_mcp_tool>"
	toolClose       = "</use_mcp_tool>"
	hypothesisOpen  = "<hypothesis>"
	hypothesisClose = "</hypothesis>"
	solutionOpen    = "<solution>"
	reportOpen      = "<report>"
	reportClose     = "</report>"
)

// ToolCall is one parsed tool invocation block.
type ToolCall struct {
	Server string
	Tool   string
	Args   map[string]any
}

// ErrMalformedToolCall wraps every tool-block parse failure.
var ErrMalformedToolCall = errors.New("malformed tool call")

var (
	toolBlockRe  = regexp.MustCompile(`(?s)<use_mcp_tool>(.*?)</use_mcp_tool>`)
	serverNameRe = regexp.MustCompile(`(?s)<server_name>(.*?)</server_name>`)
	toolNameRe   = regexp.MustCompile(`(?s)<tool_name>(.*?)</tool_name>`)
	argumentsRe  = regexp.MustCompile(`(?s)<arguments>(.*?)</arguments>`)
)

// ParseToolCalls extracts every tool block of a turn. It is all or nothing:
// if any block is malformed, no calls are returned. known reports whether
// a server name is in the tool registry.
func ParseToolCalls(turn string, known func(server string) bool) ([]ToolCall, error) {
	blocks := toolBlockRe.FindAllStringSubmatch(turn, -1)
	if strings.Count(turn, toolOpen) != len(blocks) {
		return nil, fmt.Errorf("%w: unterminated %s block", ErrMalformedToolCall, toolOpen)
	}

	calls := make([]ToolCall, 0, len(blocks))
	for i, b := range blocks {
		call, err := parseToolBlock(b[1], known)
		if err != nil {
			return nil, fmt.Errorf("%w (block %d): %v", ErrMalformedToolCall, i+1, err)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func parseToolBlock(body string, known func(string) bool) (ToolCall, error) {
	server := tagValue(serverNameRe, body)
	if server == "" {
		return ToolCall{}, errors.New("missing server_name")
	}
	if known != nil && !known(server) {
		return ToolCall{}, fmt.Errorf("unknown server %q", server)
	}
	tool := tagValue(toolNameRe, body)
	if tool == "" {
		return ToolCall{}, errors.New("missing tool_name")
	}
	m := argumentsRe.FindStringSubmatch(body)
	if m == nil {
		return ToolCall{}, errors.New("missing arguments")
	}
	raw := strings.TrimSpace(m[1])
	args := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return ToolCall{}, fmt.Errorf("arguments are not a JSON object: %v", err)
		}
	}
	return ToolCall{Server: server, Tool: tool, Args: args}, nil
}

func tagValue(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseHypotheses returns the hypothesis blocks of a turn in order. An
// unterminated block runs to the next hypothesis tag or the end of the turn.
// Identical texts are returned as separate hypotheses.
func ParseHypotheses(turn string) []string {
	parts := strings.Split(turn, hypothesisOpen)
	if len(parts) < 2 {
		return nil
	}
	var out []string
	for _, p := range parts[1:] {
		if i := strings.Index(p, hypothesisClose); i >= 0 {
			p = p[:i]
		}
		if h := strings.TrimSpace(p); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// HasSolution reports whether a turn carries the solution marker.
func HasSolution(turn string) bool {
	return strings.Contains(turn, solutionOpen)
}

// ParseReport extracts a scenario's report block.
func ParseReport(turn string) (string, bool) {
	start := strings.Index(turn, reportOpen)
	if start < 0 {
		return "", false
	}
	body := turn[start+len(reportOpen):]
	if end := strings.Index(body, reportClose); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}
