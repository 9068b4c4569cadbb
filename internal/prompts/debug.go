// Package prompts implements MCP prompt handlers for debugging sessions.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the host AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// DebugPrompt handles the deebo-debug MCP prompt.
// It has the host collect a bug report and hand it to the start tool.
type DebugPrompt struct{}

// NewDebugPrompt creates a DebugPrompt.
func NewDebugPrompt() *DebugPrompt {
	return &DebugPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *DebugPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("deebo-debug",
		mcp.WithPromptDescription(
			"Hand a bug to deebo. It investigates in the background, testing "+
				"hypotheses in parallel on isolated branches, while you keep working.",
		),
		mcp.WithArgument("error",
			mcp.ArgumentDescription("The error message or symptom"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("repo_path",
			mcp.ArgumentDescription("Absolute path of the repository. Default: the current project"),
		),
	)
}

// Handle processes the deebo-debug prompt request.
func (p *DebugPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	errText := strings.TrimSpace(req.Params.Arguments["error"])
	if errText == "" {
		return nil, fmt.Errorf("argument 'error' is required")
	}
	repo := strings.TrimSpace(req.Params.Arguments["repo_path"])
	where := "the repository we are working in (use its absolute path)"
	if repo != "" {
		where = "`" + repo + "`"
	}

	return &mcp.GetPromptResult{
		Description: "Debug: " + firstLine(errText),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want deebo to investigate this error in %s:\n\n```\n%s\n```\n\n"+
						"Please:\n"+
						"1. Gather context deebo cannot see: the relevant code, failing tests, what I already tried, the language\n"+
						"2. Run `start` with repo_path, error, and that context (add file_path if one file is clearly involved)\n"+
						"3. Keep helping me while it runs; every few minutes run `check` with the session id\n"+
						"4. If you learn something new, pass it on with `add_observation`\n"+
						"5. When `check` reports complete, summarize the solution and verify it before applying it",
					where, errText,
				)),
			},
		},
	}, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
