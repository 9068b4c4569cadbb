package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the deebo-status MCP prompt.
// It instructs the AI to read and present the state of a session.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("deebo-status",
		mcp.WithPromptDescription(
			"Check on a deebo debugging session: what it is doing, which "+
				"hypotheses were tested, and whether it found a fix.",
		),
		mcp.WithArgument("session_id",
			mcp.ArgumentDescription("Session id returned by start"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the deebo-status prompt request.
func (p *StatusPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := strings.TrimSpace(req.Params.Arguments["session_id"])
	if id == "" {
		return nil, fmt.Errorf("argument 'session_id' is required")
	}
	return &mcp.GetPromptResult{
		Description: "Deebo session status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please run `check` with session_id=%q.\n\n"+
						"Then:\n"+
						"1. Tell me the status and how long it has been running\n"+
						"2. List each scenario agent with its hypothesis and whether it succeeded\n"+
						"3. If it is complete, explain the solution and how confident deebo is\n"+
						"4. If it failed or is stuck, suggest whether to `cancel` it or add an observation",
					id,
				)),
			},
		},
	}, nil
}
