package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/coordinator"
	"github.com/snagasuri/deebo-prototype/internal/session"
)

// checkLogTail bounds how many session log lines a check returns.
const checkLogTail = 20

// CheckReport is the result carried by a check envelope.
type CheckReport struct {
	Solution json.RawMessage           `json:"solution,omitempty"`
	Error    string                    `json:"error,omitempty"`
	Elapsed  string                    `json:"elapsed"`
	Logs     []string                  `json:"logs"`
	Agents   []coordinator.AgentRecord `json:"agents"`
}

// CheckTool handles the check MCP tool.
type CheckTool struct {
	sessions *session.Manager
	coord    *coordinator.Coordinator
}

// NewCheckTool creates a CheckTool.
func NewCheckTool(sessions *session.Manager, coord *coordinator.Coordinator) *CheckTool {
	return &CheckTool{sessions: sessions, coord: coord}
}

// Definition returns the MCP tool definition for registration.
func (t *CheckTool) Definition() mcp.Tool {
	return mcp.NewTool("check",
		mcp.WithDescription(
			"Report the state of a debugging session: its status, the most recent "+
				"session log lines, every agent with its hypothesis and outcome, and the "+
				"solution once the mother agent has one.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by start"),
		),
	)
}

// Handle processes the check tool call.
func (t *CheckTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req, "session_id")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	sess, ok := t.sessions.Get(id)
	if !ok {
		return envelope(session.ErrorResponse(id, "Session not found: "+id), true), nil
	}

	return envelope(Check(sess, t.coord), false), nil
}

// Check builds the check envelope of sess.
func Check(sess *session.Session, coord *coordinator.Coordinator) session.Response {
	snap := sess.Snapshot()
	end := timeNow()
	if snap.Status.IsTerminal() {
		end = snap.UpdatedAt
	}
	report := CheckReport{
		Solution: snap.FinalResult,
		Error:    snap.Error,
		Elapsed:  end.Sub(snap.CreatedAt).Round(time.Second).String(),
		Logs:     tail(snap.Logs, checkLogTail),
		Agents:   coord.SessionAgents(snap.ID),
	}
	if len(report.Solution) == 0 {
		report.Solution = nil
	}
	if report.Logs == nil {
		report.Logs = []string{}
	}
	if report.Agents == nil {
		report.Agents = []coordinator.AgentRecord{}
	}

	resp := session.FromSnapshot(snap, checkMessage(snap))
	raw, err := session.EncodeJSON(report)
	if err != nil {
		return session.ErrorResponse(snap.ID, fmt.Sprintf("encoding check report: %v", err))
	}
	resp.Result = raw
	return resp
}

func checkMessage(snap session.Snapshot) string {
	switch snap.Status {
	case session.StatusPending:
		return "Investigation starting"
	case session.StatusRunning:
		return "Investigation in progress"
	case session.StatusComplete:
		return "Investigation complete"
	case session.StatusCancelled:
		return "Investigation cancelled"
	default:
		return "Investigation failed: " + snap.Error
	}
}

var timeNow = time.Now
