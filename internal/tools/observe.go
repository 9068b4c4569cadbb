package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/agent"
	"github.com/snagasuri/deebo-prototype/internal/audit"
	"github.com/snagasuri/deebo-prototype/internal/coordinator"
	"github.com/snagasuri/deebo-prototype/internal/memory"
	"github.com/snagasuri/deebo-prototype/internal/session"
)

// ObserveTool handles the add_observation MCP tool.
// Observations come from the host (or a human) while a session runs. They
// go to the target agent's audit log and to the project's active context,
// which the mother rereads through the filesystem tool.
type ObserveTool struct {
	sessions *session.Manager
	coord    *coordinator.Coordinator
	audit    *audit.Logger
	bank     *memory.Bank // nil when the memory bank is disabled
	log      *zap.Logger
}

// NewObserveTool creates an ObserveTool. bank and logger may be nil.
func NewObserveTool(sessions *session.Manager, coord *coordinator.Coordinator, auditLog *audit.Logger, bank *memory.Bank, logger *zap.Logger) *ObserveTool {
	return &ObserveTool{sessions: sessions, coord: coord, audit: auditLog, bank: bank, log: orNop(logger)}
}

// Definition returns the MCP tool definition for registration.
func (t *ObserveTool) Definition() mcp.Tool {
	return mcp.NewTool("add_observation",
		mcp.WithDescription(
			"Feed an observation into a running debugging session, e.g. a log line, "+
				"a test result, or something you noticed that the agents cannot see.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by start"),
		),
		mcp.WithString("observation",
			mcp.Required(),
			mcp.Description("The observation text"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Agent the observation is addressed to: mother (default) or a scenario id from check"),
		),
	)
}

// Handle processes the add_observation tool call.
func (t *ObserveTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req, "session_id")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	observation := stringArg(req, "observation")
	if observation == "" {
		return mcp.NewToolResultError("'observation' is required"), nil
	}
	target := stringArg(req, "agent_id")
	if target == "" {
		target = agent.MotherAgentName
	}

	sess, ok := t.sessions.Get(id)
	if !ok {
		return envelope(session.ErrorResponse(id, "Session not found: "+id), true), nil
	}
	if sess.Status().IsTerminal() {
		return envelope(session.FromSnapshot(sess.Snapshot(), "Session already finished"), true), nil
	}
	p, ok := t.coord.Params(id)
	if !ok {
		return envelope(session.ErrorResponse(id, "Session has no mother agent: "+id), true), nil
	}
	agentID, ok := t.agentName(id, target)
	if !ok {
		return envelope(session.ErrorResponse(id, "Unknown agent for session "+id+": "+target), true), nil
	}

	t.audit.For(p.ProjectID, id, agentID).Info("Observation added", map[string]any{"observation": observation})
	if t.bank != nil {
		if err := t.bank.AddObservation(p.ProjectID, id, agentID, observation); err != nil {
			t.log.Warn("memory bank: recording observation", zap.String("session", id), zap.Error(err))
		}
	}
	sess.AppendLog("observation for %s: %s", agentID, firstLine(observation))

	return envelope(session.NewResponse(id, sess.Status(), "Observation logged", nil), false), nil
}

// agentName maps an agent id given by the host to the agent's log name.
// Only the mother and the scenarios of the session are addressable.
func (t *ObserveTool) agentName(sessionID, target string) (string, bool) {
	if target == agent.MotherAgentName {
		return target, true
	}
	for _, a := range t.coord.SessionAgents(sessionID) {
		if a.Kind != coordinator.KindScenario {
			continue
		}
		name := agent.ScenarioAgentName(a.ID)
		if target == a.ID || target == name {
			return name, true
		}
	}
	return "", false
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
