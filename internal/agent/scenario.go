package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snagasuri/deebo-prototype/internal/audit"
	"github.com/snagasuri/deebo-prototype/internal/llm"
	"github.com/snagasuri/deebo-prototype/internal/scenario"
)

// ErrTurnLimit stops a scenario that never produced a report.
var ErrTurnLimit = errors.New("scenario reached its turn limit without a report")

// ScenarioAgentName is the tool-connection agent name of a scenario.
func ScenarioAgentName(id string) string {
	return "scenario-" + id
}

// Scenario investigates a single hypothesis.
type Scenario struct {
	LLM   llm.Client
	Tools ToolSource
	Log   *audit.AgentLog

	MaxTurns   int
	MaxRuntime time.Duration
	TurnDelay  time.Duration
}

// Run loops until the model writes a report and returns the report body.
func (s *Scenario) Run(ctx context.Context, a scenario.Args) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	maxTurns := s.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 20
	}
	maxRuntime := s.MaxRuntime
	if maxRuntime <= 0 {
		maxRuntime = 5 * time.Minute
	}
	rctx, cancel := context.WithTimeout(ctx, maxRuntime)
	defer cancel()

	s.Log.Info("Scenario agent started", map[string]any{"id": a.ID, "hypothesis": a.Hypothesis})

	tools, err := s.Tools.AcquireRequired(rctx, ScenarioAgentName(a.ID), a.SessionID, a.Repo)
	if err != nil {
		return "", s.fail(abortCause(ctx, rctx, fmt.Errorf("connecting tools: %w", err)))
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: scenarioSystemPrompt()},
		{Role: llm.RoleUser, Content: scenarioBrief(a)},
	}
	for turnNo := 1; turnNo <= maxTurns; turnNo++ {
		turn, err := complete(rctx, s.LLM, messages, s.Log)
		if err != nil {
			return "", s.fail(abortCause(ctx, rctx, err))
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: turn})

		if report, ok := ParseReport(turn); ok {
			s.Log.Info("Report written", map[string]any{"turns": turnNo})
			return report, nil
		}

		reply := scenarioNudge
		calls, perr := ParseToolCalls(turn, knownServer(tools))
		switch {
		case perr != nil:
			s.Log.Warn("rejected tool calls", map[string]any{"error": perr.Error()})
			reply = malformedMessage(perr)
		case len(calls) > 0:
			reply = runToolCalls(rctx, tools, calls, s.Log)
		}
		if rctx.Err() != nil {
			return "", s.fail(abortCause(ctx, rctx, rctx.Err()))
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: reply})

		if err := pause(rctx, s.TurnDelay); err != nil {
			return "", s.fail(abortCause(ctx, rctx, err))
		}
	}
	return "", s.fail(fmt.Errorf("%w (%d turns)", ErrTurnLimit, maxTurns))
}

func (s *Scenario) fail(err error) error {
	s.Log.Error("Failed: "+strings.TrimSpace(err.Error()), nil)
	return err
}
