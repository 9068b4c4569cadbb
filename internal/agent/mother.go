// Package agent implements the two kinds of debugging agent.
//
// The mother agent supervises one session: it runs an observe, orient,
// decide, act loop against the model, executes the tool calls the model
// asks for and fans every hypothesis out to a scenario agent. A scenario
// agent investigates one hypothesis in its own process and reports back.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snagasuri/deebo-prototype/internal/audit"
	"github.com/snagasuri/deebo-prototype/internal/llm"
	"github.com/snagasuri/deebo-prototype/internal/memory"
	"github.com/snagasuri/deebo-prototype/internal/scenario"
)

// MotherAgentName is the agent name of every session's mother.
const MotherAgentName = "mother"

var (
	// ErrRuntimeExceeded aborts an investigation that hit its wall-clock ceiling.
	ErrRuntimeExceeded = errors.New("investigation exceeded maximum runtime")
	// ErrMalformedOutput aborts an investigation whose model stopped
	// producing usable turns.
	ErrMalformedOutput = errors.New("model returned no usable output")
)

// Params describe the bug under investigation.
type Params struct {
	SessionID string
	ProjectID string
	Error     string
	Context   string
	Language  string
	File      string
	Repo      string
}

// ScenarioArgs builds the argv contract for one hypothesis.
func (p Params) ScenarioArgs(id, hypothesis string) scenario.Args {
	return scenario.Args{
		ID:         id,
		SessionID:  p.SessionID,
		Error:      p.Error,
		Context:    p.Context,
		Hypothesis: hypothesis,
		Language:   p.Language,
		File:       p.File,
		Repo:       p.Repo,
	}
}

// ScenarioSpawner starts one scenario per hypothesis. Every call allocates
// a new scenario id, even for a hypothesis text seen before.
type ScenarioSpawner interface {
	SpawnScenario(ctx context.Context, p Params, hypothesis string) (id string, run scenario.Waiter, err error)
}

// Memory is the durable investigation log.
type Memory interface {
	AppendActiveContext(projectID, sessionID, agent, content string) error
	AppendProgress(projectID string, rec memory.ProgressRecord) error
}

// Mother runs the supervising loop of one session.
type Mother struct {
	LLM       llm.Client
	Tools     ToolSource
	Scenarios ScenarioSpawner

	// Memory is nil when the memory bank is disabled.
	Memory     Memory
	MemoryPath string

	Log *audit.AgentLog
	// Events receives short human-readable progress lines.
	Events func(format string, args ...any)

	MaxRuntime time.Duration
	TurnDelay  time.Duration
}

func (m *Mother) event(format string, args ...any) {
	if m.Events != nil {
		m.Events(format, args...)
	}
}

// Run investigates until the model emits a solution, returning that turn.
// It fails when tools cannot be reached, when the model stops producing
// output, when the runtime ceiling is hit, or when ctx is cancelled.
func (m *Mother) Run(ctx context.Context, p Params) (result string, err error) {
	start := time.Now()
	scenarios := 0
	m.Log.Info("Mother agent started", map[string]any{"sessionId": p.SessionID, "repo": p.Repo})
	m.event("mother started")

	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			m.Log.Error("Failed: "+err.Error(), map[string]any{"scenarios": scenarios, "durationMs": elapsed.Milliseconds()})
			m.event("mother failed: %v", err)
			m.recordProgress(p, memory.ProgressRecord{Failure: err.Error(), ScenariosRun: scenarios, Duration: elapsed})
			return
		}
		m.Log.Info("Solution found", map[string]any{"scenarios": scenarios, "durationMs": elapsed.Milliseconds()})
		m.event("solution found after %d scenarios", scenarios)
		m.recordProgress(p, memory.ProgressRecord{Result: result, ScenariosRun: scenarios, Duration: elapsed})
	}()

	maxRuntime := m.MaxRuntime
	if maxRuntime <= 0 {
		maxRuntime = 15 * time.Minute
	}
	rctx, cancel := context.WithTimeout(ctx, maxRuntime)
	defer cancel()

	// OBSERVE
	m.Log.Info("OODA: observe", nil)
	tools, err := m.Tools.AcquireRequired(rctx, MotherAgentName, p.SessionID, p.Repo)
	if err != nil {
		return "", abortCause(ctx, rctx, fmt.Errorf("connecting tools: %w", err))
	}

	memoryPath := ""
	if m.Memory != nil {
		memoryPath = m.MemoryPath
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: motherSystemPrompt(memoryPath)},
		{Role: llm.RoleUser, Content: motherBrief(p, memoryPath)},
	}

	for turnNo := 1; ; turnNo++ {
		if time.Since(start) > maxRuntime {
			return "", ErrRuntimeExceeded
		}

		// ORIENT
		m.Log.Info("OODA: orient", map[string]any{"turn": turnNo})
		turn, err := complete(rctx, m.LLM, messages, m.Log)
		if err != nil {
			return "", abortCause(ctx, rctx, err)
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: turn})

		if HasSolution(turn) {
			return turn, nil
		}

		// DECIDE
		m.Log.Info("OODA: decide", map[string]any{"turn": turnNo})
		var replies []string
		calls, perr := ParseToolCalls(turn, knownServer(tools))
		switch {
		case perr != nil:
			m.Log.Warn("rejected tool calls", map[string]any{"error": perr.Error()})
			replies = append(replies, malformedMessage(perr))
		default:
			// ACT
			if len(calls) > 0 {
				m.Log.Info("OODA: act", map[string]any{"toolCalls": len(calls)})
				replies = append(replies, runToolCalls(rctx, tools, calls, m.Log))
			}
			if hyps := ParseHypotheses(turn); len(hyps) > 0 {
				m.recordActiveContext(p, turn)
				m.Log.Info("OODA: act", map[string]any{"hypotheses": len(hyps)})
				m.event("round %d: %d hypotheses", turnNo, len(hyps))
				scenarios += len(hyps)
				replies = append(replies, m.runRound(rctx, p, hyps))
			}
		}
		if rctx.Err() != nil {
			return "", abortCause(ctx, rctx, rctx.Err())
		}

		if len(replies) == 0 {
			replies = append(replies, continueNudge)
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: strings.Join(replies, "\n\n")})

		if err := pause(rctx, m.TurnDelay); err != nil {
			return "", abortCause(ctx, rctx, err)
		}
	}
}

// runRound spawns one scenario per hypothesis and waits for all of them.
func (m *Mother) runRound(ctx context.Context, p Params, hyps []string) string {
	runs := make([]scenario.Waiter, 0, len(hyps))
	for _, h := range hyps {
		id, run, err := m.Scenarios.SpawnScenario(ctx, p, h)
		if err != nil {
			m.Log.Warn("scenario spawn failed", map[string]any{"id": id, "error": err.Error()})
			run = scenario.Failed(id, "spawning scenario: "+err.Error())
		} else {
			m.Log.Info("scenario spawned", map[string]any{"id": id, "hypothesis": h})
		}
		runs = append(runs, run)
	}

	verdicts := scenario.JoinAll(ctx, runs)
	texts := make([]string, 0, len(verdicts))
	for _, v := range verdicts {
		m.Log.Info("scenario finished", map[string]any{"id": v.ID, "success": v.Success})
		texts = append(texts, v.Text())
	}
	return strings.Join(texts, "\n")
}

func (m *Mother) recordActiveContext(p Params, turn string) {
	if m.Memory == nil {
		return
	}
	if err := m.Memory.AppendActiveContext(p.ProjectID, p.SessionID, MotherAgentName, turn); err != nil {
		m.Log.Warn("memory bank write failed", map[string]any{"document": "activeContext", "error": err.Error()})
	}
}

func (m *Mother) recordProgress(p Params, rec memory.ProgressRecord) {
	if m.Memory == nil {
		return
	}
	rec.SessionID = p.SessionID
	rec.Error = p.Error
	rec.At = time.Now()
	if err := m.Memory.AppendProgress(p.ProjectID, rec); err != nil {
		m.Log.Warn("memory bank write failed", map[string]any{"document": "progress", "error": err.Error()})
	}
}

// complete asks the model for the next turn, allowing one retry when the
// call fails or the turn is empty.
func complete(ctx context.Context, client llm.Client, messages []llm.Message, log *audit.AgentLog) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		out, err := client.Complete(ctx, messages)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err == nil {
			err = errors.New("empty completion")
		}
		lastErr = err
		log.Warn("unusable model turn", map[string]any{"attempt": attempt, "error": err.Error()})
	}
	return "", fmt.Errorf("%w: %v", ErrMalformedOutput, lastErr)
}

// abortCause maps a failure inside the runtime context to the reason the
// investigation stopped.
func abortCause(parent, runtime context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(runtime.Err(), context.DeadlineExceeded) {
		return ErrRuntimeExceeded
	}
	return err
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
