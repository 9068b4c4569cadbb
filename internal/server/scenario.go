package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/agent"
	"github.com/snagasuri/deebo-prototype/internal/audit"
	"github.com/snagasuri/deebo-prototype/internal/config"
	"github.com/snagasuri/deebo-prototype/internal/llm"
	"github.com/snagasuri/deebo-prototype/internal/mcpconn"
	"github.com/snagasuri/deebo-prototype/internal/memory"
	"github.com/snagasuri/deebo-prototype/internal/scenario"
	"github.com/snagasuri/deebo-prototype/internal/toolreg"
)

// ScenarioOptions configures RunScenario.
type ScenarioOptions struct {
	Config *config.Config
	Logger *zap.Logger

	// LLM replaces the configured scenario model client. Tests use it.
	LLM llm.Client
	// Dialer replaces the stdio tool dialer. Tests use it.
	Dialer mcpconn.Dialer
}

// RunScenario is the body of a scenario process: it wires its own tool
// connections and audit log, investigates one hypothesis and returns the
// report. Everything it opened is closed before it returns.
func RunScenario(ctx context.Context, opts ScenarioOptions, a scenario.Args) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := opts.LLM
	if client == nil {
		c, err := llm.New(ctx, cfg.Scenario)
		if err != nil {
			return "", fmt.Errorf("creating scenario model client: %w", err)
		}
		client = c
	}

	conns, err := NewToolConnections(cfg, opts.Dialer, logger)
	if err != nil {
		return "", err
	}
	defer conns.Close()

	auditLog := audit.New(cfg.MemoryRoot(), logger.Named("audit"))
	defer func() { _ = auditLog.Close() }()

	s := &agent.Scenario{
		LLM:        client,
		Tools:      conns,
		Log:        auditLog.For(memory.ProjectID(a.Repo), a.SessionID, agent.ScenarioAgentName(a.ID)),
		MaxTurns:   cfg.Scenario.MaxTurns,
		MaxRuntime: cfg.Scenario.MaxRuntime,
		TurnDelay:  cfg.Scenario.TurnDelay,
	}
	return s.Run(ctx, a)
}

// loadRegistry returns the configured tool registry, or the built-in one.
func loadRegistry(cfg *config.Config) (*toolreg.Registry, error) {
	if cfg.ToolsFile == "" {
		return toolreg.Default(), nil
	}
	reg, err := toolreg.Load(cfg.ToolsFile)
	if err != nil {
		return nil, fmt.Errorf("loading tool registry: %w", err)
	}
	return reg, nil
}
