// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/agent"
	"github.com/snagasuri/deebo-prototype/internal/audit"
	"github.com/snagasuri/deebo-prototype/internal/config"
	"github.com/snagasuri/deebo-prototype/internal/coordinator"
	"github.com/snagasuri/deebo-prototype/internal/llm"
	"github.com/snagasuri/deebo-prototype/internal/mcpconn"
	"github.com/snagasuri/deebo-prototype/internal/memory"
	"github.com/snagasuri/deebo-prototype/internal/memtools"
	"github.com/snagasuri/deebo-prototype/internal/prompts"
	"github.com/snagasuri/deebo-prototype/internal/resources"
	"github.com/snagasuri/deebo-prototype/internal/scenario"
	"github.com/snagasuri/deebo-prototype/internal/session"
	"github.com/snagasuri/deebo-prototype/internal/toolreg"
	"github.com/snagasuri/deebo-prototype/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// shutdownTimeout bounds how long cleanup waits for agents to exit.
const shutdownTimeout = 10 * time.Second

// Options configures New.
type Options struct {
	Config *config.Config
	// ConfigPath is handed to scenario processes so they load the same file.
	ConfigPath string
	Logger     *zap.Logger

	// MotherLLM replaces the configured mother model client. Tests use it.
	MotherLLM llm.Client
	// Dialer replaces the stdio tool dialer. Tests use it.
	Dialer mcpconn.Dialer
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function cancels running sessions, closes tool
// connections, audit logs and the memory store. It is always non-nil.
func New(ctx context.Context, opts Options) (*server.MCPServer, func(), error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// --- Create shared dependencies ---

	motherLLM := opts.MotherLLM
	if motherLLM == nil {
		c, err := llm.New(ctx, cfg.Mother)
		if err != nil {
			return nil, noop, fmt.Errorf("creating mother model client: %w", err)
		}
		motherLLM = c
	}

	conns, err := NewToolConnections(cfg, opts.Dialer, logger)
	if err != nil {
		return nil, noop, err
	}

	scenarioArgv, err := cfg.ScenarioArgv()
	if err != nil {
		conns.Close()
		return nil, noop, err
	}
	var scenarioEnv []string
	if opts.ConfigPath != "" {
		scenarioEnv = append(scenarioEnv, config.EnvConfigPath+"="+opts.ConfigPath)
	}
	spawner := &scenario.Spawner{Argv: scenarioArgv, Env: scenarioEnv, Logger: logger.Named("scenario")}

	auditLog := audit.New(cfg.MemoryRoot(), logger.Named("audit"))

	// --- Memory bank (optional) ---
	// The memory bank is an optional subsystem. If it is disabled or fails
	// to open, sessions still run; agents just lose their cross-session
	// context. We log a warning and skip the memory tools.
	var (
		bank     *memory.Bank
		memStore *memory.Store
	)
	if cfg.MemoryBank {
		st, memErr := memory.New(memory.DefaultConfig(cfg.MemoryRoot()))
		if memErr != nil {
			logger.Warn("memory subsystem disabled", zap.Error(memErr))
		} else {
			memStore = st
			bank = memory.NewBank(st, cfg.MemoryRoot())
		}
	}

	sessions := session.NewManager()
	coord := coordinator.New(coordinator.Options{
		Sessions:    sessions,
		NewMother:   motherFactory(cfg, motherLLM, conns, auditLog, bank),
		Scenarios:   spawner,
		Connections: conns,
		Outcomes:    sessionEnd{audit: auditLog, bank: bank, log: logger},
		Logger:      logger.Named("coordinator"),
	})

	cleanup := func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		coord.Shutdown(sctx)
		conns.Close()
		if err := auditLog.Close(); err != nil {
			logger.Warn("audit log close", zap.Error(err))
		}
		if memStore != nil {
			if err := memStore.Close(); err != nil {
				logger.Warn("memory store close", zap.Error(err))
			}
		}
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"deebo",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register session tools ---

	startTool := tools.NewStartTool(sessions, coord, bank, logger.Named("start"))
	s.AddTool(startTool.Definition(), startTool.Handle)

	checkTool := tools.NewCheckTool(sessions, coord)
	s.AddTool(checkTool.Definition(), checkTool.Handle)

	cancelTool := tools.NewCancelTool(coord)
	s.AddTool(cancelTool.Definition(), cancelTool.Handle)

	observeTool := tools.NewObserveTool(sessions, coord, auditLog, bank, logger.Named("observe"))
	s.AddTool(observeTool.Definition(), observeTool.Handle)

	// --- Register memory tools ---

	if memStore != nil {
		registerMemoryTools(s, memStore)
	}

	// --- Register prompts ---

	debugPrompt := prompts.NewDebugPrompt()
	s.AddPrompt(debugPrompt.Definition(), debugPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(sessions, coord, bank)
	s.AddResource(resourceHandler.SessionsResource(), resourceHandler.HandleSessions)
	s.AddResourceTemplate(resourceHandler.SessionResourceTemplate(), resourceHandler.HandleSession)
	if bank != nil {
		s.AddResourceTemplate(resourceHandler.MemoryResourceTemplate(), resourceHandler.HandleMemory)
	}

	logger.Info("server ready",
		zap.String("version", Version),
		zap.String("root", cfg.Root),
		zap.Bool("memory_bank", bank != nil),
		zap.String("mother_provider", cfg.Mother.Provider),
		zap.String("scenario_provider", cfg.Scenario.Provider),
	)
	return s, cleanup, nil
}

// noop is the cleanup returned when New fails.
func noop() {}

// NewToolConnections builds the tool connection pool for cfg. dialer may
// be nil for the stdio dialer.
func NewToolConnections(cfg *config.Config, dialer mcpconn.Dialer, logger *zap.Logger) (*mcpconn.Manager, error) {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return mcpconn.New(mcpconn.Options{
		Registry: reg,
		Dialer:   dialer,
		Vars: toolreg.Vars{
			MemoryRoot: cfg.MemoryRoot(),
			NpxPath:    cfg.NpxPath,
			UvxPath:    cfg.UvxPath,
		},
		MemoryPath: func(repo string) string { return cfg.MemoryPath(memory.ProjectID(repo)) },
		Logger:     logger.Named("mcpconn"),
	}), nil
}

// registerMemoryTools registers the read-only memory bank tools.
func registerMemoryTools(s *server.MCPServer, ms *memory.Store) {
	searchTool := memtools.NewSearchTool(ms)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	recentTool := memtools.NewRecentTool(ms)
	s.AddTool(recentTool.Definition(), recentTool.Handle)

	sessionTool := memtools.NewSessionTool(ms)
	s.AddTool(sessionTool.Definition(), sessionTool.Handle)
}

// motherFactory builds the mother of each session. The project is only
// known once the mother runs, so the audit log is opened then.
func motherFactory(cfg *config.Config, client llm.Client, conns *mcpconn.Manager, auditLog *audit.Logger, bank *memory.Bank) coordinator.MotherFactory {
	return func(sess *session.Session, spawner agent.ScenarioSpawner) coordinator.Runner {
		return runnerFunc(func(ctx context.Context, p agent.Params) (string, error) {
			m := &agent.Mother{
				LLM:        client,
				Tools:      conns,
				Scenarios:  spawner,
				MemoryPath: cfg.MemoryPath(p.ProjectID),
				Log:        auditLog.For(p.ProjectID, p.SessionID, agent.MotherAgentName),
				Events:     sess.AppendLog,
				MaxRuntime: cfg.Mother.MaxRuntime,
				TurnDelay:  cfg.Mother.TurnDelay,
			}
			if bank != nil {
				m.Memory = bank
			}
			return m.Run(ctx, p)
		})
	}
}

type runnerFunc func(ctx context.Context, p agent.Params) (string, error)

func (f runnerFunc) Run(ctx context.Context, p agent.Params) (string, error) { return f(ctx, p) }

// sessionEnd records how a session ended and flushes its audit logs.
type sessionEnd struct {
	audit *audit.Logger
	bank  *memory.Bank
	log   *zap.Logger
}

func (e sessionEnd) EndSession(sessionID, outcome string) error {
	if err := e.audit.CloseSession(sessionID); err != nil {
		e.log.Warn("closing audit logs", zap.String("session", sessionID), zap.Error(err))
	}
	if e.bank == nil {
		return nil
	}
	return e.bank.EndSession(sessionID, outcome)
}
