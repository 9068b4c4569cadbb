package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/agent"
	"github.com/snagasuri/deebo-prototype/internal/coordinator"
	"github.com/snagasuri/deebo-prototype/internal/memory"
	"github.com/snagasuri/deebo-prototype/internal/session"
)

// StartTool handles the start MCP tool.
// It opens a session for one bug report and hands it to a mother agent.
type StartTool struct {
	sessions *session.Manager
	coord    *coordinator.Coordinator
	bank     *memory.Bank // nil when the memory bank is disabled
	log      *zap.Logger

	newID func() string
}

// NewStartTool creates a StartTool. bank and logger may be nil.
func NewStartTool(sessions *session.Manager, coord *coordinator.Coordinator, bank *memory.Bank, logger *zap.Logger) *StartTool {
	return &StartTool{
		sessions: sessions,
		coord:    coord,
		bank:     bank,
		log:      orNop(logger),
		newID:    func() string { return "session-" + uuid.NewString() },
	}
}

// Definition returns the MCP tool definition for registration.
func (t *StartTool) Definition() mcp.Tool {
	return mcp.NewTool("start",
		mcp.WithDescription(
			"Begin an autonomous investigation of a bug. A mother agent forms hypotheses "+
				"and tests each one in an isolated scenario agent on its own git branch. "+
				"Returns immediately with a session id; poll it with `check`.",
		),
		mcp.WithString("repo_path",
			mcp.Required(),
			mcp.Description("Absolute path to the git repository under investigation"),
		),
		mcp.WithString("error",
			mcp.Required(),
			mcp.Description("The error message or symptom being debugged"),
		),
		mcp.WithString("context",
			mcp.Description("Code snippets, failing tests, things already tried"),
		),
		mcp.WithString("language",
			mcp.Description("Programming language of the code (e.g. go, typescript)"),
		),
		mcp.WithString("file_path",
			mcp.Description("File most relevant to the error, if known"),
		),
	)
}

// Handle processes the start tool call.
func (t *StartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	errText := stringArg(req, "error")
	if errText == "" {
		return mcp.NewToolResultError("'error' is required"), nil
	}
	repo := stringArg(req, "repo_path")
	if repo == "" {
		return mcp.NewToolResultError("'repo_path' is required"), nil
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid repo_path: %v", err)), nil
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("repo_path is not a directory: %s", abs)), nil
	}

	id := t.newID()
	sess, err := t.sessions.Create(id)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	p := agent.Params{
		SessionID: id,
		ProjectID: memory.ProjectID(abs),
		Error:     errText,
		Context:   stringArg(req, "context"),
		Language:  stringArg(req, "language"),
		File:      stringArg(req, "file_path"),
		Repo:      abs,
	}

	if t.bank != nil {
		if err := t.bank.BeginSession(id, p.ProjectID, abs, errText); err != nil {
			t.log.Warn("memory bank: registering session", zap.String("session", id), zap.Error(err))
		}
	}

	sess.AppendLog("Debug session started for %s", abs)
	if _, err := t.coord.SpawnMother(ctx, sess, p); err != nil {
		_ = sess.Fail(err)
		return envelope(session.ErrorResponse(id, "Failed to start mother agent: "+err.Error()), true), nil
	}

	return envelope(session.NewResponse(id, sess.Status(), "Debug session started", nil), false), nil
}
