package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/agent"
	"github.com/snagasuri/deebo-prototype/internal/audit"
	"github.com/snagasuri/deebo-prototype/internal/coordinator"
	"github.com/snagasuri/deebo-prototype/internal/memory"
	"github.com/snagasuri/deebo-prototype/internal/session"
)

// --- Test helpers ---

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decode(t *testing.T, r *mcp.CallToolResult) session.Response {
	t.Helper()
	var resp session.Response
	if err := json.Unmarshal([]byte(resultText(r)), &resp); err != nil {
		t.Fatalf("decoding envelope %q: %v", resultText(r), err)
	}
	return resp
}

type runnerFunc func(ctx context.Context, p agent.Params) (string, error)

func (f runnerFunc) Run(ctx context.Context, p agent.Params) (string, error) { return f(ctx, p) }

// blockUntilCancelled is a mother that never finishes on its own.
func blockUntilCancelled(ctx context.Context, _ agent.Params) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type env struct {
	root     string
	repo     string
	sessions *session.Manager
	coord    *coordinator.Coordinator
	audit    *audit.Logger
	bank     *memory.Bank
}

func newEnv(t *testing.T, mother runnerFunc) *env {
	t.Helper()
	e := &env{root: t.TempDir(), repo: t.TempDir(), sessions: session.NewManager()}

	store, err := memory.New(memory.DefaultConfig(e.root))
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	e.bank = memory.NewBank(store, e.root)
	e.audit = audit.New(e.root, nil)
	e.coord = coordinator.New(coordinator.Options{
		Sessions: e.sessions,
		NewMother: func(*session.Session, agent.ScenarioSpawner) coordinator.Runner {
			return mother
		},
		Outcomes: e.bank,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.coord.Shutdown(ctx)
		_ = e.audit.Close()
		_ = store.Close()
	})
	return e
}

func (e *env) start(t *testing.T) string {
	t.Helper()
	tool := NewStartTool(e.sessions, e.coord, e.bank, nil)
	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_path": e.repo,
		"error":     "panic: nil map",
		"language":  "go",
	}))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.IsError {
		t.Fatalf("start failed: %s", resultText(res))
	}
	return decode(t, res).SessionID
}

func (e *env) wait(t *testing.T, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.coord.Wait(ctx, id); err != nil {
		t.Fatalf("waiting for %s: %v", id, err)
	}
}

// --- start ---

func TestStartTool_Definition(t *testing.T) {
	def := NewStartTool(nil, nil, nil, nil).Definition()
	if def.Name != "start" {
		t.Errorf("name = %q, want start", def.Name)
	}
	for _, p := range []string{"repo_path", "error"} {
		found := false
		for _, r := range def.InputSchema.Required {
			if r == p {
				found = true
			}
		}
		if !found {
			t.Errorf("%s should be required", p)
		}
	}
}

func TestStartTool_Validation(t *testing.T) {
	e := newEnv(t, blockUntilCancelled)
	tool := NewStartTool(e.sessions, e.coord, e.bank, nil)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing error", map[string]interface{}{"repo_path": e.repo}, "'error' is required"},
		{"missing repo", map[string]interface{}{"error": "boom"}, "'repo_path' is required"},
		{"repo not a dir", map[string]interface{}{"error": "boom", "repo_path": e.repo + "/nope"}, "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected an error result")
			}
			if !strings.Contains(resultText(res), tt.want) {
				t.Errorf("result %q does not mention %q", resultText(res), tt.want)
			}
		})
	}
	if n := len(e.sessions.List()); n != 0 {
		t.Errorf("rejected calls created %d sessions", n)
	}
}

func TestStartTool_StartsMother(t *testing.T) {
	got := make(chan agent.Params, 1)
	e := newEnv(t, func(ctx context.Context, p agent.Params) (string, error) {
		got <- p
		<-ctx.Done()
		return "", ctx.Err()
	})
	id := e.start(t)

	if !strings.HasPrefix(id, "session-") {
		t.Errorf("session id %q should start with session-", id)
	}
	var p agent.Params
	select {
	case p = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("mother never ran")
	}
	if p.SessionID != id || p.Repo != e.repo || p.Language != "go" || p.Error != "panic: nil map" {
		t.Errorf("mother params = %+v", p)
	}
	if p.ProjectID != memory.ProjectID(e.repo) {
		t.Errorf("project id = %q, want %q", p.ProjectID, memory.ProjectID(e.repo))
	}

	ds, err := e.bank.Store().GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if ds.RepoPath != e.repo {
		t.Errorf("memory bank repo = %q", ds.RepoPath)
	}
	if _, err := os.Stat(e.bank.ProjectDir(p.ProjectID)); err != nil {
		t.Errorf("project memory dir missing: %v", err)
	}
}

// --- check ---

func TestCheckTool_Running(t *testing.T) {
	e := newEnv(t, blockUntilCancelled)
	id := e.start(t)

	res, err := NewCheckTool(e.sessions, e.coord).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": id}))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	resp := decode(t, res)
	if resp.Status != session.StatusRunning {
		t.Errorf("status = %s, want running", resp.Status)
	}

	var report CheckReport
	if err := json.Unmarshal(resp.Result, &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if len(report.Agents) != 1 || report.Agents[0].Kind != coordinator.KindMother {
		t.Errorf("agents = %+v, want the mother", report.Agents)
	}
	if report.Solution != nil {
		t.Errorf("running session has a solution: %s", report.Solution)
	}
	if len(report.Logs) == 0 {
		t.Error("expected session log lines")
	}
}

func TestCheckTool_Complete(t *testing.T) {
	e := newEnv(t, func(context.Context, agent.Params) (string, error) {
		return "<solution>guard the map</solution>", nil
	})
	id := e.start(t)
	e.wait(t, id)

	res, _ := NewCheckTool(e.sessions, e.coord).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": id}))
	resp := decode(t, res)
	if resp.Status != session.StatusComplete {
		t.Fatalf("status = %s, want complete", resp.Status)
	}
	var report CheckReport
	if err := json.Unmarshal(resp.Result, &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if !strings.Contains(string(report.Solution), "guard the map") {
		t.Errorf("solution = %s", report.Solution)
	}

	// A finished session reads the same every time.
	again, _ := NewCheckTool(e.sessions, e.coord).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": id}))
	if resultText(again) != resultText(res) {
		t.Errorf("check of a finished session changed:\n%s\n%s", resultText(res), resultText(again))
	}
}

func TestCheckTool_NotFound(t *testing.T) {
	e := newEnv(t, blockUntilCancelled)
	res, err := NewCheckTool(e.sessions, e.coord).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": "ghost"}))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.IsError {
		t.Error("expected error result")
	}
	resp := decode(t, res)
	if resp.Status != session.StatusError || string(resp.Result) != "null" {
		t.Errorf("envelope = %+v", resp)
	}
	if resp.Message != "Session not found: ghost" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestTail(t *testing.T) {
	logs := []string{"a", "b", "c"}
	if got := tail(logs, 2); len(got) != 2 || got[0] != "b" {
		t.Errorf("tail = %v", got)
	}
	if got := tail(logs, 5); len(got) != 3 {
		t.Errorf("tail = %v", got)
	}
}

// --- cancel ---

func TestCancelTool_Idempotent(t *testing.T) {
	e := newEnv(t, blockUntilCancelled)
	id := e.start(t)
	tool := NewCancelTool(e.coord)

	first, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"session_id": id}))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	resp := decode(t, first)
	if resp.Status != session.StatusCancelled || resp.Message != coordinator.MsgCancelled {
		t.Errorf("first cancel = %+v", resp)
	}
	e.wait(t, id)

	second, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{"session_id": id}))
	if resultText(second) != resultText(first) {
		t.Errorf("second cancel differs:\n%s\n%s", resultText(first), resultText(second))
	}

	ds, err := e.bank.Store().GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if ds.Outcome == nil || *ds.Outcome != "cancelled" {
		t.Errorf("recorded outcome = %v", ds.Outcome)
	}
}

func TestCancelTool_Unknown(t *testing.T) {
	e := newEnv(t, blockUntilCancelled)
	res, _ := NewCancelTool(e.coord).Handle(context.Background(), makeReq(map[string]interface{}{"session_id": "ghost"}))
	if !res.IsError {
		t.Error("expected error result")
	}
	if resp := decode(t, res); resp.Message != "Session not found: ghost" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestCancelTool_MissingID(t *testing.T) {
	res, _ := NewCancelTool(nil).Handle(context.Background(), makeReq(map[string]interface{}{}))
	if !res.IsError || !strings.Contains(resultText(res), "'session_id' is required") {
		t.Errorf("result = %q", resultText(res))
	}
}

// --- add_observation ---

func TestObserveTool_RecordsEverywhere(t *testing.T) {
	e := newEnv(t, blockUntilCancelled)
	id := e.start(t)
	tool := NewObserveTool(e.sessions, e.coord, e.audit, e.bank, nil)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id":  id,
		"observation": "the crash only happens with an empty config",
	}))
	if err != nil {
		t.Fatalf("add_observation: %v", err)
	}
	if resp := decode(t, res); resp.Message != "Observation logged" {
		t.Fatalf("envelope = %+v", resp)
	}

	project := memory.ProjectID(e.repo)
	records, err := e.audit.Read(project, id, agent.MotherAgentName)
	if err != nil {
		t.Fatalf("audit.Read: %v", err)
	}
	found := false
	for _, r := range records {
		if r.Message == "Observation added" && strings.Contains(string(r.Data), "empty config") {
			found = true
		}
	}
	if !found {
		t.Errorf("observation missing from audit log: %+v", records)
	}

	doc, err := e.bank.ReadDocument(project, memory.ActiveContextFile)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if !strings.Contains(doc, "empty config") {
		t.Errorf("active context = %q", doc)
	}
}

func TestObserveTool_Rejects(t *testing.T) {
	e := newEnv(t, func(context.Context, agent.Params) (string, error) {
		return "<solution>done</solution>", nil
	})
	id := e.start(t)
	e.wait(t, id)
	tool := NewObserveTool(e.sessions, e.coord, e.audit, e.bank, nil)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing observation", map[string]interface{}{"session_id": id}, "'observation' is required"},
		{"unknown session", map[string]interface{}{"session_id": "ghost", "observation": "x"}, "Session not found"},
		{"finished session", map[string]interface{}{"session_id": id, "observation": "x"}, "already finished"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.IsError || !strings.Contains(resultText(res), tt.want) {
				t.Errorf("result = %q, want error mentioning %q", resultText(res), tt.want)
			}
		})
	}
}

func TestObserveTool_OnlyAddressesSessionAgents(t *testing.T) {
	e := newEnv(t, blockUntilCancelled)
	id := e.start(t)
	tool := NewObserveTool(e.sessions, e.coord, e.audit, e.bank, nil)

	for _, target := range []string{"../../../../escaped", "scenario-" + id + "-7", "mother/../x"} {
		t.Run(target, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
				"session_id":  id,
				"observation": "x",
				"agent_id":    target,
			}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.IsError || !strings.Contains(resultText(res), "Unknown agent") {
				t.Errorf("result = %q", resultText(res))
			}
		})
	}

	if _, err := os.Stat(filepath.Join(e.root, "escaped.log")); !os.IsNotExist(err) {
		t.Errorf("log written outside the session directory: %v", err)
	}
	logs, err := filepath.Glob(filepath.Join(e.root, "*", "sessions", id, "logs", "*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("unexpected audit logs: %v", logs)
	}
}
