package memtools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/memory"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

var ctx = context.Background()

// newTestBank creates a memory bank in a temp directory for testing.
func newTestBank(t *testing.T) *memory.Bank {
	t.Helper()
	dir := t.TempDir()
	store, err := memory.New(memory.Config{
		DataDir:          dir,
		MaxEntryLength:   4000,
		MaxSearchResults: 20,
		DedupeWindow:     15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return memory.NewBank(store, dir)
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
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

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
}

func mustBeToolError(t *testing.T, r *mcp.CallToolResult, err error, contains string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !r.IsError {
		t.Fatalf("expected tool error, got: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), contains) {
		t.Errorf("error %q should mention %q", resultText(r), contains)
	}
}

// seedSession records a session with one active-context turn and, when
// ended, a progress record.
func seedSession(t *testing.T, bank *memory.Bank, id, repo, turn string, ended bool) string {
	t.Helper()
	project := memory.ProjectID(repo)
	if err := bank.BeginSession(id, project, repo, "TypeError: x is undefined"); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if err := bank.AppendActiveContext(project, id, "mother", turn); err != nil {
		t.Fatalf("AppendActiveContext: %v", err)
	}
	if ended {
		if err := bank.AppendProgress(project, memory.ProgressRecord{
			SessionID:    id,
			Error:        "TypeError: x is undefined",
			Result:       "<solution>initialise x before the loop</solution>",
			ScenariosRun: 2,
			Duration:     42 * time.Second,
			At:           time.Now(),
		}); err != nil {
			t.Fatalf("AppendProgress: %v", err)
		}
		if err := bank.EndSession(id, "complete"); err != nil {
			t.Fatalf("EndSession: %v", err)
		}
	}
	return project
}

// ─── memory_search ───────────────────────────────────────────────────────────

func TestSearchTool_Definition(t *testing.T) {
	def := NewSearchTool(nil).Definition()
	if def.Name != "memory_search" {
		t.Errorf("name = %q", def.Name)
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "query" {
		t.Errorf("required = %v, want [query]", def.InputSchema.Required)
	}
}

func TestSearchTool_FindsResults(t *testing.T) {
	bank := newTestBank(t)
	seedSession(t, bank, "s1", "/repos/web", "<hypothesis>the loop reads x before assignment</hypothesis>", true)
	seedSession(t, bank, "s2", "/repos/web", "<hypothesis>stale cache entry</hypothesis>", false)

	r, err := NewSearchTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{
		"query": "assignment",
	}))
	mustNotError(t, r, err)
	text := resultText(r)

	if !strings.Contains(text, "before assignment") {
		t.Errorf("expected the matching turn, got: %s", text)
	}
	if strings.Contains(text, "stale cache") {
		t.Errorf("unrelated entry returned: %s", text)
	}
	if !strings.Contains(text, "tokens") {
		t.Errorf("missing token footer: %s", text)
	}
}

func TestSearchTool_NoResults(t *testing.T) {
	bank := newTestBank(t)
	r, err := NewSearchTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{
		"query": "nonexistent topic xyz123",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No memories found") {
		t.Errorf("expected no-results message, got: %s", resultText(r))
	}
}

func TestSearchTool_MissingQuery(t *testing.T) {
	bank := newTestBank(t)
	r, err := NewSearchTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{}))
	mustBeToolError(t, r, err, "query")
}

func TestSearchTool_WithFilters(t *testing.T) {
	bank := newTestBank(t)
	seedSession(t, bank, "s1", "/repos/api", "crash in handler when body is empty", true)
	seedSession(t, bank, "s2", "/repos/cli", "crash in flag parsing", false)

	tests := []struct {
		name    string
		args    map[string]interface{}
		want    string
		notWant string
	}{
		{
			name:    "repo filter",
			args:    map[string]interface{}{"query": "crash", "repo_path": "/repos/cli"},
			want:    "flag parsing",
			notWant: "handler",
		},
		{
			name:    "project filter",
			args:    map[string]interface{}{"query": "crash", "project": memory.ProjectID("/repos/api")},
			want:    "handler",
			notWant: "flag parsing",
		},
		{
			name:    "kind filter",
			args:    map[string]interface{}{"query": "initialise", "kind": memory.KindProgress},
			want:    "Debug Session s1",
			notWant: "flag parsing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewSearchTool(bank.Store()).Handle(ctx, makeReq(tt.args))
			mustNotError(t, r, err)
			text := resultText(r)
			if !strings.Contains(text, tt.want) {
				t.Errorf("want %q in: %s", tt.want, text)
			}
			if strings.Contains(text, tt.notWant) {
				t.Errorf("did not want %q in: %s", tt.notWant, text)
			}
		})
	}
}

func TestSearchTool_SummaryLevel(t *testing.T) {
	bank := newTestBank(t)
	seedSession(t, bank, "s1", "/repos/web", "Race on the session map\nthe writer holds no lock while the reader iterates", false)

	r, err := NewSearchTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{
		"query":        "race",
		"detail_level": "summary",
	}))
	mustNotError(t, r, err)
	text := resultText(r)

	if !strings.Contains(text, "Race on the session map") {
		t.Errorf("summary should contain title, got: %s", text)
	}
	if strings.Contains(text, "holds no lock") {
		t.Errorf("summary should NOT contain content, got: %s", text)
	}
	if !strings.Contains(text, "detail_level") {
		t.Errorf("summary should have footer hint, got: %s", text)
	}
}

func TestSearchTool_FullAndStandardLevels(t *testing.T) {
	bank := newTestBank(t)
	long := strings.Repeat("Detailed search content. ", 50)
	seedSession(t, bank, "s1", "/repos/web", long, false)

	full, err := NewSearchTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{
		"query":        "search content",
		"detail_level": "full",
	}))
	mustNotError(t, full, err)
	if n := strings.Count(resultText(full), "Detailed search content."); n < 50 {
		t.Errorf("full level should not truncate (got %d of 50 repetitions)", n)
	}

	std, err := NewSearchTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{
		"query": "search content",
	}))
	mustNotError(t, std, err)
	if n := strings.Count(resultText(std), "Detailed search content."); n >= 20 {
		t.Errorf("standard level should truncate (got %d repetitions)", n)
	}
}

// ─── memory_recent ───────────────────────────────────────────────────────────

func TestRecentTool_NewestFirst(t *testing.T) {
	bank := newTestBank(t)
	seedSession(t, bank, "s1", "/repos/web", "first turn", false)
	project := seedSession(t, bank, "s2", "/repos/web", "second turn", false)

	r, err := NewRecentTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{
		"repo_path": "/repos/web",
	}))
	mustNotError(t, r, err)
	text := resultText(r)

	if !strings.Contains(text, project) {
		t.Errorf("expected project id in header: %s", text)
	}
	first, second := strings.Index(text, "first turn"), strings.Index(text, "second turn")
	if first < 0 || second < 0 || second > first {
		t.Errorf("expected newest first, got: %s", text)
	}
}

func TestRecentTool_LimitAndKind(t *testing.T) {
	bank := newTestBank(t)
	seedSession(t, bank, "s1", "/repos/web", "turn one", true)
	seedSession(t, bank, "s2", "/repos/web", "turn two", true)

	r, err := NewRecentTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{
		"repo_path": "/repos/web",
		"kind":      memory.KindProgress,
		"limit":     float64(1),
	}))
	mustNotError(t, r, err)
	text := resultText(r)

	if !strings.Contains(text, "Debug Session s2") || strings.Contains(text, "Debug Session s1") {
		t.Errorf("expected only the newest progress record: %s", text)
	}
	if strings.Contains(text, "turn two") {
		t.Errorf("kind filter leaked active context: %s", text)
	}
	if !strings.Contains(text, "More entries exist") {
		t.Errorf("expected a hint about capped results: %s", text)
	}
}

func TestRecentTool_Errors(t *testing.T) {
	bank := newTestBank(t)
	tool := NewRecentTool(bank.Store())

	r, err := tool.Handle(ctx, makeReq(map[string]interface{}{}))
	mustBeToolError(t, r, err, "repo_path")

	r, err = tool.Handle(ctx, makeReq(map[string]interface{}{"project": "000000000000"}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "No memories recorded") {
		t.Errorf("expected empty message, got: %s", resultText(r))
	}
}

// ─── memory_session ──────────────────────────────────────────────────────────

func TestSessionTool_Trail(t *testing.T) {
	bank := newTestBank(t)
	seedSession(t, bank, "s1", "/repos/web", "checked the loop", true)

	r, err := NewSessionTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{"session_id": "s1"}))
	mustNotError(t, r, err)
	text := resultText(r)

	for _, want := range []string{"Session s1", "/repos/web", "TypeError", "(complete)", "checked the loop", "Scenarios Run: 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in: %s", want, text)
		}
	}
	if strings.Index(text, "checked the loop") > strings.Index(text, "Scenarios Run") {
		t.Errorf("entries should be oldest first: %s", text)
	}
}

func TestSessionTool_Running(t *testing.T) {
	bank := newTestBank(t)
	seedSession(t, bank, "s1", "/repos/web", "still going", false)

	r, err := NewSessionTool(bank.Store()).Handle(ctx, makeReq(map[string]interface{}{"session_id": "s1"}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), "Still running") {
		t.Errorf("expected running marker: %s", resultText(r))
	}
}

func TestSessionTool_Errors(t *testing.T) {
	bank := newTestBank(t)
	tool := NewSessionTool(bank.Store())

	r, err := tool.Handle(ctx, makeReq(map[string]interface{}{}))
	mustBeToolError(t, r, err, "session_id")

	r, err = tool.Handle(ctx, makeReq(map[string]interface{}{"session_id": "ghost"}))
	mustBeToolError(t, r, err, "no memories recorded")
}
