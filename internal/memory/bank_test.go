package memory_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/snagasuri/deebo-prototype/internal/memory"
)

func newTestBank(t *testing.T) (*memory.Bank, string) {
	t.Helper()
	root := t.TempDir()
	s, err := memory.New(memory.DefaultConfig(root))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return memory.NewBank(s, root), root
}

func TestProjectID(t *testing.T) {
	a := memory.ProjectID("/work/repo")
	if len(a) != 12 {
		t.Fatalf("len = %d, want 12", len(a))
	}
	if memory.ProjectID("/work/repo/") != a || memory.ProjectID("/work/./repo") != a {
		t.Error("equivalent paths must map to the same project")
	}
	if memory.ProjectID("/work/other") == a {
		t.Error("different repos must differ")
	}
}

func TestProgressRecord_Markdown(t *testing.T) {
	rec := memory.ProgressRecord{
		SessionID:    "session-1",
		Error:        "nil pointer",
		Result:       "<solution>guard the map</solution>",
		ScenariosRun: 3,
		Duration:     41600 * time.Millisecond,
		At:           time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	want := "\n## Debug Session session-1 - 2026-03-01T09:30:00Z\n" +
		"Error: nil pointer\n" +
		"<solution>guard the map</solution>\n" +
		"Scenarios Run: 3\n" +
		"Duration: 42s\n"
	if got := rec.Markdown(); got != want {
		t.Errorf("Markdown =\n%q\nwant\n%q", got, want)
	}

	rec.Failure = "investigation exceeded maximum runtime"
	if got := rec.Markdown(); !strings.Contains(got, "Failed: investigation exceeded maximum runtime") || strings.Contains(got, "guard the map") {
		t.Errorf("failure record = %q", got)
	}
}

func TestBank_MirrorsDocuments(t *testing.T) {
	b, root := newTestBank(t)
	pid := memory.ProjectID("/repo")

	if err := b.BeginSession("s1", pid, "/repo", "boom"); err != nil {
		t.Fatal(err)
	}
	if b.ProjectDir(pid) != filepath.Join(root, pid) {
		t.Errorf("ProjectDir = %s", b.ProjectDir(pid))
	}
	if err := b.AppendActiveContext(pid, "s1", "mother", "<hypothesis>stale cache</hypothesis>"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddObservation(pid, "s1", "scenario-s1-0", "cache TTL is zero"); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendProgress(pid, memory.ProgressRecord{SessionID: "s1", Result: "done", At: time.Now()}); err != nil {
		t.Fatal(err)
	}

	active, err := b.ReadDocument(pid, memory.ActiveContextFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(active, "stale cache") || !strings.Contains(active, "cache TTL is zero") {
		t.Errorf("activeContext.md = %q", active)
	}
	if strings.Index(active, "stale cache") > strings.Index(active, "cache TTL is zero") {
		t.Error("appends must keep order")
	}
	progress, _ := b.ReadDocument(pid, memory.ProgressFile)
	if !strings.Contains(progress, "## Debug Session s1") {
		t.Errorf("progress.md = %q", progress)
	}

	entries, err := b.Store().SessionEntries("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want 3", len(entries))
	}
}

func TestBank_ReadMissingDocument(t *testing.T) {
	b, _ := newTestBank(t)
	got, err := b.ReadDocument("nothing", memory.ProgressFile)
	if err != nil || got != "" {
		t.Errorf("ReadDocument = %q, %v", got, err)
	}
}
