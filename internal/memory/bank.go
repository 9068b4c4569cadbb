package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Markdown documents mirrored under each project's memory directory.
const (
	ActiveContextFile = "activeContext.md"
	ProgressFile      = "progress.md"
)

// ProjectID derives the stable project identifier of a repository: the
// first 12 hex characters of the sha256 of its cleaned absolute path.
func ProjectID(repoPath string) string {
	p := repoPath
	if abs, err := filepath.Abs(repoPath); err == nil {
		p = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(p)))
	return hex.EncodeToString(sum[:])[:12]
}

// ProgressRecord is the structured summary written when an investigation ends.
type ProgressRecord struct {
	SessionID    string
	Error        string
	Result       string
	Failure      string
	ScenariosRun int
	Duration     time.Duration
	At           time.Time
}

// Markdown renders the record as a progress section.
func (r ProgressRecord) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Debug Session %s - %s\n", r.SessionID, r.At.UTC().Format(time.RFC3339))
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	if r.Failure != "" {
		fmt.Fprintf(&b, "Failed: %s\n", r.Failure)
	} else if r.Result != "" {
		b.WriteString(strings.TrimSpace(r.Result))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Scenarios Run: %d\n", r.ScenariosRun)
	fmt.Fprintf(&b, "Duration: %ds\n", int(r.Duration.Round(time.Second).Seconds()))
	return b.String()
}

// Bank is the memory bank of every project below one root directory.
// Writes land in the Store and are appended to the project's markdown
// documents so agents can read them through the filesystem tool.
type Bank struct {
	store *Store
	root  string

	// One writer at a time per document keeps appends whole.
	mu sync.Mutex
}

// NewBank creates a Bank over store with markdown documents below root.
func NewBank(store *Store, root string) *Bank {
	return &Bank{store: store, root: root}
}

// Store returns the underlying store.
func (b *Bank) Store() *Store { return b.store }

// ProjectDir is the memory directory of one project.
func (b *Bank) ProjectDir(projectID string) string {
	return filepath.Join(b.root, projectID)
}

// BeginSession registers an investigation and makes sure the project's
// memory directory exists before any agent is pointed at it.
func (b *Bank) BeginSession(sessionID, projectID, repoPath, errText string) error {
	if err := os.MkdirAll(b.ProjectDir(projectID), 0o700); err != nil {
		return fmt.Errorf("memory: create project dir: %w", err)
	}
	return b.store.StartSession(sessionID, projectID, repoPath, errText)
}

// EndSession records the outcome of an investigation.
func (b *Bank) EndSession(sessionID, outcome string) error {
	return b.store.EndSession(sessionID, outcome)
}

// AppendActiveContext records an agent turn in the project's active context.
func (b *Bank) AppendActiveContext(projectID, sessionID, agent, content string) error {
	return b.append(KindActiveContext, projectID, sessionID, agent, "", "\n"+strings.TrimSpace(content)+"\n")
}

// AppendProgress records the structured end-of-investigation summary.
func (b *Bank) AppendProgress(projectID string, rec ProgressRecord) error {
	title := "Debug Session " + rec.SessionID
	return b.append(KindProgress, projectID, rec.SessionID, "mother", title, rec.Markdown())
}

// AddObservation records an externally supplied observation. Observations
// are mirrored into the active context so the running mother sees them.
func (b *Bank) AddObservation(projectID, sessionID, agent, observation string) error {
	text := fmt.Sprintf("\n### Observation (%s, %s)\n%s\n", agent, sessionID, strings.TrimSpace(observation))
	return b.append(KindObservation, projectID, sessionID, agent, "", text)
}

func (b *Bank) append(kind, projectID, sessionID, agent, title, text string) error {
	if _, _, err := b.store.AddEntry(AddEntryParams{
		SessionID: sessionID,
		Project:   projectID,
		Kind:      kind,
		Agent:     agent,
		Title:     title,
		Content:   text,
	}); err != nil {
		return fmt.Errorf("memory: add %s entry: %w", kind, err)
	}

	file := ActiveContextFile
	if kind == KindProgress {
		file = ProgressFile
	}
	return b.appendFile(projectID, file, text)
}

func (b *Bank) appendFile(projectID, name, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := b.ProjectDir(projectID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("memory: create project dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("memory: open %s: %w", name, err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return fmt.Errorf("memory: write %s: %w", name, err)
	}
	return f.Close()
}

// ReadDocument returns the content of one of a project's markdown documents.
// A missing document reads as empty.
func (b *Bank) ReadDocument(projectID, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(b.ProjectDir(projectID), name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
