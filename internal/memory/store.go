// Package memory implements the deebo memory bank.
//
// The memory bank is the durable, append-oriented investigation log that
// survives across debugging sessions of the same project. Entries are kept
// in SQLite with an FTS5 index so past hypotheses and outcomes can be
// searched, and every entry is mirrored into markdown documents under the
// project's memory directory so agents can read them through the
// filesystem tool.
package memory

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned when a debug session has no record.
var ErrNotFound = errors.New("memory: not found")

// Entry kinds.
const (
	KindActiveContext = "activeContext"
	KindProgress      = "progress"
	KindObservation   = "observation"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// DebugSession is the memory bank's record of one investigation.
type DebugSession struct {
	ID        string  `json:"id"`
	Project   string  `json:"project"`
	RepoPath  string  `json:"repo_path"`
	Error     string  `json:"error"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
	Outcome   *string `json:"outcome,omitempty"`
}

// Entry is one memory bank record.
type Entry struct {
	ID             int64   `json:"id"`
	SessionID      string  `json:"session_id"`
	Project        string  `json:"project"`
	Kind           string  `json:"kind"`
	Agent          *string `json:"agent,omitempty"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	DuplicateCount int     `json:"duplicate_count"`
	CreatedAt      string  `json:"created_at"`
}

// SearchResult embeds an Entry with its FTS5 rank score.
type SearchResult struct {
	Entry
	Rank float64 `json:"rank"`
}

// AddEntryParams holds the input for a new entry.
type AddEntryParams struct {
	SessionID string
	Project   string
	Kind      string
	Agent     string
	Title     string
	Content   string
}

// SearchOptions holds filters for FTS5 search queries.
type SearchOptions struct {
	Kind    string
	Project string
	Limit   int
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory store configuration.
type Config struct {
	DataDir          string
	MaxEntryLength   int
	MaxSearchResults int
	DedupeWindow     time.Duration
}

// DefaultConfig returns the default configuration rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		MaxEntryLength:   20000,
		MaxSearchResults: 20,
		DedupeWindow:     15 * time.Minute,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the memory bank database backed by SQLite + FTS5.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type storeHooks struct {
	exec func(db execer, query string, args ...any) (sql.Result, error)
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

// New creates a Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "memory.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS debug_sessions (
			id         TEXT PRIMARY KEY,
			project    TEXT NOT NULL,
			repo_path  TEXT NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL DEFAULT (datetime('now')),
			ended_at   TEXT,
			outcome    TEXT
		);

		CREATE TABLE IF NOT EXISTS entries (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id      TEXT    NOT NULL,
			project         TEXT    NOT NULL,
			kind            TEXT    NOT NULL,
			agent           TEXT,
			title           TEXT    NOT NULL,
			content         TEXT    NOT NULL,
			normalized_hash TEXT    NOT NULL,
			duplicate_count INTEGER NOT NULL DEFAULT 1,
			created_at      TEXT    NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id);
		CREATE INDEX IF NOT EXISTS idx_entries_project ON entries(project, kind);
		CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_entries_dedupe  ON entries(normalized_hash, project, kind, created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			title,
			content,
			kind,
			project,
			content='entries',
			content_rowid='id'
		);
	`
	if _, err := s.execHook(s.db, schema); err != nil {
		return err
	}

	// Create FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='entries_fts_insert'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		triggers := `
			CREATE TRIGGER entries_fts_insert AFTER INSERT ON entries BEGIN
				INSERT INTO entries_fts(rowid, title, content, kind, project)
				VALUES (new.id, new.title, new.content, new.kind, new.project);
			END;

			CREATE TRIGGER entries_fts_delete AFTER DELETE ON entries BEGIN
				INSERT INTO entries_fts(entries_fts, rowid, title, content, kind, project)
				VALUES ('delete', old.id, old.title, old.content, old.kind, old.project);
			END;
		`
		if _, err := s.execHook(s.db, triggers); err != nil {
			return err
		}
		return nil
	}
	return err
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// StartSession registers an investigation. Re-registering is a no-op.
func (s *Store) StartSession(id, project, repoPath, errText string) error {
	_, err := s.execHook(s.db,
		`INSERT OR IGNORE INTO debug_sessions (id, project, repo_path, error) VALUES (?, ?, ?, ?)`,
		id, project, repoPath, errText,
	)
	return err
}

// EndSession records the outcome of an investigation.
func (s *Store) EndSession(id, outcome string) error {
	_, err := s.execHook(s.db,
		`UPDATE debug_sessions SET ended_at = datetime('now'), outcome = ? WHERE id = ?`,
		nullableString(outcome), id,
	)
	return err
}

// GetSession retrieves an investigation by id.
func (s *Store) GetSession(id string) (*DebugSession, error) {
	row := s.db.QueryRow(
		`SELECT id, project, repo_path, error, started_at, ended_at, outcome FROM debug_sessions WHERE id = ?`, id,
	)
	var ds DebugSession
	err := row.Scan(&ds.ID, &ds.Project, &ds.RepoPath, &ds.Error, &ds.StartedAt, &ds.EndedAt, &ds.Outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// ─── Entries ─────────────────────────────────────────────────────────────────

// AddEntry appends an entry. An identical entry (same normalized content,
// project and kind) inside the dedupe window bumps the existing row's
// duplicate count instead of inserting. Returns the entry id and whether a
// new row was written.
func (s *Store) AddEntry(p AddEntryParams) (int64, bool, error) {
	if p.Project == "" || p.Kind == "" {
		return 0, false, errors.New("memory: project and kind are required")
	}
	content := strings.TrimSpace(p.Content)
	if max := s.cfg.MaxEntryLength; max > 0 && len(content) > max {
		content = content[:max] + "... [truncated]"
	}
	title := p.Title
	if title == "" {
		title = firstLine(content)
	}
	normHash := hashNormalized(content)

	window := dedupeWindowExpression(s.cfg.DedupeWindow)
	var existingID int64
	err := s.db.QueryRow(
		`SELECT id FROM entries
		 WHERE normalized_hash = ?
		   AND project = ?
		   AND kind = ?
		   AND datetime(created_at) >= datetime('now', ?)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		normHash, p.Project, p.Kind, window,
	).Scan(&existingID)
	if err == nil {
		if _, err := s.execHook(s.db,
			`UPDATE entries SET duplicate_count = duplicate_count + 1 WHERE id = ?`, existingID,
		); err != nil {
			return 0, false, err
		}
		return existingID, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	res, err := s.execHook(s.db,
		`INSERT INTO entries (session_id, project, kind, agent, title, content, normalized_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.Project, p.Kind, nullableString(p.Agent), title, content, normHash,
	)
	if err != nil {
		return 0, false, err
	}
	id, err := res.LastInsertId()
	return id, true, err
}

// SessionEntries returns every entry of one investigation, oldest first.
func (s *Store) SessionEntries(sessionID string) ([]Entry, error) {
	return s.queryEntries(
		`SELECT id, session_id, project, kind, agent, title, content, duplicate_count, created_at
		 FROM entries WHERE session_id = ? ORDER BY id ASC`, sessionID)
}

// Recent returns the newest entries of a project, optionally of one kind.
func (s *Store) Recent(project, kind string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, session_id, project, kind, agent, title, content, duplicate_count, created_at
		FROM entries WHERE project = ?`
	args := []any{project}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	return s.queryEntries(query, args...)
}

// ─── Search (FTS5) ───────────────────────────────────────────────────────────

// Search performs full-text search across entries with filters.
// If the query is empty or whitespace-only, falls back to recent entries.
func (s *Store) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)

	var (
		sqlStr string
		args   []any
	)
	if ftsQuery == "" {
		sqlStr = `
			SELECT e.id, e.session_id, e.project, e.kind, e.agent, e.title, e.content, e.duplicate_count, e.created_at,
			       0 AS rank
			FROM entries e
			WHERE 1=1
		`
	} else {
		sqlStr = `
			SELECT e.id, e.session_id, e.project, e.kind, e.agent, e.title, e.content, e.duplicate_count, e.created_at,
			       fts.rank
			FROM entries_fts fts
			JOIN entries e ON e.id = fts.rowid
			WHERE entries_fts MATCH ?
		`
		args = append(args, ftsQuery)
	}

	if opts.Kind != "" {
		sqlStr += " AND e.kind = ?"
		args = append(args, opts.Kind)
	}
	if opts.Project != "" {
		sqlStr += " AND e.project = ?"
		args = append(args, opts.Project)
	}
	if ftsQuery == "" {
		sqlStr += " ORDER BY e.id DESC LIMIT ?"
	} else {
		sqlStr += " ORDER BY fts.rank LIMIT ?"
	}
	args = append(args, limit)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		if err := rows.Scan(
			&sr.ID, &sr.SessionID, &sr.Project, &sr.Kind, &sr.Agent, &sr.Title, &sr.Content,
			&sr.DuplicateCount, &sr.CreatedAt, &sr.Rank,
		); err != nil {
			return nil, err
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}

func (s *Store) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.Project, &e.Kind, &e.Agent, &e.Title, &e.Content,
			&e.DuplicateCount, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Truncate shortens a string to max length with ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return Truncate(strings.TrimSpace(line), 120)
}

func hashNormalized(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

func dedupeWindowExpression(window time.Duration) string {
	if window <= 0 {
		window = 15 * time.Minute
	}
	minutes := int(window.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return "-" + strconv.Itoa(minutes) + " minutes"
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "nil parser panic" → `"nil" "parser" "panic"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
