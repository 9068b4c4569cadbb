package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Session is one debugging investigation. All accessors are safe for
// concurrent use; the mother agent, the coordinator and MCP handlers all
// touch the same record.
type Session struct {
	id        string
	createdAt time.Time

	mu          sync.Mutex
	status      Status
	logs        []string
	finalResult json.RawMessage
	errMsg      string
	updatedAt   time.Time
}

func newSession(id string) *Session {
	now := timeNow().UTC()
	return &Session{
		id:        id,
		createdAt: now,
		updatedAt: now,
		status:    StatusPending,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AppendLog adds a human-readable event to the session log.
func (s *Session) AppendLog(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, fmt.Sprintf(format, args...))
	// A terminal session keeps the time it ended.
	if !s.status.IsTerminal() {
		s.updatedAt = timeNow().UTC()
	}
}

// Logs returns a copy of the session log, oldest first.
func (s *Session) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

// Transition moves the session to status to.
func (s *Session) Transition(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to Status) error {
	if err := CanTransition(s.status, to); err != nil {
		return fmt.Errorf("session %s: %w", s.id, err)
	}
	s.status = to
	s.updatedAt = timeNow().UTC()
	return nil
}

// Start marks the session running.
func (s *Session) Start() error {
	return s.Transition(StatusRunning)
}

// Complete records the final result and marks the session complete.
func (s *Session) Complete(result any) error {
	raw, err := EncodeJSON(result)
	if err != nil {
		return fmt.Errorf("session %s: encoding result: %w", s.id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusComplete); err != nil {
		return err
	}
	s.finalResult = raw
	s.logs = append(s.logs, "Debug session completed")
	return nil
}

// Fail records err and marks the session as errored.
func (s *Session) Fail(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusError); err != nil {
		return err
	}
	s.errMsg = cause.Error()
	s.logs = append(s.logs, "Debug session failed: "+s.errMsg)
	return nil
}

// Cancel marks the session cancelled. The second return value is false
// when the session was already terminal; its recorded state is untouched.
func (s *Session) Cancel(reason string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return s.snapshotLocked(), false
	}
	_ = s.transitionLocked(StatusCancelled)
	s.errMsg = reason
	s.logs = append(s.logs, "Debug session cancelled: "+reason)
	return s.snapshotLocked(), true
}

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Logs        []string        `json:"logs"`
	FinalResult json.RawMessage `json:"final_result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          s.id,
		Status:      s.status,
		Logs:        append([]string(nil), s.logs...),
		FinalResult: append(json.RawMessage(nil), s.finalResult...),
		Error:       s.errMsg,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}
