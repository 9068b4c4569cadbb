// Package session owns debug session records.
//
// A Session is the externally visible unit of work: one investigation of
// one reported error, addressed by its id. Its status only moves forward:
//
//	pending → running → complete | error | cancelled
//
// pending may also jump straight to a terminal state (a session that failed
// to start or was cancelled before its mother agent ran). Terminal states
// never change again.
package session

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state shared by sessions and agent records.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// ErrTerminal is returned when a transition leaves a terminal state.
var ErrTerminal = errors.New("session already in a terminal state")

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusComplete, StatusError, StatusCancelled:
		return true
	}
	return false
}

// CanTransition checks a status change against the forward-only machine.
func CanTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("invalid status %q", to)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s → %s", ErrTerminal, from, to)
	}
	switch from {
	case StatusPending:
		return nil
	case StatusRunning:
		if to == StatusPending {
			return fmt.Errorf("cannot move from running back to pending")
		}
		return nil
	}
	return fmt.Errorf("invalid status %q", from)
}
