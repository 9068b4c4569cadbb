package llm

import (
	"context"
	"sync"
)

// Replay is a Client that answers from a fixed script of turns. It records
// every conversation it was asked to complete. Once the script runs out
// the last turn repeats.
type Replay struct {
	mu    sync.Mutex
	turns []string
	errs  []error
	calls [][]Message
}

// NewReplay creates a Replay answering with turns in order.
func NewReplay(turns ...string) *Replay {
	return &Replay{turns: turns}
}

// FailAt makes the i-th call (zero-based) return err.
func (r *Replay) FailAt(i int, err error) *Replay {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.errs) <= i {
		r.errs = append(r.errs, nil)
	}
	r.errs[i] = err
	return r
}

// Complete implements Client.
func (r *Replay) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.calls)
	r.calls = append(r.calls, append([]Message(nil), messages...))
	if n < len(r.errs) && r.errs[n] != nil {
		return "", r.errs[n]
	}
	if len(r.turns) == 0 {
		return "", nil
	}
	if n >= len(r.turns) {
		n = len(r.turns) - 1
	}
	return r.turns[n], nil
}

// Calls returns the conversations seen so far.
func (r *Replay) Calls() [][]Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]Message(nil), r.calls...)
}
