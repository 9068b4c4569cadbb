// Package coordinator owns the agents of every session.
//
// It starts the mother of a session, starts a scenario process for every
// hypothesis the mother raises, tracks each as an AgentRecord, and tears
// all of it down when a session is cancelled.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snagasuri/deebo-prototype/internal/agent"
	"github.com/snagasuri/deebo-prototype/internal/scenario"
	"github.com/snagasuri/deebo-prototype/internal/session"
)

var (
	// ErrMotherExists is returned when a session already has a mother.
	ErrMotherExists = errors.New("session already has a mother agent")
	// ErrSessionClosed is returned when spawning into a finished session.
	ErrSessionClosed = errors.New("session is no longer running")
)

// Cancellation messages.
const (
	MsgCancelled       = "Debug session cancelled successfully"
	MsgAlreadyFinished = "Session already finished"
	cancelReason       = "Session cancelled by user"
)

// Kind of agent.
type Kind string

const (
	KindMother   Kind = "mother"
	KindScenario Kind = "scenario"
)

// AgentRecord is the coordinator's view of one agent.
type AgentRecord struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Kind       Kind           `json:"kind"`
	Status     session.Status `json:"status"`
	Hypothesis string         `json:"hypothesis,omitempty"`
	PID        int            `json:"pid,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
}

// Runner is a mother agent ready to run.
type Runner interface {
	Run(ctx context.Context, p agent.Params) (string, error)
}

// MotherFactory builds the mother of a session. spawner is how that mother
// starts its scenarios.
type MotherFactory func(s *session.Session, spawner agent.ScenarioSpawner) Runner

// Starter starts scenario processes.
type Starter interface {
	Start(ctx context.Context, a scenario.Args) (*scenario.Handle, error)
}

// Releaser drops the tool connections of a session.
type Releaser interface {
	ReleaseSession(sessionID string)
}

// Outcomes records how a session ended.
type Outcomes interface {
	EndSession(sessionID, outcome string) error
}

// Options configures a Coordinator.
type Options struct {
	Sessions    *session.Manager
	NewMother   MotherFactory
	Scenarios   Starter
	Connections Releaser
	Outcomes    Outcomes
	Logger      *zap.Logger
}

type record struct {
	AgentRecord
	cancel context.CancelFunc
	handle *scenario.Handle
	done   chan struct{}
}

type sessionAgents struct {
	params    agent.Params
	mother    *record
	scenarios []*record
	next      int
}

// Coordinator tracks and controls the agents of every session.
type Coordinator struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	agents map[string]*sessionAgents
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{opts: opts, log: log, agents: make(map[string]*sessionAgents)}
}

func (c *Coordinator) agentsOf(sessionID string) *sessionAgents {
	sa, ok := c.agents[sessionID]
	if !ok {
		sa = &sessionAgents{}
		c.agents[sessionID] = sa
	}
	return sa
}

// SpawnMother starts the mother of sess. It runs detached from ctx until it
// finishes or the session is cancelled, then settles the session status.
func (c *Coordinator) SpawnMother(ctx context.Context, sess *session.Session, p agent.Params) (*AgentRecord, error) {
	c.mu.Lock()
	sa := c.agentsOf(sess.ID())
	if sa.mother != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMotherExists, sess.ID())
	}
	if err := sess.Start(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rec := &record{
		AgentRecord: AgentRecord{
			ID:        sess.ID() + "-mother",
			SessionID: sess.ID(),
			Kind:      KindMother,
			Status:    session.StatusRunning,
			StartedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sa.mother = rec
	sa.params = p
	snap := rec.AgentRecord
	c.mu.Unlock()

	runner := c.opts.NewMother(sess, spawnerFor{c})
	go c.runMother(mctx, sess, rec, runner, p)

	c.log.Info("mother spawned", zap.String("session", sess.ID()))
	return &snap, nil
}

func (c *Coordinator) runMother(ctx context.Context, sess *session.Session, rec *record, runner Runner, p agent.Params) {
	defer close(rec.done)
	defer rec.cancel()

	result, err := runner.Run(ctx, p)

	status := session.StatusComplete
	if err != nil {
		status = session.StatusError
		if ferr := sess.Fail(err); ferr == nil {
			c.log.Warn("investigation failed", zap.String("session", sess.ID()), zap.Error(err))
		}
	} else if cerr := sess.Complete(result); cerr != nil {
		c.log.Debug("result after session end", zap.String("session", sess.ID()), zap.Error(cerr))
	}
	c.finish(rec, status, err == nil)

	// Scenarios still alive after the mother are orphans. Their records
	// settle before the mother counts as exited.
	c.killScenarios(sess.ID())
	for _, d := range c.scenarioDones(sess.ID()) {
		<-d
	}
	if c.opts.Connections != nil {
		c.opts.Connections.ReleaseSession(sess.ID())
	}
	c.recordOutcome(sess.ID(), sess.Status())
}

// SpawnScenario starts one scenario for hypothesis. Ids are
// {sessionId}-{ordinal} from a per-session counter, so repeated hypothesis
// texts still get a fresh id and run.
func (c *Coordinator) SpawnScenario(ctx context.Context, p agent.Params, hypothesis string) (*scenario.Handle, *AgentRecord, error) {
	sess, ok := c.opts.Sessions.Get(p.SessionID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, p.SessionID)
	}

	c.mu.Lock()
	if sess.Status().IsTerminal() {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionClosed, p.SessionID)
	}
	sa := c.agentsOf(p.SessionID)
	id := fmt.Sprintf("%s-%d", p.SessionID, sa.next)
	sa.next++
	rec := &record{
		AgentRecord: AgentRecord{
			ID:         id,
			SessionID:  p.SessionID,
			Kind:       KindScenario,
			Status:     session.StatusPending,
			Hypothesis: hypothesis,
			StartedAt:  time.Now(),
		},
		done: make(chan struct{}),
	}
	sa.scenarios = append(sa.scenarios, rec)
	c.mu.Unlock()

	h, err := c.opts.Scenarios.Start(ctx, p.ScenarioArgs(id, hypothesis))
	if err != nil {
		c.finish(rec, session.StatusError, false)
		close(rec.done)
		snap := c.snapshot(rec)
		return nil, &snap, err
	}

	c.mu.Lock()
	rec.handle = h
	rec.PID = h.PID()
	cancelled := rec.Status.IsTerminal()
	if !cancelled {
		rec.Status = session.StatusRunning
	}
	c.mu.Unlock()
	if cancelled {
		// The session was cancelled while this process was starting.
		h.Cancel()
	}

	go func() {
		defer close(rec.done)
		v := h.Wait(context.Background())
		status := session.StatusComplete
		if !v.Success {
			status = session.StatusError
		}
		c.finish(rec, status, v.Success)
	}()

	sess.AppendLog("scenario %s started: %s", id, hypothesis)
	snap := c.snapshot(rec)
	return h, &snap, nil
}

// finish settles a record unless it already reached a terminal state.
func (c *Coordinator) finish(rec *record, status session.Status, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.Status.IsTerminal() {
		return
	}
	now := time.Now()
	rec.Status = status
	rec.EndedAt = &now
	rec.Success = &success
}

func (c *Coordinator) snapshot(rec *record) AgentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rec.AgentRecord
}

// Params returns what the mother of a session was started with.
func (c *Coordinator) Params(sessionID string) (agent.Params, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sa, ok := c.agents[sessionID]
	if !ok || sa.mother == nil {
		return agent.Params{}, false
	}
	return sa.params, true
}

// SessionAgents returns snapshots of a session's agents, mother first.
func (c *Coordinator) SessionAgents(sessionID string) []AgentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	sa, ok := c.agents[sessionID]
	if !ok {
		return nil
	}
	var out []AgentRecord
	if sa.mother != nil {
		out = append(out, sa.mother.AgentRecord)
	}
	scenarios := make([]AgentRecord, 0, len(sa.scenarios))
	for _, r := range sa.scenarios {
		scenarios = append(scenarios, r.AgentRecord)
	}
	sort.SliceStable(scenarios, func(i, j int) bool { return scenarios[i].StartedAt.Before(scenarios[j].StartedAt) })
	return append(out, scenarios...)
}

// CancelSession cancels a running session: every live agent record is
// marked cancelled, scenario processes are killed, the mother is stopped
// and the session's tool connections are released. Cancelling a finished
// session changes nothing and reports its recorded state.
func (c *Coordinator) CancelSession(sessionID string) (session.Response, error) {
	sess, ok := c.opts.Sessions.Get(sessionID)
	if !ok {
		return session.ErrorResponse(sessionID, "Session not found: "+sessionID),
			fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}

	snap, changed := sess.Cancel(cancelReason)
	if !changed {
		msg := MsgAlreadyFinished
		if snap.Status == session.StatusCancelled {
			msg = MsgCancelled
		}
		return session.FromSnapshot(snap, msg), nil
	}

	c.mu.Lock()
	var handles []*scenario.Handle
	var motherCancel context.CancelFunc
	if sa, ok := c.agents[sessionID]; ok {
		now := time.Now()
		if m := sa.mother; m != nil && !m.Status.IsTerminal() {
			m.Status = session.StatusCancelled
			m.EndedAt = &now
			motherCancel = m.cancel
		}
		for _, r := range sa.scenarios {
			if r.Status.IsTerminal() {
				continue
			}
			r.Status = session.StatusCancelled
			r.EndedAt = &now
			if r.handle != nil {
				handles = append(handles, r.handle)
			}
		}
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	if motherCancel != nil {
		motherCancel()
	}
	if c.opts.Connections != nil {
		c.opts.Connections.ReleaseSession(sessionID)
	}
	c.recordOutcome(sessionID, session.StatusCancelled)
	sess.AppendLog("session cancelled, %d scenario processes terminated", len(handles))
	c.log.Info("session cancelled", zap.String("session", sessionID), zap.Int("killed", len(handles)))

	return session.FromSnapshot(snap, MsgCancelled), nil
}

func (c *Coordinator) killScenarios(sessionID string) {
	c.mu.Lock()
	var handles []*scenario.Handle
	if sa, ok := c.agents[sessionID]; ok {
		for _, r := range sa.scenarios {
			if r.handle != nil && !r.Status.IsTerminal() {
				handles = append(handles, r.handle)
			}
		}
	}
	c.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

func (c *Coordinator) recordOutcome(sessionID string, status session.Status) {
	if c.opts.Outcomes == nil {
		return
	}
	if err := c.opts.Outcomes.EndSession(sessionID, string(status)); err != nil {
		c.log.Warn("recording session outcome", zap.String("session", sessionID), zap.Error(err))
	}
}

// Wait blocks until every agent of a session has exited. The mother is
// waited on first since it is the only agent that spawns scenarios.
func (c *Coordinator) Wait(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	var mother chan struct{}
	if sa, ok := c.agents[sessionID]; ok && sa.mother != nil {
		mother = sa.mother.done
	}
	c.mu.Unlock()

	dones := c.scenarioDones(sessionID)
	if mother != nil {
		select {
		case <-mother:
		case <-ctx.Done():
			return ctx.Err()
		}
		dones = c.scenarioDones(sessionID)
	}
	for _, d := range dones {
		select {
		case <-d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Coordinator) scenarioDones(sessionID string) []chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	sa, ok := c.agents[sessionID]
	if !ok {
		return nil
	}
	dones := make([]chan struct{}, 0, len(sa.scenarios))
	for _, r := range sa.scenarios {
		dones = append(dones, r.done)
	}
	return dones
}

// Cleanup forgets a session: its agent records and the session itself.
// A session that is still running is cancelled first.
func (c *Coordinator) Cleanup(sessionID string) {
	if sess, ok := c.opts.Sessions.Get(sessionID); ok && !sess.Status().IsTerminal() {
		_, _ = c.CancelSession(sessionID)
	}
	c.mu.Lock()
	delete(c.agents, sessionID)
	c.mu.Unlock()
	c.opts.Sessions.Remove(sessionID)
}

// Shutdown cancels every running session and waits for their agents.
func (c *Coordinator) Shutdown(ctx context.Context) {
	for _, s := range c.opts.Sessions.List() {
		if !s.Status().IsTerminal() {
			_, _ = c.CancelSession(s.ID())
		}
		_ = c.Wait(ctx, s.ID())
	}
}

// spawnerFor adapts the coordinator to what a mother needs.
type spawnerFor struct{ c *Coordinator }

func (s spawnerFor) SpawnScenario(ctx context.Context, p agent.Params, hypothesis string) (string, scenario.Waiter, error) {
	h, rec, err := s.c.SpawnScenario(ctx, p, hypothesis)
	id := ""
	if rec != nil {
		id = rec.ID
	}
	if err != nil {
		return id, nil, err
	}
	return id, h, nil
}
