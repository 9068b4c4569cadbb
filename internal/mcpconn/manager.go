// Package mcpconn manages the MCP client connections agents use to reach
// their tools.
//
// Connections are keyed by (agent, tool, session). Concurrent requests for
// the same key share one in-flight dial: the first caller dials, every
// other caller waits for that outcome. A failed dial is evicted so the next
// request starts fresh.
package mcpconn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snagasuri/deebo-prototype/internal/toolreg"
)

// ErrReleased is returned to callers whose connection was released while
// it was still being established.
var ErrReleased = errors.New("mcpconn: connection released during dial")

// Dialer starts a tool server and completes the MCP handshake.
type Dialer func(ctx context.Context, tool toolreg.Resolved) (Client, error)

// Options configures a Manager.
type Options struct {
	Registry *toolreg.Registry
	Dialer   Dialer

	// Vars holds the placeholder values shared by every connection.
	// RepoPath and MemoryPath are filled per acquisition.
	Vars toolreg.Vars

	// MemoryPath maps a repository to its project memory directory.
	MemoryPath func(repoPath string) string

	Logger *zap.Logger
}

// pending is the shared outcome of one dial.
type pending struct {
	key       string
	sessionID string
	done      chan struct{}
	client    Client
	err       error
}

// Manager is the process-wide pool of tool connections.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu    sync.Mutex
	conns map[string]*pending
}

// New creates a Manager.
func New(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = toolreg.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Dialer == nil {
		opts.Dialer = StdioDialer(nil, log)
	}
	return &Manager{opts: opts, log: log, conns: make(map[string]*pending)}
}

// Key is the pool key of one connection.
func Key(agentName, toolName, sessionID string) string {
	return agentName + "-" + toolName + "-" + sessionID
}

// Acquire returns a ready connection to toolName for the given agent and
// session, dialing it if needed. At most one dial per key is in flight.
func (m *Manager) Acquire(ctx context.Context, agentName, toolName, sessionID, repoPath string) (Client, error) {
	if !m.opts.Registry.Has(toolName) {
		return nil, fmt.Errorf("%w: %s", toolreg.ErrUnknownTool, toolName)
	}
	key := Key(agentName, toolName, sessionID)

	m.mu.Lock()
	p, ok := m.conns[key]
	if !ok {
		p = &pending{key: key, sessionID: sessionID, done: make(chan struct{})}
		m.conns[key] = p
	}
	m.mu.Unlock()

	if ok {
		return m.wait(ctx, p)
	}

	client, err := m.dial(ctx, toolName, repoPath)

	m.mu.Lock()
	current := m.conns[key] == p
	if err != nil && current {
		delete(m.conns, key)
	}
	m.mu.Unlock()

	if err == nil && !current {
		_ = client.Close()
		client, err = nil, ErrReleased
	}
	if err != nil {
		m.log.Warn("tool connection failed", zap.String("key", key), zap.Error(err))
	}
	p.client, p.err = client, err
	close(p.done)
	return client, err
}

func (m *Manager) wait(ctx context.Context, p *pending) (Client, error) {
	select {
	case <-p.done:
		return p.client, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) dial(ctx context.Context, toolName, repoPath string) (Client, error) {
	vars := m.opts.Vars
	vars.RepoPath = repoPath
	if m.opts.MemoryPath != nil {
		vars.MemoryPath = m.opts.MemoryPath(repoPath)
	}
	resolved, err := m.opts.Registry.Resolve(toolName, vars)
	if err != nil {
		return nil, err
	}
	if resolved.UsedFallback {
		m.log.Info("using fallback launcher", zap.String("tool", toolName), zap.String("command", resolved.Command))
	}
	client, err := m.opts.Dialer(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("connecting %s: %w", toolName, err)
	}
	return client, nil
}

// Tools are the connections every agent requires.
type Tools struct {
	Git        Client
	Filesystem Client
}

// Get returns the connection registered under a tool name.
func (t Tools) Get(name string) (Client, bool) {
	switch name {
	case toolreg.Git:
		return t.Git, t.Git != nil
	case toolreg.Filesystem:
		return t.Filesystem, t.Filesystem != nil
	}
	return nil, false
}

// AcquireRequired connects the git and filesystem tools concurrently.
func (m *Manager) AcquireRequired(ctx context.Context, agentName, sessionID, repoPath string) (Tools, error) {
	var tools Tools
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := m.Acquire(gctx, agentName, toolreg.Git, sessionID, repoPath)
		tools.Git = c
		return err
	})
	g.Go(func() error {
		c, err := m.Acquire(gctx, agentName, toolreg.Filesystem, sessionID, repoPath)
		tools.Filesystem = c
		return err
	})
	if err := g.Wait(); err != nil {
		return Tools{}, err
	}
	return tools, nil
}

// ReleaseSession closes every connection belonging to sessionID. Dials
// still in flight close their client when they complete.
func (m *Manager) ReleaseSession(sessionID string) {
	m.mu.Lock()
	var released []*pending
	for k, p := range m.conns {
		if p.sessionID == sessionID {
			delete(m.conns, k)
			released = append(released, p)
		}
	}
	m.mu.Unlock()
	m.closeAll(released)
}

// Keys lists the pooled connection keys.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.conns))
	for k := range m.conns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close closes every pooled connection.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*pending, 0, len(m.conns))
	for k, p := range m.conns {
		delete(m.conns, k)
		all = append(all, p)
	}
	m.mu.Unlock()
	m.closeAll(all)
}

func (m *Manager) closeAll(ps []*pending) {
	for _, p := range ps {
		select {
		case <-p.done:
			if p.client != nil {
				if err := p.client.Close(); err != nil {
					m.log.Debug("closing tool connection", zap.String("key", p.key), zap.Error(err))
				}
			}
		default:
		}
	}
}
