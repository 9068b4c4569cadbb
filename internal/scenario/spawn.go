package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxOutput caps how much of each stream is kept per scenario.
const maxOutput = 1 << 20

// Spawner starts scenario processes.
type Spawner struct {
	// Argv is the command prefix; the scenario flags are appended.
	Argv []string
	// Env is appended to the inherited environment.
	Env    []string
	Logger *zap.Logger
}

// Handle is a running scenario. Its verdict resolves exactly once.
type Handle struct {
	id     string
	cmd    *exec.Cmd
	stdout cappedBuffer
	stderr cappedBuffer

	killed  atomic.Bool
	done    chan struct{}
	verdict Verdict
}

// Start launches one scenario. The process is killed when ctx ends.
func (s *Spawner) Start(ctx context.Context, a Args) (*Handle, error) {
	if len(s.Argv) == 0 {
		return nil, errors.New("scenario: no command configured")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	argv := append(append([]string(nil), s.Argv[1:]...), a.Argv()...)
	cmd := exec.Command(s.Argv[0], argv...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Dir = a.Repo
	if fi, err := os.Stat(a.Repo); err != nil || !fi.IsDir() {
		cmd.Dir = ""
	}

	h := &Handle{id: a.ID, cmd: cmd, done: make(chan struct{})}
	h.stderr.keepTail = true
	cmd.Stdout = &h.stdout
	cmd.Stderr = &h.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("scenario %s: start: %w", a.ID, err)
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log.Debug("scenario started", zap.String("id", a.ID), zap.Int("pid", cmd.Process.Pid))

	go func() {
		err := cmd.Wait()
		killed := wasKilled(h.killed.Load(), cmd.ProcessState)
		h.verdict = Decode(h.id, h.stdout.Bytes(), h.stderr.Bytes(), err, killed)
		log.Debug("scenario finished",
			zap.String("id", h.id),
			zap.Bool("success", h.verdict.Success),
			zap.Bool("killed", killed))
		close(h.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.done:
		}
	}()
	return h, nil
}

// ID is the scenario identifier.
func (h *Handle) ID() string { return h.id }

// PID is the operating system process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Done is closed once the verdict is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the scenario exits. If ctx ends first the process is
// killed and its verdict is still returned.
func (h *Handle) Wait(ctx context.Context) Verdict {
	select {
	case <-h.done:
	case <-ctx.Done():
		h.Cancel()
		<-h.done
	}
	return h.verdict
}

// Cancel kills the process. Calling it on a finished scenario is a no-op.
func (h *Handle) Cancel() {
	select {
	case <-h.done:
		return
	default:
	}
	if h.cmd.Process == nil {
		return
	}
	h.killed.Store(true)
	_ = h.cmd.Process.Kill()
}

// wasKilled reports whether a cancel request actually ended the process.
// A process that exited on its own keeps its verdict even when a cancel
// arrived between its exit and the verdict being read.
func wasKilled(requested bool, ps *os.ProcessState) bool {
	if !requested {
		return false
	}
	return ps == nil || !ps.Exited()
}

// Waiter is anything that resolves to a verdict.
type Waiter interface {
	Wait(ctx context.Context) Verdict
}

// JoinAll waits for every scenario and returns their verdicts in order.
// One scenario's outcome never prevents another from resolving.
func JoinAll(ctx context.Context, handles []Waiter) []Verdict {
	verdicts := make([]Verdict, len(handles))
	var g errgroup.Group
	for i, h := range handles {
		g.Go(func() error {
			verdicts[i] = h.Wait(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

// cappedBuffer keeps at most maxOutput bytes. By default it keeps the head
// of the stream; with keepTail it keeps the end, where a failure verdict
// follows the scenario's own log lines.
type cappedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	keepTail bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepTail {
		if len(p) >= maxOutput {
			c.buf.Reset()
			c.buf.Write(p[len(p)-maxOutput:])
			return len(p), nil
		}
		if over := c.buf.Len() + len(p) - maxOutput; over > 0 {
			c.buf.Next(over)
		}
		c.buf.Write(p)
		return len(p), nil
	}
	if room := maxOutput - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}
