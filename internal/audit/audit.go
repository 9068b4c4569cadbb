// Package audit is the append-only, per-session, per-agent log sink.
//
// Every (session, agent) pair gets its own file at
//
//	<memoryRoot>/<projectID>/sessions/<sessionID>/logs/<agent>.log
//
// with one JSON record per line:
//
//	{"timestamp":"…","agent":"mother","level":"info","message":"…","data":{…}}
//
// Each file is driven by its own zap core behind a locked WriteSyncer, so
// the entries of one agent land in exactly the order the agent produced
// them. Nothing is ordered across agents.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Record is one decoded log line.
type Record struct {
	Timestamp string          `json:"timestamp"`
	Agent     string          `json:"agent"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type sinkKey struct {
	session string
	agent   string
}

type sink struct {
	file   *os.File
	logger *zap.Logger
}

// Logger owns the open audit files.
type Logger struct {
	root     string
	fallback *zap.Logger

	mu    sync.Mutex
	sinks map[sinkKey]*sink
}

// New creates a Logger writing below memoryRoot. Failures to open a log
// file are reported on fallback; the agent keeps running without its file.
func New(memoryRoot string, fallback *zap.Logger) *Logger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return &Logger{
		root:     memoryRoot,
		fallback: fallback,
		sinks:    make(map[sinkKey]*sink),
	}
}

// Path returns the log file location for one agent of one session.
func (l *Logger) Path(projectID, sessionID, agent string) string {
	return filepath.Join(l.root, projectID, "sessions", sessionID, "logs", agent+".log")
}

// For returns the log handle for one agent of a session.
func (l *Logger) For(projectID, sessionID, agent string) *AgentLog {
	return &AgentLog{parent: l, project: projectID, session: sessionID, agent: agent}
}

func (l *Logger) zapFor(projectID, sessionID, agent string) *zap.Logger {
	key := sinkKey{session: sessionID, agent: agent}

	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.sinks[key]; ok {
		return s.logger
	}

	path := l.Path(projectID, sessionID, agent)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.fallback.Warn("audit log directory unavailable",
			zap.String("path", path), zap.Error(err))
		return zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.fallback.Warn("audit log file unavailable",
			zap.String("path", path), zap.Error(err))
		return zap.NewNop()
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(f)),
		zapcore.DebugLevel,
	)
	s := &sink{file: f, logger: zap.New(core).With(zap.String("agent", agent))}
	l.sinks[key] = s
	return s.logger
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339Nano),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// CloseSession syncs and closes every file opened for sessionID.
func (l *Logger) CloseSession(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for key, s := range l.sinks {
		if key.session != sessionID {
			continue
		}
		_ = s.logger.Sync()
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.sinks, key)
	}
	return errors.Join(errs...)
}

// Close closes every open file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for key, s := range l.sinks {
		_ = s.logger.Sync()
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.sinks, key)
	}
	return errors.Join(errs...)
}

// Read returns every record logged for one agent of a session, oldest first.
func (l *Logger) Read(projectID, sessionID, agent string) ([]Record, error) {
	f, err := os.Open(l.Path(projectID, sessionID, agent))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue // torn line from a killed writer
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("audit: read log: %w", err)
	}
	return out, nil
}

// AgentLog writes records for one agent. The file is opened lazily on the
// first write.
type AgentLog struct {
	parent  *Logger
	project string
	session string
	agent   string
}

// Agent returns the agent name records are tagged with.
func (a *AgentLog) Agent() string { return a.agent }

func (a *AgentLog) write(level zapcore.Level, msg string, data any) {
	if a == nil || a.parent == nil {
		return
	}
	z := a.parent.zapFor(a.project, a.session, a.agent)
	if ce := z.Check(level, msg); ce != nil {
		ce.Write(zap.Any("data", data))
	}
}

// Debug logs at debug level. data may be nil.
func (a *AgentLog) Debug(msg string, data any) { a.write(zapcore.DebugLevel, msg, data) }

// Info logs at info level. data may be nil.
func (a *AgentLog) Info(msg string, data any) { a.write(zapcore.InfoLevel, msg, data) }

// Warn logs at warn level. data may be nil.
func (a *AgentLog) Warn(msg string, data any) { a.write(zapcore.WarnLevel, msg, data) }

// Error logs at error level. data may be nil.
func (a *AgentLog) Error(msg string, data any) { a.write(zapcore.ErrorLevel, msg, data) }
