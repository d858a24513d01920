package core

import (
	"context"

	"github.com/hupe1980/inboxmesh/logging"
)

// AgentInfo carries identifying details about the graph running a node.
// Name is the external identifier; Type categorizes the graph (e.g.
// "dispatcher", "calendar", "mail").
type AgentInfo struct{ Name, Type string }

// RunContext carries execution scope for one graph invocation. It is handed
// to every node and aggregates:
//   - The ambient cancellation Context
//   - Identifiers (ThreadID, RunID, Agent info)
//   - A logger with graph, thread_id and run_id attached
//
// A RunContext is used by one goroutine at a time.
type RunContext struct {
	Context  context.Context
	ThreadID string
	RunID    string
	Agent    AgentInfo

	logScope
}

// NewRunContext constructs a RunContext for one invocation. Every record
// logged through it carries the graph name, thread id and run id.
func NewRunContext(ctx context.Context, threadID, runID string, agent AgentInfo, logger logging.Logger) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RunContext{
		Context:  ctx,
		ThreadID: threadID,
		RunID:    runID,
		Agent:    agent,
		logScope: newLogScope(logger, "graph", agent.Name, "thread_id", threadID, "run_id", runID),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// WithContext returns a shallow copy bound to ctx.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}

// logScope is the logger a run or tool context hands to nodes and tools.
type logScope struct {
	logger logging.Logger
}

// newLogScope attaches args to l. A nil or no-op logger stays a no-op.
func newLogScope(l logging.Logger, args ...any) logScope {
	switch l.(type) {
	case nil:
		return logScope{logger: logging.NoOpLogger{}}
	case logging.NoOpLogger:
		return logScope{logger: l}
	}
	return logScope{logger: logging.With(l, args...)}
}

// Logger returns the scoped logger.
func (s logScope) Logger() logging.Logger { return s.logger }

// LogDebug logs a debug message.
func (s logScope) LogDebug(msg string, args ...any) { s.logger.Debug(msg, args...) }

// LogInfo logs an info message.
func (s logScope) LogInfo(msg string, args ...any) { s.logger.Info(msg, args...) }

// LogWarn logs a warning message.
func (s logScope) LogWarn(msg string, args ...any) { s.logger.Warn(msg, args...) }

// LogError logs an error message.
func (s logScope) LogError(msg string, args ...any) { s.logger.Error(msg, args...) }
