package core

import "context"

// ToolContext provides the constrained surface a tool executor sees: the
// cancellation context, the call being answered and a logger. Tools never
// touch the History directly; the executing node appends their result.
type ToolContext struct {
	runCtx *RunContext
	call   ToolCallRequest

	logScope
}

// NewToolContext constructs a tool context bound to a parent RunContext and
// the call being executed. Its logger adds the tool name and call id to the
// run's attributes.
func NewToolContext(runCtx *RunContext, call ToolCallRequest) *ToolContext {
	return &ToolContext{
		runCtx:   runCtx,
		call:     call,
		logScope: newLogScope(runCtx.Logger(), "tool", call.Name, "call_id", call.ID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// ThreadID returns the thread the invocation belongs to.
func (tc *ToolContext) ThreadID() string { return tc.runCtx.ThreadID }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// CallID returns the id of the tool call being executed.
func (tc *ToolContext) CallID() string { return tc.call.ID }

// ToolName returns the name of the tool being executed.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// AgentName returns the name of the graph executing the tool.
func (tc *ToolContext) AgentName() string { return tc.runCtx.Agent.Name }
