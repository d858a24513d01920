package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role tags the variant of a Turn.
type Role string

const (
	// RoleSystem carries instructions that frame the conversation.
	RoleSystem Role = "system"
	// RoleHuman carries user input or a delegated task description.
	RoleHuman Role = "user"
	// RoleAssistant carries model output, optionally with tool call requests.
	RoleAssistant Role = "assistant"
	// RoleTool carries the result of a previously requested tool call.
	RoleTool Role = "tool"
)

// ToolCallRequest is a structured request, emitted by the inference step,
// naming a tool and its raw JSON arguments.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is the outcome of a ToolCallRequest. CallID matches the
// originating request.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Turn is one entry of a History. It is a tagged variant: Role decides which
// of the optional fields are meaningful.
//
//   - System / Human: Text
//   - Assistant: Text plus zero or more ToolCalls
//   - Tool: Result
//
// After being appended a Turn should be treated as immutable.
type Turn struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Author    string            `json:"author,omitempty"`
	Text      string            `json:"text,omitempty"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
	Result    *ToolResult       `json:"result,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newTurn(role Role, author string) Turn {
	return Turn{
		ID:        NewID(),
		Role:      role,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewSystemTurn creates a system instruction turn.
func NewSystemTurn(text string) Turn {
	t := newTurn(RoleSystem, "system")
	t.Text = text
	return t
}

// NewHumanTurn creates a user-authored text turn.
func NewHumanTurn(text string) Turn {
	t := newTurn(RoleHuman, "user")
	t.Text = text
	return t
}

// NewAssistantTurn creates an assistant turn authored by the given agent.
func NewAssistantTurn(author, text string, calls ...ToolCallRequest) Turn {
	t := newTurn(RoleAssistant, author)
	t.Text = text
	if len(calls) > 0 {
		t.ToolCalls = append([]ToolCallRequest(nil), calls...)
	}
	return t
}

// NewToolResultTurn records the outcome of the call identified by callID.
func NewToolResultTurn(author, callID, name, content string, isError bool) Turn {
	t := newTurn(RoleTool, author)
	t.Result = &ToolResult{CallID: callID, Name: name, Content: content, IsError: isError}
	return t
}

// NewID generates a new unique identifier for turns, calls and checkpoints.
func NewID() string { return uuid.NewString() }

// FirstToolCall returns the first tool call of an assistant turn. Only the
// first call of a turn is ever acted upon.
func (t Turn) FirstToolCall() (ToolCallRequest, bool) {
	if t.Role != RoleAssistant || len(t.ToolCalls) == 0 {
		return ToolCallRequest{}, false
	}
	return t.ToolCalls[0], true
}

// HasToolCall reports whether the turn is an assistant turn requesting a tool.
func (t Turn) HasToolCall() bool {
	_, ok := t.FirstToolCall()
	return ok
}

// Clone returns a copy that shares no mutable slices with t.
func (t Turn) Clone() Turn {
	c := t
	if t.ToolCalls != nil {
		c.ToolCalls = make([]ToolCallRequest, len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			c.ToolCalls[i] = tc
			if tc.Arguments != nil {
				c.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	return c
}
