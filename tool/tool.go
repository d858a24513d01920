// Package tool implements the tool calling subsystem: typed tool specs whose
// JSON arguments are validated against a JSON Schema before anything runs, a
// registry that is immutable after construction, and the success/failure
// envelopes domain tools hand back to the model.
package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/inboxmesh/core"
)

// Tool is a single entry of a Registry.
//
// Tools come in two shapes. Action tools execute a collaborator operation and
// are run by a graph's action node. Route tools (ask_question, respond,
// call_agent, ...) are never executed by the registry; the router sends the
// graph to a dedicated node that validates and interprets their arguments.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is provided to the model to explain when to call the tool.
	Description() string

	// Parameters returns the JSON schema describing the expected input.
	Parameters() map[string]any

	// Kind reports whether the registry executes the tool or a node handles it.
	Kind() Kind

	// Decode turns schema-valid JSON into the tool's typed argument value.
	Decode(raw json.RawMessage) (any, error)

	// Call executes the tool with arguments produced by Decode.
	Call(toolCtx *core.ToolContext, args any) (any, error)
}

// Kind distinguishes executed tools from routed ones.
type Kind int

const (
	// KindAction tools are executed by the registry.
	KindAction Kind = iota
	// KindRoute tools select a graph node.
	KindRoute
)

func (k Kind) String() string {
	if k == KindRoute {
		return "route"
	}
	return "action"
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
)

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
