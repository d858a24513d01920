package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/internal/util"
)

// FunctionTool exposes a plain Go function with a typed argument struct as a
// tool. The parameter schema is derived from A via util.CreateSchema, so the
// struct tags are the single source of truth for what the model may send.
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool[A any] struct {
	name        string
	description string
	parameters  map[string]any
	kind        Kind
	fn          func(toolCtx *core.ToolContext, args A) (any, error)
}

// NewFunctionTool constructs an action tool from a typed function.
//
// Example:
//
//	type CancelEventArgs struct {
//	  EventID string `json:"event_id" description:"Id of the event to cancel"`
//	}
//
//	cancel := tool.NewFunctionTool("cancel_event", "Cancel a calendar event",
//	  func(tc *core.ToolContext, args CancelEventArgs) (any, error) {
//	    return store.DeleteEvent(tc.Context(), args.EventID)
//	  },
//	)
func NewFunctionTool[A any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args A) (any, error),
) *FunctionTool[A] {
	var zero A
	return &FunctionTool[A]{
		name:        name,
		description: description,
		parameters:  util.CreateSchema(zero),
		kind:        KindAction,
		fn:          fn,
	}
}

// NewRouteTool declares a tool handled by a graph node. Its arguments are
// validated and decoded into A but the registry never executes it.
func NewRouteTool[A any](name, description string) *FunctionTool[A] {
	var zero A
	return &FunctionTool[A]{
		name:        name,
		description: description,
		parameters:  util.CreateSchema(zero),
		kind:        KindRoute,
	}
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool[A]) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool[A]) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool[A]) Parameters() map[string]any { return t.parameters }

// Kind reports how the tool is dispatched.
func (t *FunctionTool[A]) Kind() Kind { return t.kind }

// Decode unmarshals raw arguments into A, rejecting unknown fields.
func (t *FunctionTool[A]) Decode(raw json.RawMessage) (any, error) {
	var args A
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}

// Call invokes the underlying function.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool[A]) Call(toolCtx *core.ToolContext, args any) (any, error) {
	if t.fn == nil {
		return nil, NewToolError(t.name, "tool is handled by a graph node", CodeExecution)
	}
	typed, ok := args.(A)
	if !ok {
		return nil, NewToolError(t.name, fmt.Sprintf("unexpected argument type %T", args), CodeValidation)
	}

	result, err := t.fn(toolCtx, typed)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Details: err}
	}
	return result, nil
}
