package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyHistory is returned when a graph is started without a leading
	// System or Human turn.
	ErrEmptyHistory = errors.New("history must start with a system or human turn")

	// ErrUnknownCheckpoint is returned when resuming a checkpoint that does
	// not exist or was already consumed.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")

	// ErrMaxIterations is returned when a node is entered more often than the
	// graph allows within one invocation.
	ErrMaxIterations = errors.New("exceeded max tool-call attempts")

	// ErrUnclassifiedOutcome is returned when a sub-agent finishes without
	// exactly one of AgentResult or AgentQuestion.
	ErrUnclassifiedOutcome = errors.New("sub-agent outcome is neither result nor question")

	// ErrNodeCannotSuspend is returned when a node that is not resumable
	// requests an interrupt.
	ErrNodeCannotSuspend = errors.New("node cannot suspend")
)

// ValidationError describes malformed tool arguments. It is recovered by
// handing the message back to the model as a tool result.
type ValidationError struct {
	Tool    string `json:"tool"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("invalid arguments for %s: field '%s': %s", e.Tool, e.Field, e.Message)
}

// CollaboratorError wraps a failed calendar, mail or API call. It never
// crosses a tool-execution node; it is rendered as a failure envelope.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *CollaboratorError) Unwrap() error { return e.Err }

// RoutingError is returned when an assistant turn selects a tool the router
// of the current node does not know. It is fatal for the invocation.
type RoutingError struct {
	Node string
	Tool string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no route from node %q for tool %q", e.Node, e.Tool)
}

// IsFatal reports whether err must terminate the current invocation rather
// than being fed back to the model.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	var cerr *CollaboratorError
	return !errors.As(err, &verr) && !errors.As(err, &cerr)
}
