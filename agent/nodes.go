package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/graph"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/model"
	"github.com/hupe1980/inboxmesh/tool"
)

// InferenceObserver receives one record per model call.
type InferenceObserver interface {
	RecordInference(ctx context.Context, model string, tokens int, duration time.Duration, err error)
}

// ModelNode asks the model for the next assistant turn and appends it.
//
// Only the first tool call of a turn is honoured; extra calls are dropped
// with an agent.toolcall.discarded warning so the history never carries a
// call without a matching result.
type ModelNode struct {
	Author      string
	Model       model.Model
	Instruction Instruction
	Tools       []model.ToolDefinition
	RequireTool bool
	Observer    InferenceObserver
}

// Run implements graph.Node.
func (n *ModelNode) Run(rc *core.RunContext, h *core.History) (*graph.Interrupt, error) {
	instructions, err := n.Instruction.Resolve(rc)
	if err != nil {
		return nil, fmt.Errorf("resolve instructions: %w", err)
	}

	start := time.Now()
	resp, err := n.Model.Infer(rc.Context, model.Request{
		Instructions: instructions,
		History:      *h,
		Tools:        n.Tools,
		RequireTool:  n.RequireTool && len(n.Tools) > 0,
	})
	dur := time.Since(start)

	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	modelName := n.Model.Info().Name
	logging.LogInferenceCall(rc.Logger(), modelName, tokens, dur, err)
	if n.Observer != nil {
		n.Observer.RecordInference(rc.Context, modelName, tokens, dur, err)
	}
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}

	turn := resp.Turn
	turn.Role = core.RoleAssistant
	if turn.ID == "" {
		turn.ID = core.NewID()
	}
	if turn.Author == "" {
		turn.Author = n.Author
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	if len(turn.ToolCalls) > 1 {
		discarded := make([]string, 0, len(turn.ToolCalls)-1)
		for _, c := range turn.ToolCalls[1:] {
			discarded = append(discarded, c.Name)
		}
		rc.LogWarn("agent.toolcall.discarded",
			"agent", n.Author,
			"kept", turn.ToolCalls[0].Name,
			"discarded", discarded,
		)
		turn.ToolCalls = turn.ToolCalls[:1]
	}
	if len(turn.ToolCalls) == 1 && turn.ToolCalls[0].ID == "" {
		turn.ToolCalls[0].ID = core.NewID()
	}

	rc.LogDebug("agent.turn", "agent", n.Author, "tool_calls", len(turn.ToolCalls), "finish_reason", resp.FinishReason)
	h.Append(turn)
	return nil, nil
}

// PendingCall returns the tool call the current node must answer.
func PendingCall(h core.History) (core.ToolCallRequest, error) {
	last, ok := h.Last()
	if !ok || last.Role != core.RoleAssistant {
		return core.ToolCallRequest{}, errors.New("node entered without a pending tool call")
	}
	call, ok := last.FirstToolCall()
	if !ok {
		return core.ToolCallRequest{}, errors.New("node entered without a pending tool call")
	}
	return call, nil
}

// ActionNode executes the pending tool call through the registry and
// appends its result. Validation and collaborator failures become ToolResult
// turns marked as errors; anything else ends the run.
type ActionNode struct {
	Author   string
	Registry *tool.Registry
}

// Run implements graph.Node.
func (n *ActionNode) Run(rc *core.RunContext, h *core.History) (*graph.Interrupt, error) {
	call, err := PendingCall(*h)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	content, err := n.Registry.Execute(core.NewToolContext(rc, call), call)
	logging.LogToolCall(rc.Logger(), call.Name, time.Since(start), err)
	if err != nil && core.IsFatal(err) {
		return nil, err
	}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		rc.LogWarn("agent.toolcall.invalid", "tool", call.Name, "field", verr.Field)
	}

	h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name, content, err != nil))
	return nil, nil
}

// AskNode suspends the graph with the question from an ask_question call.
// Resume appends the answer as the call's result. Invalid arguments are
// returned to the model without suspending.
type AskNode struct {
	Author   string
	Registry *tool.Registry
}

// Run implements graph.Node.
func (n *AskNode) Run(rc *core.RunContext, h *core.History) (*graph.Interrupt, error) {
	call, err := PendingCall(*h)
	if err != nil {
		return nil, err
	}

	args, err := n.Registry.Validate(call.Name, call.Arguments)
	if err != nil {
		return nil, AppendValidation(h, n.Author, call, err)
	}

	q := args.(AskQuestionArgs)
	rc.LogInfo("agent.question", "agent", n.Author, "question", q.Question)
	return &graph.Interrupt{Payload: q.Question}, nil
}

// Resume implements graph.Resumable.
func (n *AskNode) Resume(rc *core.RunContext, h *core.History, value string) (*graph.Interrupt, error) {
	call, err := PendingCall(*h)
	if err != nil {
		return nil, err
	}
	rc.LogInfo("agent.answer", "agent", n.Author)
	h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name, value, false))
	return nil, nil
}

// RespondNode records the final respond call. Invalid arguments are handed
// back to the model and RespondRouter loops to the model node.
type RespondNode struct {
	Author   string
	Registry *tool.Registry
}

// Run implements graph.Node.
func (n *RespondNode) Run(_ *core.RunContext, h *core.History) (*graph.Interrupt, error) {
	call, err := PendingCall(*h)
	if err != nil {
		return nil, err
	}
	if _, err := n.Registry.Validate(call.Name, call.Arguments); err != nil {
		return nil, AppendValidation(h, n.Author, call, err)
	}
	h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name, "response delivered", false))
	return nil, nil
}

// RespondRouter ends the run after a valid respond call and otherwise sends
// the graph back to retry.
func RespondRouter(retry string) graph.Router {
	return func(h core.History) (string, error) {
		last, ok := h.Last()
		if ok && last.Role == core.RoleTool && last.Result != nil && last.Result.IsError {
			return retry, nil
		}
		return graph.End, nil
	}
}

// AppendValidation hands a *core.ValidationError back to the model as an
// error result for call. Any other error is returned unchanged.
func AppendValidation(h *core.History, author string, call core.ToolCallRequest, err error) error {
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	h.Append(core.NewToolResultTurn(author, call.ID, call.Name, verr.Error(), true))
	return nil
}

var (
	_ graph.Node      = (*ModelNode)(nil)
	_ graph.Node      = (*ActionNode)(nil)
	_ graph.Resumable = (*AskNode)(nil)
	_ graph.Node      = (*RespondNode)(nil)
)
