package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/inboxmesh/agent"
	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/graph"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/model"
	"github.com/hupe1980/inboxmesh/tool"
)

// Results the talk node hands back to the chatbot.
const (
	infoDelivered    = "User received provided information."
	confirmDelivered = "User received request completion confirmation."
)

// TalkNode handles prompt_user, give_user_info and
// confirm_request_completion. prompt_user suspends the session until the
// user replies.
type TalkNode struct {
	Author   string
	Registry *tool.Registry
}

// Run implements graph.Node.
func (n *TalkNode) Run(rc *core.RunContext, h *core.History) (*graph.Interrupt, error) {
	call, err := agent.PendingCall(*h)
	if err != nil {
		return nil, err
	}
	args, err := n.Registry.Validate(call.Name, call.Arguments)
	if err != nil {
		return nil, agent.AppendValidation(h, n.Author, call, err)
	}

	switch a := args.(type) {
	case PromptUserArgs:
		rc.LogInfo("dispatcher.prompt_user")
		return &graph.Interrupt{Payload: a.Prompt}, nil
	case GiveUserInfoArgs:
		h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name, infoDelivered, false))
	case ConfirmArgs:
		h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name, confirmDelivered, false))
	default:
		return nil, fmt.Errorf("talk node cannot handle %s", call.Name)
	}
	return nil, nil
}

// Resume implements graph.Resumable.
func (n *TalkNode) Resume(rc *core.RunContext, h *core.History, value string) (*graph.Interrupt, error) {
	call, err := agent.PendingCall(*h)
	if err != nil {
		return nil, err
	}
	rc.LogInfo("dispatcher.user_replied")
	h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name, fmt.Sprintf("The user replied %q", value), false))
	return nil, nil
}

// Answerer answers a sub-agent's question from the dispatcher's own
// history.
type Answerer struct {
	Model       model.Model
	Instruction string
	Observer    agent.InferenceObserver
}

// DefaultAnswerInstruction is the answerer's system prompt.
const DefaultAnswerInstruction = `You answer questions an assistant agent asks while working on a task for the user.
Answer only from the conversation so far. Be brief and specific. If the conversation does not contain the answer, say so.`

// Answer asks the model for a reply to question. The history passed to the
// model ends before the pending call_agent turn.
func (a *Answerer) Answer(ctx context.Context, logger logging.Logger, h core.History, agentName, question string) (string, error) {
	convo := h.Clone()
	if last, ok := convo.Last(); ok && last.HasToolCall() {
		convo = convo[:len(convo)-1]
	}
	convo.Append(core.NewHumanTurn(fmt.Sprintf("The %s asks: %s", agentName, question)))

	start := time.Now()
	resp, err := a.Model.Infer(ctx, model.Request{Instructions: a.Instruction, History: convo})
	dur := time.Since(start)

	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogInferenceCall(logger, a.Model.Info().Name, tokens, dur, err)
	if a.Observer != nil {
		a.Observer.RecordInference(ctx, a.Model.Info().Name, tokens, dur, err)
	}
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}

	answer := strings.TrimSpace(resp.Turn.Text)
	if answer == "" {
		answer = "No further information is available."
	}
	return answer, nil
}

// DelegateNode runs call_agent against one sub-agent. The sub-agent starts
// from a fresh history holding only the task and context. A question it
// asks is either relayed to the user by suspending the session or answered
// by the Answerer, depending on Policy. A nil Agent reports the agent as
// unavailable.
type DelegateNode struct {
	Author    string
	Registry  *tool.Registry
	Agent     *agent.SubAgent
	Policy    Policy
	Answerer  *Answerer
	MaxRounds int
}

// Run implements graph.Node.
func (n *DelegateNode) Run(rc *core.RunContext, h *core.History) (*graph.Interrupt, error) {
	call, err := agent.PendingCall(*h)
	if err != nil {
		return nil, err
	}
	args, err := n.Registry.Validate(call.Name, call.Arguments)
	if err != nil {
		return nil, agent.AppendValidation(h, n.Author, call, err)
	}
	a := args.(CallAgentArgs)

	if n.Agent == nil {
		h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name,
			tool.Failure("failed to delegate", fmt.Errorf("agent %s is not available", a.AgentType)).String(), true))
		return nil, nil
	}

	req := core.DelegationRequest{Target: a.AgentType, Task: a.Task, Context: a.Context}
	rc.LogInfo("dispatcher.delegate", "agent", n.Agent.Name(), "policy", string(n.Policy))
	out, err := n.Agent.Invoke(rc.Context, rc.ThreadID, req)
	return n.settle(rc, h, call, out, err)
}

// Resume implements graph.Resumable. value answers the question the
// sub-agent asked.
func (n *DelegateNode) Resume(rc *core.RunContext, h *core.History, value string) (*graph.Interrupt, error) {
	call, err := agent.PendingCall(*h)
	if err != nil {
		return nil, err
	}
	if n.Agent == nil {
		return nil, fmt.Errorf("%w: no agent behind %s", core.ErrUnknownCheckpoint, call.Name)
	}
	out, err := n.Agent.Resume(rc.Context, rc.ThreadID, value)
	return n.settle(rc, h, call, out, err)
}

func (n *DelegateNode) settle(rc *core.RunContext, h *core.History, call core.ToolCallRequest, out core.Outcome, err error) (*graph.Interrupt, error) {
	for round := 0; ; round++ {
		if err != nil {
			return nil, fmt.Errorf("delegate to %s: %w", n.Agent.Name(), err)
		}
		if cerr := out.Classify(); cerr != nil {
			n.Agent.Abandon(rc.ThreadID)
			return nil, fmt.Errorf("delegate to %s: %w", n.Agent.Name(), cerr)
		}

		if out.Result != nil {
			rc.LogInfo("dispatcher.agent.result", "agent", n.Agent.Name(), "status", string(out.Result.Status))
			h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name, out.String(), false))
			return nil, nil
		}

		question := out.Question.Question
		rc.LogInfo("dispatcher.agent.question", "agent", n.Agent.Name(), "policy", string(n.Policy))
		if n.Policy != Synthesize {
			return &graph.Interrupt{Payload: question}, nil
		}

		if round >= n.MaxRounds {
			n.Agent.Abandon(rc.ThreadID)
			rc.LogWarn("dispatcher.agent.abandoned", "agent", n.Agent.Name(), "rounds", round)
			h.Append(core.NewToolResultTurn(n.Author, call.ID, call.Name,
				tool.Failure("failed to complete the task", errors.New("the agent kept asking questions: "+question)).String(), true))
			return nil, nil
		}

		answer, aerr := n.Answerer.Answer(rc.Context, rc.Logger(), *h, n.Agent.Name(), question)
		if aerr != nil {
			n.Agent.Abandon(rc.ThreadID)
			return nil, aerr
		}
		out, err = n.Agent.Resume(rc.Context, rc.ThreadID, answer)
	}
}

var (
	_ graph.Resumable = (*TalkNode)(nil)
	_ graph.Resumable = (*DelegateNode)(nil)
)
