package agent

import (
	"encoding/json"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/tool"
)

// Tool names every sub-agent understands.
const (
	AskQuestionToolName = "ask_question"
	RespondToolName     = "respond"
)

// AskQuestionArgs are the arguments of ask_question.
type AskQuestionArgs struct {
	Question string `json:"question" description:"The question for the caller. Be specific about what is missing."`
}

// RespondArgs are the arguments of respond. They map onto core.AgentResult.
type RespondArgs struct {
	RequestStatus string `json:"request_status" enum:"success,failure" description:"Whether the request was fulfilled."`
	Summary       string `json:"summary" description:"A short summary of what was done."`
	Information   string `json:"information,omitempty" description:"Information the caller asked for, if any."`
	ErrorInfo     string `json:"error_info,omitempty" description:"What went wrong, if the request failed."`
}

// Result converts the arguments into an AgentResult.
func (a RespondArgs) Result() *core.AgentResult {
	return &core.AgentResult{
		Status:      core.Status(a.RequestStatus),
		Summary:     a.Summary,
		Information: a.Information,
		ErrorInfo:   a.ErrorInfo,
	}
}

// AskQuestionTool declares ask_question for a sub-agent working for caller.
func AskQuestionTool(caller string) tool.Tool {
	return tool.NewRouteTool[AskQuestionArgs](AskQuestionToolName,
		"Ask the "+caller+" a clarifying question when the request is vague or information is missing. Execution pauses until the answer arrives.")
}

// RespondTool declares respond for a sub-agent working for caller.
func RespondTool(caller string) tool.Tool {
	return tool.NewRouteTool[RespondArgs](RespondToolName,
		"Respond to the "+caller+" with a request completion notification or the information requested. This ends the task.")
}

// resultFrom derives the AgentResult of a finished run from its history: the
// last valid respond call, or the text of a final text-only assistant turn.
func resultFrom(h core.History) (*core.AgentResult, bool) {
	last, ok := h.LastAssistant()
	if !ok {
		return nil, false
	}

	call, ok := last.FirstToolCall()
	if !ok {
		return &core.AgentResult{Status: core.StatusSuccess, Summary: last.Text}, true
	}
	if call.Name != RespondToolName {
		return nil, false
	}
	if res, ok := h.ResultFor(call.ID); !ok || res.IsError {
		return nil, false
	}

	var args RespondArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, false
	}
	return args.Result(), true
}
