package dispatcher

import (
	"github.com/hupe1980/inboxmesh/tool"
)

// Tool names of the dispatcher vocabulary.
const (
	PromptUserToolName   = "prompt_user"
	GiveUserInfoToolName = "give_user_info"
	ConfirmToolName      = "confirm_request_completion"
	CallAgentToolName    = "call_agent"
)

// Agent types call_agent accepts.
const (
	CalendarAgent = "calendar_agent"
	MailAgent     = "mail_agent"
)

// PromptUserArgs are the arguments of prompt_user.
type PromptUserArgs struct {
	Prompt string `json:"prompt" description:"The question for the user."`
}

// GiveUserInfoArgs are the arguments of give_user_info.
type GiveUserInfoArgs struct {
	Info string `json:"info" description:"Information for the user. It must not contain questions."`
}

// ConfirmArgs are the arguments of confirm_request_completion.
type ConfirmArgs struct {
	Message string `json:"message" description:"The confirmation shown to the user."`
}

// CallAgentArgs are the arguments of call_agent.
type CallAgentArgs struct {
	AgentType string `json:"agent_type" enum:"calendar_agent,mail_agent" description:"Which agent gets the task."`
	Task      string `json:"task" description:"A detailed description of the task."`
	Context   string `json:"context,omitempty" description:"Extra context the agent may need, such as time zones, names or e-mail addresses."`
}

// Tools returns the dispatcher's tools. None of them is executed by the
// registry; each selects a graph node.
func Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewRouteTool[PromptUserArgs](PromptUserToolName,
			"Ask the user a question and wait for the reply."),
		tool.NewRouteTool[GiveUserInfoArgs](GiveUserInfoToolName,
			"Send the user useful information. To inform and then ask, call give_user_info and then prompt_user."),
		tool.NewRouteTool[ConfirmArgs](ConfirmToolName,
			"Tell the user their request is complete. Only call it when the user has no further requests. Do not ask follow-up questions."),
		tool.NewRouteTool[CallAgentArgs](CallAgentToolName,
			"Send the calendar agent or the mail agent a task. The mail agent searches and labels e-mails. The calendar agent looks up, schedules, reschedules and removes events and tasks. Agents keep no memory between calls."),
	}
}
