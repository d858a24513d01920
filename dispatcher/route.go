package dispatcher

import (
	"encoding/json"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/graph"
)

// Node names of the dispatcher graph.
const (
	NodeChatbot          = "chatbot"
	NodeTalk             = "talk_to_user"
	NodeDelegateCalendar = "delegate_to_calendar"
	NodeDelegateMail     = "delegate_to_mail"
	NodeCallAgent        = "call_agent"
)

var delegateNodes = map[string]string{
	CalendarAgent: NodeDelegateCalendar,
	MailAgent:     NodeDelegateMail,
}

// Route picks the node after the chatbot from the last turn. A text-only
// turn ends the session. call_agent goes to the delegation node of its
// agent_type, or to call_agent for arguments that name no known agent so
// the validation error reaches the model. Any other tool is a
// *core.RoutingError.
func Route(h core.History) (string, error) {
	last, ok := h.Last()
	if !ok || last.Role != core.RoleAssistant {
		return "", &core.RoutingError{Node: NodeChatbot}
	}
	call, ok := last.FirstToolCall()
	if !ok {
		return graph.End, nil
	}

	switch call.Name {
	case PromptUserToolName, GiveUserInfoToolName, ConfirmToolName:
		return NodeTalk, nil
	case CallAgentToolName:
		var args struct {
			AgentType string `json:"agent_type"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err == nil {
			if node, ok := delegateNodes[args.AgentType]; ok {
				return node, nil
			}
		}
		return NodeCallAgent, nil
	}
	return "", &core.RoutingError{Node: NodeChatbot, Tool: call.Name}
}

// talkRouter ends the session after a valid confirm_request_completion and
// returns to the chatbot otherwise.
func talkRouter(h core.History) (string, error) {
	last, ok := h.Last()
	if ok && last.Role == core.RoleTool && last.Result != nil &&
		last.Result.Name == ConfirmToolName && !last.Result.IsError {
		return graph.End, nil
	}
	return NodeChatbot, nil
}
