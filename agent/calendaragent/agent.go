package calendaragent

import (
	"time"

	"github.com/hupe1980/inboxmesh/agent"
	"github.com/hupe1980/inboxmesh/calendar"
	"github.com/hupe1980/inboxmesh/model"
)

// Name is the agent's name and the dispatcher's agent_type for it.
const Name = "calendar_agent"

// Instruction is the calendar agent's system prompt template.
const Instruction = `You are a helpful AI agent managing the user's Google Calendar and Google Tasks.
An AI chatbot talks to the user and relays requests to you. Fulfil the chatbot's requests using ONLY the tools provided to you. Think step by step and call exactly one tool per turn.

INFO:
Now is {{.Now}} ({{.Today}}, time zone {{.Zone}}).

RULES:
- If a request is vague, ask the chatbot for more information with ask_question.
- You MUST check the user's availability before scheduling events and tasks. If there are conflicts, tell the chatbot the exact times of the conflicts and do not schedule anything.
- Give all times in RFC 3339 format.
- When you are done, call respond with a completion notification or the information requested.`

// Options configure the calendar agent.
type Options struct {
	Location *time.Location
	Now      func() time.Time
}

// New builds the calendar sub-agent over store. create_event and
// create_task run in their own graph nodes; the other domain tools share
// the action node.
func New(m model.Model, store calendar.Store, optFns ...func(o *agent.SubAgentOptions)) (*agent.SubAgent, error) {
	return NewWithOptions(m, store, Options{}, optFns...)
}

// NewWithOptions is New with control over the clock the prompt shows.
func NewWithOptions(m model.Model, store calendar.Store, opts Options, optFns ...func(o *agent.SubAgentOptions)) (*agent.SubAgent, error) {
	fns := append([]func(o *agent.SubAgentOptions){func(o *agent.SubAgentOptions) {
		o.Description = "Manages the user's Google Calendar and Google Tasks: checks availability, creates, reschedules and cancels events and tasks."
		o.Instruction = agent.NewInstructionFromTemplate(Instruction, opts.Location, opts.Now)
		o.OwnNodes = []string{CreateEventToolName, CreateTaskToolName}
	}}, optFns...)
	return agent.NewSubAgent(Name, m, Tools(store), fns...)
}
