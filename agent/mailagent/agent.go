package mailagent

import (
	"time"

	"github.com/hupe1980/inboxmesh/agent"
	"github.com/hupe1980/inboxmesh/mail"
	"github.com/hupe1980/inboxmesh/model"
)

// Name is the agent's name and the dispatcher's agent_type for it.
const Name = "mail_agent"

// Instruction is the mail agent's system prompt template.
const Instruction = `You are a helpful AI agent managing the user's Gmail inbox.
An AI chatbot talks to the user and relays requests to you.

Your goal:
- Fulfil the chatbot's requests using ONLY the tools provided to you.
- Think step by step about what the user wants.
- Call exactly one tool in every response.
- If the request is vague, ask the chatbot for clarification with ask_question.
- Use keyword search when looking for specific words or names in e-mails and semantic search when the meaning matters more.

INFO:
Now is {{.Now}} ({{.Today}}, time zone {{.Zone}}).

When you are done, call respond with a completion notification or the information requested.`

// Options configure the mail agent.
type Options struct {
	Location *time.Location
	Now      func() time.Time
}

// New builds the mail sub-agent over store.
func New(m model.Model, store mail.Store, optFns ...func(o *agent.SubAgentOptions)) (*agent.SubAgent, error) {
	return NewWithOptions(m, store, Options{}, optFns...)
}

// NewWithOptions is New with control over the clock the prompt shows.
func NewWithOptions(m model.Model, store mail.Store, opts Options, optFns ...func(o *agent.SubAgentOptions)) (*agent.SubAgent, error) {
	fns := append([]func(o *agent.SubAgentOptions){func(o *agent.SubAgentOptions) {
		o.Description = "Manages the user's Gmail inbox: searches e-mails by keyword or meaning and adds or removes labels."
		o.Instruction = agent.NewInstructionFromTemplate(Instruction, opts.Location, opts.Now)
	}}, optFns...)
	return agent.NewSubAgent(Name, m, Tools(store), fns...)
}
