// Package dispatcher is the top-level conversational agent. It talks to the
// user through prompt_user, give_user_info and confirm_request_completion
// and hands work to the calendar and mail sub-agents through call_agent.
//
//	chatbot --prompt_user|give_user_info|confirm--> talk_to_user --> chatbot | END
//	chatbot --call_agent(calendar_agent)--> delegate_to_calendar --> chatbot
//	chatbot --call_agent(mail_agent)--> delegate_to_mail --> chatbot
//	chatbot --(text only)--> END
//
// A session suspends when the user must answer: on prompt_user, and on a
// sub-agent question at a delegation site using the Relay policy.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/inboxmesh/agent"
	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/graph"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/model"
	"github.com/hupe1980/inboxmesh/tool"
)

// Policy decides what a delegation site does with a sub-agent question.
type Policy string

const (
	// Relay suspends the session and shows the question to the user.
	Relay Policy = "relay"
	// Synthesize answers the question from the dispatcher's history through
	// the answerer model and resumes the sub-agent.
	Synthesize Policy = "synthesize"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case Relay, Synthesize:
		return Policy(s), nil
	case "":
		return Relay, nil
	}
	return "", fmt.Errorf("unknown delegation policy %q", s)
}

// DefaultMaxAnswerRounds caps how many questions Synthesize answers for one
// delegation.
const DefaultMaxAnswerRounds = 3

// FailureText is the reply after a fatal error ended the session.
const FailureText = "Sorry, something went wrong and I could not finish your request. Please try again."

// Reply is what Start and Resume return. AwaitingAnswer=false means the
// session ended and was cleared.
type Reply struct {
	Text           string
	AwaitingAnswer bool
	// Notes are the give_user_info messages sent during this turn.
	Notes []string
}

// Options configure a Dispatcher.
type Options struct {
	Instruction agent.Instruction

	// Policy applies to every delegation site without an entry in Policies.
	Policy   Policy
	Policies map[string]Policy

	// Answerer answers sub-agent questions under Synthesize. Defaults to the
	// chatbot model.
	Answerer          model.Model
	AnswerInstruction string
	MaxAnswerRounds   int

	Location *time.Location
	Now      func() time.Time

	MaxIterations int
	Store         core.CheckpointStore
	Logger        logging.Logger
	Tracer        trace.Tracer

	GraphObserver     graph.Observer
	ToolObserver      tool.Observer
	InferenceObserver agent.InferenceObserver
}

// Dispatcher runs user sessions. It is safe for concurrent use across
// sessions; one session must not be driven from two goroutines at once.
type Dispatcher struct {
	graph    *graph.Graph
	registry *tool.Registry
	agents   map[string]*agent.SubAgent
	logger   logging.Logger
}

// New builds a dispatcher over the given sub-agents, keyed by their names
// (calendar_agent, mail_agent).
func New(m model.Model, agents []*agent.SubAgent, optFns ...func(o *Options)) (*Dispatcher, error) {
	opts := Options{
		Policy:            Relay,
		AnswerInstruction: DefaultAnswerInstruction,
		MaxAnswerRounds:   DefaultMaxAnswerRounds,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Instruction.IsZero() {
		opts.Instruction = agent.NewInstructionFromTemplate(ChatInstruction, opts.Location, opts.Now)
	}
	if opts.Answerer == nil {
		opts.Answerer = m
	}

	byName := make(map[string]*agent.SubAgent, len(agents))
	for _, a := range agents {
		if _, ok := delegateNodes[a.Name()]; !ok {
			return nil, fmt.Errorf("dispatcher: no delegation site for agent %q", a.Name())
		}
		byName[a.Name()] = a
	}

	reg, err := tool.NewRegistry(Tools(), func(o *tool.RegistryOptions) { o.Observer = opts.ToolObserver })
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	answerer := &Answerer{Model: opts.Answerer, Instruction: opts.AnswerInstruction, Observer: opts.InferenceObserver}
	policy := func(name string) Policy {
		if p, ok := opts.Policies[name]; ok {
			return p
		}
		return opts.Policy
	}

	b := graph.NewBuilder("dispatcher").
		AddNode(NodeChatbot, &agent.ModelNode{
			Author:      NodeChatbot,
			Model:       m,
			Instruction: opts.Instruction,
			Tools:       reg.Definitions(),
			Observer:    opts.InferenceObserver,
		}).
		AddNode(NodeTalk, &TalkNode{Author: NodeChatbot, Registry: reg}).
		AddNode(NodeCallAgent, &DelegateNode{Author: NodeChatbot, Registry: reg}).
		AddConditionalEdge(NodeChatbot, Route).
		AddConditionalEdge(NodeTalk, talkRouter).
		AddEdge(NodeCallAgent, NodeChatbot).
		SetEntry(NodeChatbot)

	for name, node := range delegateNodes {
		b.AddNode(node, &DelegateNode{
			Author:    NodeChatbot,
			Registry:  reg,
			Agent:     byName[name],
			Policy:    policy(name),
			Answerer:  answerer,
			MaxRounds: opts.MaxAnswerRounds,
		}).AddEdge(node, NodeChatbot)
	}

	g, err := b.Build(
		graph.WithMaxIterations(opts.MaxIterations),
		graph.WithStore(opts.Store),
		graph.WithLogger(opts.Logger),
		graph.WithTracer(opts.Tracer),
		graph.WithObserver(opts.GraphObserver),
	)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		graph:    g,
		registry: reg,
		agents:   byName,
		logger:   logging.With(opts.Logger, "component", "dispatcher"),
	}, nil
}

// Registry returns the dispatcher's tool registry.
func (d *Dispatcher) Registry() *tool.Registry { return d.registry }

// Pending reports whether session waits for the user's answer.
func (d *Dispatcher) Pending(session string) bool {
	_, ok := d.graph.Store().Pending(session)
	return ok
}

// Start opens a session with the user's request. A session that is still
// waiting for an answer is discarded first.
func (d *Dispatcher) Start(ctx context.Context, session, request string) (Reply, error) {
	if d.Pending(session) {
		d.logger.Warn("dispatcher.session.restarted", "session", session)
		d.clear(session)
	}
	d.logger.Info("dispatcher.start", "session", session)

	seed := core.NewHistory(core.NewHumanTurn(request))
	st, err := d.graph.Run(ctx, session, seed)
	return d.reply(session, st, err, seed.Len())
}

// Resume continues a waiting session with the user's answer. It fails with
// core.ErrUnknownCheckpoint when nothing waits on session.
func (d *Dispatcher) Resume(ctx context.Context, session, answer string) (Reply, error) {
	cp, ok := d.graph.Store().Pending(session)
	if !ok {
		return Reply{}, fmt.Errorf("%w: nothing pending in session %s", core.ErrUnknownCheckpoint, session)
	}
	d.logger.Info("dispatcher.resume", "session", session, "node", cp.Node)

	st, err := d.graph.Resume(ctx, cp.ID, answer)
	return d.reply(session, st, err, cp.History.Len())
}

// Delegate runs one sub-agent invocation outside a session graph. The
// caller handles questions.
func (d *Dispatcher) Delegate(ctx context.Context, session string, req core.DelegationRequest) (core.Outcome, error) {
	a, ok := d.agents[req.Target]
	if !ok {
		return core.Outcome{}, fmt.Errorf("dispatcher: unknown agent %q", req.Target)
	}
	out, err := a.Invoke(ctx, session, req)
	if err != nil {
		return core.Outcome{}, err
	}
	if err := out.Classify(); err != nil {
		a.Abandon(session)
		return core.Outcome{}, err
	}
	return out, nil
}

func (d *Dispatcher) clear(session string) {
	d.graph.Store().Clear(session)
	for _, a := range d.agents {
		a.Abandon(session)
	}
}

func (d *Dispatcher) reply(session string, st *graph.State, err error, seen int) (Reply, error) {
	if err != nil {
		if errors.Is(err, core.ErrUnknownCheckpoint) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			d.clear(session)
			return Reply{}, err
		}
		d.logger.Error("dispatcher.session.failed", "session", session, "error", err)
		d.clear(session)
		r := Reply{Text: FailureText}
		if st != nil {
			r.Notes = notes(st.History, seen)
		}
		return r, nil
	}

	r := Reply{Notes: notes(st.History, seen)}
	if st.Suspended() {
		r.Text = st.Interrupt.Payload
		r.AwaitingAnswer = true
		return r, nil
	}

	for _, a := range d.agents {
		a.Abandon(session)
	}
	r.Text = finalText(st.History)
	d.logger.Info("dispatcher.session.done", "session", session)
	return r, nil
}

// notes collects give_user_info messages sent after the first seen turns.
func notes(h core.History, seen int) []string {
	if seen > len(h) {
		seen = len(h)
	}
	var out []string
	for _, t := range h[seen:] {
		call, ok := t.FirstToolCall()
		if !ok || call.Name != GiveUserInfoToolName {
			continue
		}
		if res, ok := h.ResultFor(call.ID); !ok || res.IsError {
			continue
		}
		var args GiveUserInfoArgs
		if err := json.Unmarshal(call.Arguments, &args); err == nil {
			out = append(out, args.Info)
		}
	}
	return out
}

// finalText is the confirmation message of a finished session, or the text
// of its final text-only turn.
func finalText(h core.History) string {
	last, ok := h.LastAssistant()
	if !ok {
		return ""
	}
	call, ok := last.FirstToolCall()
	if !ok {
		return last.Text
	}
	if call.Name == ConfirmToolName {
		var args ConfirmArgs
		if err := json.Unmarshal(call.Arguments, &args); err == nil {
			return args.Message
		}
	}
	return last.Text
}
