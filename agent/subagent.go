package agent

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/graph"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/model"
	"github.com/hupe1980/inboxmesh/tool"
)

// Node names of a sub-agent graph.
const (
	NodeAgent   = "agent"
	NodeAction  = "action"
	NodeAsk     = AskQuestionToolName
	NodeRespond = RespondToolName
)

// SubAgentOptions configure a SubAgent.
type SubAgentOptions struct {
	// Description is shown to the dispatcher's model.
	Description string

	Instruction Instruction

	// Caller names who the agent answers to in tool descriptions.
	Caller string

	// OwnNodes lists action tools executed by a dedicated node instead of the
	// shared action node (create_event, create_task).
	OwnNodes []string

	MaxIterations int
	Store         core.CheckpointStore
	Logger        logging.Logger
	Tracer        trace.Tracer

	GraphObserver     graph.Observer
	ToolObserver      tool.Observer
	InferenceObserver InferenceObserver
}

// SubAgent is a task-scoped graph: it starts from exactly one Human turn
// holding the delegated task and ends in an AgentResult or suspends with an
// AgentQuestion. It keeps no memory between invocations.
//
//	agent --(domain tool)--> action --> agent
//	agent --(own node tool)--> create_event --> agent
//	agent --ask_question--> ask_question (suspends) --> agent
//	agent --respond--> respond --> END
//	agent --(text only)--> END
type SubAgent struct {
	name        string
	description string
	graph       *graph.Graph
	registry    *tool.Registry
	logger      logging.Logger
}

// NewSubAgent wires a sub-agent graph around the given domain tools. The
// ask_question and respond tools are added automatically.
func NewSubAgent(name string, m model.Model, tools []tool.Tool, optFns ...func(o *SubAgentOptions)) (*SubAgent, error) {
	opts := SubAgentOptions{
		Description: fmt.Sprintf("Agent %s", name),
		Caller:      "chatbot",
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	all := append(append([]tool.Tool(nil), tools...), AskQuestionTool(opts.Caller), RespondTool(opts.Caller))
	reg, err := tool.NewRegistry(all, func(o *tool.RegistryOptions) { o.Observer = opts.ToolObserver })
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	own := make(map[string]bool, len(opts.OwnNodes))
	for _, n := range opts.OwnNodes {
		own[n] = true
	}

	routes := map[string]string{
		AskQuestionToolName: NodeAsk,
		RespondToolName:     NodeRespond,
	}
	b := graph.NewBuilder(name).
		AddNode(NodeAgent, &ModelNode{
			Author:      name,
			Model:       m,
			Instruction: opts.Instruction,
			Tools:       reg.Definitions(),
			RequireTool: true,
			Observer:    opts.InferenceObserver,
		}).
		AddNode(NodeAction, &ActionNode{Author: name, Registry: reg}).
		AddNode(NodeAsk, &AskNode{Author: name, Registry: reg}).
		AddNode(NodeRespond, &RespondNode{Author: name, Registry: reg}).
		AddEdge(NodeAction, NodeAgent).
		AddEdge(NodeAsk, NodeAgent).
		AddConditionalEdge(NodeRespond, RespondRouter(NodeAgent)).
		SetEntry(NodeAgent)

	for _, toolName := range reg.NamesOf(tool.KindAction) {
		if own[toolName] {
			routes[toolName] = toolName
			b.AddNode(toolName, &ActionNode{Author: name, Registry: reg}).AddEdge(toolName, NodeAgent)
			continue
		}
		routes[toolName] = NodeAction
	}
	b.AddConditionalEdge(NodeAgent, graph.ToolRouter(NodeAgent, routes, graph.End))

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

	return &SubAgent{
		name:        name,
		description: opts.Description,
		graph:       g,
		registry:    reg,
		logger:      logging.With(opts.Logger, "agent", name),
	}, nil
}

// Name returns the agent name.
func (a *SubAgent) Name() string { return a.name }

// Description returns what the agent is for.
func (a *SubAgent) Description() string { return a.description }

// Registry returns the agent's tool registry.
func (a *SubAgent) Registry() *tool.Registry { return a.registry }

// Thread returns the thread id the agent uses inside a session.
func (a *SubAgent) Thread(session string) string { return session + "/" + a.name }

// Pending reports whether the agent waits for an answer in session.
func (a *SubAgent) Pending(session string) bool {
	_, ok := a.graph.Store().Pending(a.Thread(session))
	return ok
}

// Abandon drops a suspended invocation in session.
func (a *SubAgent) Abandon(session string) { a.graph.Store().Clear(a.Thread(session)) }

// Invoke runs the agent on a fresh history seeded with exactly one Human turn
// built from req. Nothing else from the caller reaches the agent.
func (a *SubAgent) Invoke(ctx context.Context, session string, req core.DelegationRequest) (core.Outcome, error) {
	a.logger.Info("agent.invoke", "session", session, "task", req.Task)

	seed := core.NewHistory(core.NewHumanTurn(req.SeedText()))
	st, err := a.graph.Run(ctx, a.Thread(session), seed)
	return a.outcome(st, err)
}

// Resume continues a suspended invocation with the answer to its question.
func (a *SubAgent) Resume(ctx context.Context, session, answer string) (core.Outcome, error) {
	a.logger.Info("agent.resume", "session", session)

	st, err := a.graph.ResumeThread(ctx, a.Thread(session), answer)
	return a.outcome(st, err)
}

// outcome classifies a finished or suspended run. Fatal run errors collapse
// into a failure result; an unknown checkpoint or a cancelled context is
// returned as an error.
func (a *SubAgent) outcome(st *graph.State, err error) (core.Outcome, error) {
	if err != nil {
		if errors.Is(err, core.ErrUnknownCheckpoint) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return core.Outcome{}, err
		}
		a.logger.Error("agent.invoke.failed", "error", err)
		return core.Outcome{Result: core.Failed(fmt.Sprintf("the %s agent could not complete the task", a.name), err)}, nil
	}

	if st.Suspended() {
		return core.Outcome{Question: &core.AgentQuestion{Question: st.Interrupt.Payload}}, nil
	}

	res, ok := resultFrom(st.History)
	if !ok {
		a.logger.Warn("agent.outcome.unclassified")
		return core.Outcome{}, nil
	}
	a.logger.Info("agent.result", "status", res.Status)
	return core.Outcome{Result: res}, nil
}
