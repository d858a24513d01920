package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/session"
)

// DefaultMaxIterations is the per-node entry cap applied when none is set.
const DefaultMaxIterations = 10

const tracerName = "github.com/hupe1980/inboxmesh/graph"

// Run outcomes reported to the Observer.
const (
	OutcomeDone      = "done"
	OutcomeSuspended = "suspended"
	OutcomeError     = "error"
)

// Observer receives one record per graph invocation and per suspension.
type Observer interface {
	RecordGraphRun(ctx context.Context, graph, outcome string, duration time.Duration)
	RecordSuspension(ctx context.Context, graph, node string)
}

// Options configure a Graph.
type Options struct {
	// MaxIterations caps how often one node may be entered per invocation.
	// Counts survive suspension. Zero means DefaultMaxIterations; a negative
	// value disables the cap.
	MaxIterations int

	// Store keeps checkpoints of suspended runs. Defaults to a private
	// session.InMemoryStore.
	Store core.CheckpointStore

	Logger   logging.Logger
	Tracer   trace.Tracer
	Observer Observer
}

// State is what Run and Resume return. A state with a non-nil Interrupt is
// suspended and CheckpointID identifies where to resume; otherwise the run
// reached End and the thread's checkpoint was cleared.
type State struct {
	Graph        string
	ThreadID     string
	History      core.History
	Node         string
	Interrupt    *Interrupt
	CheckpointID string
}

// Suspended reports whether the run is waiting for an answer.
func (s *State) Suspended() bool { return s != nil && s.Interrupt != nil }

// Graph is an immutable, named set of nodes connected by edges and routers.
// A Graph holds no per-invocation state; histories live in the RunContext
// call chain and in checkpoints, so one Graph serves many threads.
type Graph struct {
	name     string
	entry    string
	nodes    map[string]Node
	edges    map[string]Router
	maxIters int
	store    core.CheckpointStore
	logger   logging.Logger
	tracer   trace.Tracer
	observer Observer
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Store returns the checkpoint store the graph suspends into.
func (g *Graph) Store() core.CheckpointStore { return g.store }

// Run validates history and executes the graph from its entry node until it
// reaches End or a resumable node interrupts.
//
// Fatal errors (routing, iteration cap, collaborator panics surfaced by a
// node, cancellation) end the run: the thread's checkpoint is cleared and
// the returned state carries the history up to the failure.
func (g *Graph) Run(ctx context.Context, threadID string, history core.History) (*State, error) {
	if err := history.Validate(); err != nil {
		return nil, err
	}

	rc := g.runContext(ctx, threadID)
	rc.LogInfo("graph.run.start", "turns", history.Len())

	st := &State{Graph: g.name, ThreadID: threadID, History: history.Clone()}
	lim := g.newLimiter(nil)
	start := time.Now()

	err := g.loop(rc, st, g.entry, lim)
	g.finish(rc, st, err, start)
	return st, err
}

// Resume re-enters the node that suspended under checkpointID with value as
// the answer, then continues with the node routed after it. A checkpoint is
// consumed by the first Resume; later calls fail with
// core.ErrUnknownCheckpoint.
func (g *Graph) Resume(ctx context.Context, checkpointID, value string) (*State, error) {
	cp, err := g.store.Get(checkpointID)
	if err != nil {
		return nil, err
	}
	if cp.Graph != g.name {
		return nil, fmt.Errorf("%w: checkpoint %s belongs to graph %q, not %q",
			core.ErrUnknownCheckpoint, checkpointID, cp.Graph, g.name)
	}

	node, ok := g.nodes[cp.Node].(Resumable)
	if !ok {
		return nil, fmt.Errorf("%w: node %s", core.ErrNodeCannotSuspend, cp.Node)
	}

	// Rejected resumes above leave the checkpoint for its owner.
	if cp, err = g.store.Take(checkpointID); err != nil {
		return nil, err
	}

	rc := g.runContext(ctx, cp.ThreadID)
	rc.LogInfo("graph.resume", "node", cp.Node, "checkpoint_id", cp.ID)

	st := &State{Graph: g.name, ThreadID: cp.ThreadID, History: cp.History, Node: cp.Node}
	lim := g.newLimiter(cp.Iterations)
	start := time.Now()

	err = g.resumeNode(rc, st, node, lim, value)
	if err == nil && !st.Suspended() {
		var next string
		next, err = g.route(cp.Node, st.History)
		if err == nil {
			err = g.loop(rc, st, next, lim)
		}
	}

	g.finish(rc, st, err, start)
	return st, err
}

// ResumeThread resumes whatever checkpoint is pending on threadID.
func (g *Graph) ResumeThread(ctx context.Context, threadID, value string) (*State, error) {
	cp, ok := g.store.Pending(threadID)
	if !ok {
		return nil, fmt.Errorf("%w: nothing pending on thread %s", core.ErrUnknownCheckpoint, threadID)
	}
	return g.Resume(ctx, cp.ID, value)
}

func (g *Graph) loop(rc *core.RunContext, st *State, node string, lim *core.IterationLimiter) error {
	for node != End {
		if err := rc.Err(); err != nil {
			return err
		}
		if err := lim.Increment(node); err != nil {
			return err
		}

		n, ok := g.nodes[node]
		if !ok {
			return fmt.Errorf("graph %s: unknown node %q", g.name, node)
		}
		st.Node = node

		intr, err := g.runNode(rc, st, node, func(nodeRC *core.RunContext) (*Interrupt, error) {
			return n.Run(nodeRC, &st.History)
		})
		if err != nil {
			return err
		}
		if intr != nil {
			if _, ok := n.(Resumable); !ok {
				return fmt.Errorf("%w: node %s", core.ErrNodeCannotSuspend, node)
			}
			return g.suspend(rc, st, node, lim, intr)
		}

		next, err := g.route(node, st.History)
		if err != nil {
			return err
		}
		node = next
	}
	st.Node = End
	return nil
}

func (g *Graph) resumeNode(rc *core.RunContext, st *State, n Resumable, lim *core.IterationLimiter, value string) error {
	intr, err := g.runNode(rc, st, st.Node, func(nodeRC *core.RunContext) (*Interrupt, error) {
		return n.Resume(nodeRC, &st.History, value)
	})
	if err != nil {
		return err
	}
	if intr != nil {
		return g.suspend(rc, st, st.Node, lim, intr)
	}
	return nil
}

func (g *Graph) runNode(rc *core.RunContext, st *State, node string, fn func(*core.RunContext) (*Interrupt, error)) (*Interrupt, error) {
	ctx, span := g.tracer.Start(rc.Context, "graph.node "+node, trace.WithAttributes(
		attribute.String("graph.name", g.name),
		attribute.String("graph.node", node),
		attribute.String("graph.thread_id", st.ThreadID),
	))
	defer span.End()

	rc.LogDebug("graph.node.start", "node", node, "turns", st.History.Len())
	before := st.History.Len()

	intr, err := fn(rc.WithContext(ctx))

	span.SetAttributes(attribute.Int("graph.turns_added", st.History.Len()-before))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rc.LogError("graph.node.error", "node", node, "error", err)
		return nil, err
	}
	if intr != nil {
		span.SetAttributes(attribute.Bool("graph.interrupted", true))
	}
	rc.LogDebug("graph.node.end", "node", node, "turns", st.History.Len())
	return intr, nil
}

func (g *Graph) suspend(rc *core.RunContext, st *State, node string, lim *core.IterationLimiter, intr *Interrupt) error {
	cp := core.Checkpoint{
		ID:         core.NewID(),
		ThreadID:   st.ThreadID,
		Graph:      g.name,
		Node:       node,
		History:    st.History,
		Iterations: lim.Snapshot(),
		Payload:    intr.Payload,
	}
	if err := g.store.Put(cp); err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}
	st.Node = node
	st.Interrupt = intr
	st.CheckpointID = cp.ID

	rc.LogInfo("graph.suspended", "node", node, "checkpoint_id", cp.ID)
	if g.observer != nil {
		g.observer.RecordSuspension(rc.Context, g.name, node)
	}
	return nil
}

func (g *Graph) route(from string, h core.History) (string, error) {
	next, err := g.edges[from](h)
	if err != nil {
		return "", err
	}
	if next != End {
		if _, ok := g.nodes[next]; !ok {
			return "", &core.RoutingError{Node: from, Tool: next}
		}
	}
	return next, nil
}

func (g *Graph) finish(rc *core.RunContext, st *State, err error, start time.Time) {
	outcome := OutcomeDone
	switch {
	case err != nil:
		outcome = OutcomeError
		g.store.Clear(st.ThreadID)
		st.Interrupt = nil
		st.CheckpointID = ""
		var rerr *core.RoutingError
		if errors.As(err, &rerr) {
			rc.LogError("graph.routing.failed", "node", rerr.Node, "tool", rerr.Tool)
		}
		rc.LogError("graph.run.failed", "node", st.Node, "error", err)
	case st.Suspended():
		outcome = OutcomeSuspended
	default:
		g.store.Clear(st.ThreadID)
		rc.LogInfo("graph.run.done", "turns", st.History.Len())
	}

	if g.observer != nil {
		g.observer.RecordGraphRun(rc.Context, g.name, outcome, time.Since(start))
	}
}

func (g *Graph) runContext(ctx context.Context, threadID string) *core.RunContext {
	return core.NewRunContext(ctx, threadID, core.NewID(), core.AgentInfo{Name: g.name, Type: g.name}, g.logger)
}

func (g *Graph) newLimiter(counts map[string]int) *core.IterationLimiter {
	limit := g.maxIters
	if limit < 0 {
		limit = 0
	}
	return core.RestoreIterationLimiter(limit, counts)
}

// Builder assembles a Graph. Errors are collected and reported by Build.
type Builder struct {
	name  string
	entry string
	nodes map[string]Node
	edges map[string]Router
	errs  []error
}

// NewBuilder starts a graph with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]Node),
		edges: make(map[string]Router),
	}
}

// AddNode registers a node under name.
func (b *Builder) AddNode(name string, n Node) *Builder {
	switch {
	case name == "" || name == End:
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
	case n == nil:
		b.errs = append(b.errs, fmt.Errorf("node %s is nil", name))
	default:
		if _, dup := b.nodes[name]; dup {
			b.errs = append(b.errs, fmt.Errorf("duplicate node %q", name))
		}
		b.nodes[name] = n
	}
	return b
}

// AddEdge connects from to a fixed successor (a node name or End).
func (b *Builder) AddEdge(from, to string) *Builder {
	return b.AddConditionalEdge(from, Static(to))
}

// AddConditionalEdge attaches a router deciding the successor of from.
func (b *Builder) AddConditionalEdge(from string, r Router) *Builder {
	if _, dup := b.edges[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %s already has an outgoing edge", from))
	}
	b.edges[from] = r
	return b
}

// SetEntry selects the node Run starts from.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// Build validates the wiring and returns the Graph.
func (b *Builder) Build(optFns ...func(o *Options)) (*Graph, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	errs := append([]error(nil), b.errs...)
	if _, ok := b.nodes[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node %q is not registered", b.entry))
	}
	for name := range b.nodes {
		if _, ok := b.edges[name]; !ok {
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", name))
		}
	}
	for from := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("graph %s: %w", b.name, errors.Join(errs...))
	}

	if opts.MaxIterations == 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	g := &Graph{
		name:     b.name,
		entry:    b.entry,
		nodes:    make(map[string]Node, len(b.nodes)),
		edges:    make(map[string]Router, len(b.edges)),
		maxIters: opts.MaxIterations,
		store:    opts.Store,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		observer: opts.Observer,
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	return g, nil
}

// WithMaxIterations sets the per-node entry cap.
func WithMaxIterations(n int) func(o *Options) {
	return func(o *Options) { o.MaxIterations = n }
}

// WithStore sets the checkpoint store.
func WithStore(s core.CheckpointStore) func(o *Options) {
	return func(o *Options) { o.Store = s }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithTracer sets the tracer used for per-node spans.
func WithTracer(t trace.Tracer) func(o *Options) {
	return func(o *Options) { o.Tracer = t }
}

// WithObserver sets the metrics observer.
func WithObserver(obs Observer) func(o *Options) {
	return func(o *Options) { o.Observer = obs }
}
