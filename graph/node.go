package graph

import (
	"github.com/hupe1980/inboxmesh/core"
)

// End is the terminal marker a router or edge returns to finish a run.
const End = "__end__"

// Interrupt is returned by a resumable node that needs an external answer
// before it can finish. Payload is handed to the caller (usually the
// question text).
type Interrupt struct {
	Payload string
}

// Node is one step of a graph. It reads the history and appends turns to it.
// A plain node must never return an Interrupt; doing so fails the run with
// core.ErrNodeCannotSuspend.
type Node interface {
	Run(rc *core.RunContext, h *core.History) (*Interrupt, error)
}

// Resumable is a node that may suspend the graph. Resume re-enters the node
// with the external answer substituted for the interrupted call. It may
// interrupt again.
type Resumable interface {
	Node
	Resume(rc *core.RunContext, h *core.History, value string) (*Interrupt, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc func(rc *core.RunContext, h *core.History) (*Interrupt, error)

// Run calls f.
func (f NodeFunc) Run(rc *core.RunContext, h *core.History) (*Interrupt, error) { return f(rc, h) }

// ResumableFunc builds a Resumable from two functions.
type ResumableFunc struct {
	RunFunc    func(rc *core.RunContext, h *core.History) (*Interrupt, error)
	ResumeFunc func(rc *core.RunContext, h *core.History, value string) (*Interrupt, error)
}

// Run calls RunFunc.
func (f ResumableFunc) Run(rc *core.RunContext, h *core.History) (*Interrupt, error) {
	return f.RunFunc(rc, h)
}

// Resume calls ResumeFunc.
func (f ResumableFunc) Resume(rc *core.RunContext, h *core.History, value string) (*Interrupt, error) {
	return f.ResumeFunc(rc, h, value)
}

var (
	_ Node      = NodeFunc(nil)
	_ Resumable = ResumableFunc{}
)
