// Package core provides the foundational domain types and execution contexts
// shared by every graph in inboxmesh. It defines:
//
//   - Turns and Histories (the ordered conversation a graph owns)
//   - Tool call requests and tool results correlated by call id
//   - Delegation requests and the two shapes a sub-agent may return
//     (AgentResult or AgentQuestion)
//   - RunContext / ToolContext (scoped execution handed to nodes and tools)
//   - The error taxonomy used across the engine
//
// Concrete graphs, stores and model adapters live in their own packages and
// only depend on the small types declared here.
package core
