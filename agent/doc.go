// Package agent contains the building blocks every inboxmesh sub-agent is
// assembled from:
//
//  1. Graph nodes (ModelNode, ActionNode, AskNode, RespondNode) and the
//     RespondRouter that loops a rejected respond call back to the model
//  2. The ask_question and respond tools a sub-agent uses to talk to its
//     caller
//  3. SubAgent, which compiles a tool set into a suspendable graph and turns
//     its end state into a core.Outcome
//
// Execution model:
//   - Every Invoke starts from a fresh history holding one Human turn built
//     from the delegation request. Nothing else of the caller's history
//     reaches the agent.
//   - An ask_question call suspends the graph. Resume continues it with the
//     caller's answer on the same thread (session + "/" + agent name).
//   - A valid respond call ends the run with a core.AgentResult. A fatal
//     error ends it with a failure result.
//
// Concrete agents live in the calendaragent and mailagent subpackages.
package agent
