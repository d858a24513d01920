package graph

import (
	"sort"

	"github.com/hupe1980/inboxmesh/core"
)

// Router picks the next node from the current history. It must be a pure
// function of the history.
type Router func(h core.History) (string, error)

// ToolRouter routes on the first tool call of the most recent turn.
//
// routes maps tool names to node names. A last turn without a tool call goes
// to textOnly; an empty textOnly makes such a turn a routing error too. A
// tool name missing from routes is a *core.RoutingError naming the source
// node, never a retry.
func ToolRouter(from string, routes map[string]string, textOnly string) Router {
	table := make(map[string]string, len(routes))
	for k, v := range routes {
		table[k] = v
	}

	return func(h core.History) (string, error) {
		last, ok := h.Last()
		if !ok || last.Role != core.RoleAssistant {
			return "", &core.RoutingError{Node: from}
		}
		call, ok := last.FirstToolCall()
		if !ok {
			if textOnly == "" {
				return "", &core.RoutingError{Node: from}
			}
			return textOnly, nil
		}
		next, ok := table[call.Name]
		if !ok {
			return "", &core.RoutingError{Node: from, Tool: call.Name}
		}
		return next, nil
	}
}

// Static always routes to node.
func Static(node string) Router {
	return func(core.History) (string, error) { return node, nil }
}

// RoutedTools lists the tool names a ToolRouter table accepts, sorted.
func RoutedTools(routes map[string]string) []string {
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
