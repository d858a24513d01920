package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/model"
)

// CallTurn builds an assistant turn requesting one tool call. args is
// marshalled to JSON unless it already is a string or json.RawMessage.
func CallTurn(author, name string, args any) core.Turn {
	return core.NewAssistantTurn(author, "", core.ToolCallRequest{
		ID:        core.NewID(),
		Name:      name,
		Arguments: rawArgs(args),
	})
}

// Call is a scripted model step requesting one tool call.
func Call(name string, args any) model.Step {
	raw := rawArgs(args)
	return func(model.Request) (core.Turn, error) {
		return core.NewAssistantTurn("", "", core.ToolCallRequest{ID: core.NewID(), Name: name, Arguments: raw}), nil
	}
}

// Say is a scripted model step producing a text-only turn.
func Say(text string) model.Step {
	return func(model.Request) (core.Turn, error) {
		return core.NewAssistantTurn("", text), nil
	}
}

// Fail is a scripted model step returning err.
func Fail(err error) model.Step {
	return func(model.Request) (core.Turn, error) { return core.Turn{}, err }
}

// ToolResults returns the tool result turns of h in order.
func ToolResults(h core.History) []core.ToolResult {
	var out []core.ToolResult
	for _, t := range h {
		if t.Role == core.RoleTool && t.Result != nil {
			out = append(out, *t.Result)
		}
	}
	return out
}

// Roles returns the role sequence of h.
func Roles(h core.History) []core.Role {
	out := make([]core.Role, len(h))
	for i, t := range h {
		out[i] = t.Role
	}
	return out
}

func rawArgs(args any) json.RawMessage {
	switch a := args.(type) {
	case nil:
		return json.RawMessage("{}")
	case json.RawMessage:
		return a
	case string:
		return json.RawMessage(a)
	}
	b, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal args: %v", err))
	}
	return b
}
