package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/model"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessages_ToolResultsAsUserBlocks(t *testing.T) {
	h := core.NewHistory(
		core.NewSystemTurn("ignored here"),
		core.NewHumanTurn("label the invoice mail"),
		core.NewAssistantTurn("mail", "", core.ToolCallRequest{
			ID: "t1", Name: "add_label_to_email", Arguments: json.RawMessage(`{"email_id":"m1","label_name":"finance"}`),
		}),
		core.NewToolResultTurn("mail", "t1", "add_label_to_email", "ok", false),
	)

	msgs := buildMessages(h)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestSystemBlocks(t *testing.T) {
	req := model.Request{
		Instructions: "be brief",
		History:      core.NewHistory(core.NewSystemTurn("extra"), core.NewHumanTurn("hi")),
	}
	blocks := systemBlocks(req)
	require.Len(t, blocks, 2)
	assert.Equal(t, "be brief", blocks[0].Text)
}

func TestBuildTools_Required(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "cancel_event",
			Description: "Cancel an event",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"event_id": map[string]any{"type": "string"}},
				"required":   []any{"event_id"},
			},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "cancel_event", tools[0].OfTool.Name)
	assert.Equal(t, []string{"event_id"}, tools[0].OfTool.InputSchema.Required)
}
