package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/graph"
	"github.com/hupe1980/inboxmesh/internal/testutil"
	"github.com/hupe1980/inboxmesh/model"
	"github.com/hupe1980/inboxmesh/tool"
)

type lookupArgs struct {
	Key string `json:"key" description:"Key to look up"`
}

// lookupTool returns a tool answering with "value of <key>" and counting
// its executions.
func lookupTool(calls *int) tool.Tool {
	return tool.NewFunctionTool("lookup", "Look a key up",
		func(_ *core.ToolContext, args lookupArgs) (any, error) {
			*calls++
			return tool.Success("looked up "+args.Key, "value", "value of "+args.Key), nil
		})
}

func newTestAgent(t *testing.T, m model.Model, calls *int) *SubAgent {
	t.Helper()
	a, err := NewSubAgent("test_agent", m, []tool.Tool{lookupTool(calls)}, func(o *SubAgentOptions) {
		o.Instruction = NewInstructionFromText("You look things up.")
	})
	require.NoError(t, err)
	return a
}

func respondStep(status, summary string) model.Step {
	return testutil.Call(RespondToolName, map[string]any{"request_status": status, "summary": summary})
}

func TestSubAgent_Respond(t *testing.T) {
	m := model.NewScriptedModel("scripted",
		testutil.Call("lookup", map[string]any{"key": "a"}),
		testutil.Call(RespondToolName, map[string]any{
			"request_status": "success",
			"summary":        "found it",
			"information":    "value of a",
		}),
	)
	calls := 0
	a := newTestAgent(t, m, &calls)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Target: "test_agent", Task: "find a", Context: "for the report"})
	require.NoError(t, err)
	require.NoError(t, out.Classify())
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)
	assert.Equal(t, "found it", out.Result.Summary)
	assert.Equal(t, "value of a", out.Result.Information)
	assert.Equal(t, 1, calls)
	assert.False(t, a.Pending("s1"))

	first := m.Requests()[0]
	require.Len(t, first.History, 1)
	assert.Equal(t, core.RoleHuman, first.History[0].Role)
	assert.Equal(t, "find a\n\nContext:\nfor the report", first.History[0].Text)
	assert.Equal(t, "You look things up.", first.Instructions)
}

func TestSubAgent_AskAndResume(t *testing.T) {
	m := model.NewScriptedModel("scripted",
		testutil.Call(AskQuestionToolName, map[string]any{"question": "Which key?"}),
		respondStep("success", "done"),
	)
	calls := 0
	a := newTestAgent(t, m, &calls)
	ctx := context.Background()

	out, err := a.Invoke(ctx, "s1", core.DelegationRequest{Task: "look something up"})
	require.NoError(t, err)
	require.True(t, out.IsQuestion())
	assert.Equal(t, "Which key?", out.Question.Question)
	assert.True(t, a.Pending("s1"))
	assert.False(t, a.Pending("s2"))

	out, err = a.Resume(ctx, "s1", "key b")
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)
	assert.False(t, a.Pending("s1"))

	second := m.Requests()[1]
	results := testutil.ToolResults(second.History)
	require.Len(t, results, 1)
	assert.Equal(t, "key b", results[0].Content)
	assert.False(t, results[0].IsError)

	_, err = a.Resume(ctx, "s1", "again")
	assert.ErrorIs(t, err, core.ErrUnknownCheckpoint)
}

func TestSubAgent_Abandon(t *testing.T) {
	m := model.NewScriptedModel("scripted",
		testutil.Call(AskQuestionToolName, map[string]any{"question": "Which key?"}),
	)
	calls := 0
	a := newTestAgent(t, m, &calls)

	_, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "look"})
	require.NoError(t, err)
	require.True(t, a.Pending("s1"))

	a.Abandon("s1")
	assert.False(t, a.Pending("s1"))
}

func TestSubAgent_InvalidArgumentsRetry(t *testing.T) {
	m := model.NewScriptedModel("scripted",
		testutil.Call("lookup", map[string]any{}),
		testutil.Call("lookup", map[string]any{"key": "c"}),
		respondStep("success", "done"),
	)
	calls := 0
	a := newTestAgent(t, m, &calls)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "find c"})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, 1, calls)

	results := testutil.ToolResults(m.Requests()[1].History)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "invalid arguments for lookup")
}

func TestSubAgent_InvalidRespondRetries(t *testing.T) {
	m := model.NewScriptedModel("scripted",
		respondStep("maybe", "not sure"),
		respondStep("failure", "could not"),
	)
	calls := 0
	a := newTestAgent(t, m, &calls)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "find"})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusFailure, out.Result.Status)
	assert.Equal(t, "could not", out.Result.Summary)
	assert.Equal(t, 2, m.Calls())

	results := testutil.ToolResults(m.Requests()[1].History)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
}

func TestSubAgent_KeepsFirstToolCall(t *testing.T) {
	both := model.Reply(core.NewAssistantTurn("", "",
		core.ToolCallRequest{ID: "c1", Name: "lookup", Arguments: []byte(`{"key":"a"}`)},
		core.ToolCallRequest{ID: "c2", Name: RespondToolName, Arguments: []byte(`{"request_status":"success","summary":"early"}`)},
	))
	m := model.NewScriptedModel("scripted", both, respondStep("success", "late"))
	calls := 0
	a := newTestAgent(t, m, &calls)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "find a"})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, "late", out.Result.Summary)
	assert.Equal(t, 1, calls)

	h := m.Requests()[1].History
	last, ok := h.LastAssistant()
	require.True(t, ok)
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, "lookup", last.ToolCalls[0].Name)
}

func TestSubAgent_TextOnlyTurnSucceeds(t *testing.T) {
	m := model.NewScriptedModel("scripted", testutil.Say("nothing to do"))
	calls := 0
	a := newTestAgent(t, m, &calls)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "hello"})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)
	assert.Equal(t, "nothing to do", out.Result.Summary)
}

func TestSubAgent_ModelErrorBecomesFailure(t *testing.T) {
	m := model.NewScriptedModel("scripted", testutil.Fail(errors.New("rate limited")))
	calls := 0
	a := newTestAgent(t, m, &calls)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "find"})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusFailure, out.Result.Status)
	assert.Contains(t, out.Result.ErrorInfo, "rate limited")
	assert.False(t, a.Pending("s1"))
}

func TestSubAgent_CancelledContext(t *testing.T) {
	m := model.NewScriptedModel("scripted", respondStep("success", "done"))
	calls := 0
	a := newTestAgent(t, m, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Invoke(ctx, "s1", core.DelegationRequest{Task: "find"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRespondRouter(t *testing.T) {
	router := RespondRouter(NodeAgent)
	call := core.ToolCallRequest{ID: "c1", Name: RespondToolName}

	ok := core.NewHistory(
		core.NewHumanTurn("hi"),
		core.NewAssistantTurn("a", "", call),
		core.NewToolResultTurn("a", "c1", RespondToolName, "response delivered", false),
	)
	next, err := router(ok)
	require.NoError(t, err)
	assert.Equal(t, graph.End, next)

	bad := core.NewHistory(
		core.NewHumanTurn("hi"),
		core.NewAssistantTurn("a", "", call),
		core.NewToolResultTurn("a", "c1", RespondToolName, "invalid", true),
	)
	next, err = router(bad)
	require.NoError(t, err)
	assert.Equal(t, NodeAgent, next)
}
