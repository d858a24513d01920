package tool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/logging"
)

type rangeArgs struct {
	Start time.Time `json:"start" description:"Start of the range"`
	End   time.Time `json:"end" description:"End of the range"`
}

type cancelArgs struct {
	EventID string `json:"event_id"`
}

type askArgs struct {
	Question string `json:"question"`
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
}

func (o *recordingObserver) RecordToolInvocation(_ context.Context, _ string, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func testToolContext() *core.ToolContext {
	rc := core.NewRunContext(context.Background(), "thread", "run", core.AgentInfo{Name: "test"}, logging.NoOpLogger{})
	return core.NewToolContext(rc, core.ToolCallRequest{ID: "c1"})
}

func newTestRegistry(t *testing.T, calls *int, obs Observer) *Registry {
	t.Helper()
	search := NewFunctionTool("search_user_availability", "List events in a range",
		func(_ *core.ToolContext, args rangeArgs) (any, error) {
			*calls++
			return Success("found events", "count", 1), nil
		})
	cancel := NewFunctionTool("cancel_event", "Cancel an event",
		func(_ *core.ToolContext, args cancelArgs) (any, error) {
			*calls++
			if args.EventID == "missing" {
				return Failure("failed to remove event", errors.New("404 not found")), nil
			}
			if args.EventID == "panic" {
				panic("boom")
			}
			if args.EventID == "err" {
				return nil, errors.New("backend down")
			}
			return Success("removed event", "id_of_event_removed", args.EventID), nil
		})
	ask := NewRouteTool[askArgs]("ask_question", "Ask the caller a question")

	r, err := NewRegistry([]Tool{search, cancel, ask}, func(o *RegistryOptions) { o.Observer = obs })
	require.NoError(t, err)
	return r
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	a := NewRouteTool[askArgs]("ask_question", "a")
	b := NewRouteTool[askArgs]("ask_question", "b")
	_, err := NewRegistry([]Tool{a, b})
	assert.Error(t, err)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	var calls int
	r := newTestRegistry(t, &calls, nil)

	_, err := r.Validate("search_user_availability", json.RawMessage(`{"start":"2024-05-01T15:00:00Z"}`))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end", verr.Field)
	assert.Equal(t, "search_user_availability", verr.Tool)
	assert.Contains(t, verr.Error(), "end")
	assert.Equal(t, 0, calls)
}

func TestValidate_WrongTypeAndUnknownField(t *testing.T) {
	var calls int
	r := newTestRegistry(t, &calls, nil)

	_, err := r.Validate("cancel_event", json.RawMessage(`{"event_id":42}`))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "event_id", verr.Field)

	_, err = r.Validate("cancel_event", json.RawMessage(`{"event_id":"e1","extra":true}`))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "extra", verr.Field)

	_, err = r.Validate("cancel_event", json.RawMessage(`not json`))
	require.ErrorAs(t, err, &verr)

	_, err = r.Validate("nope", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestValidate_DateTimeFormat(t *testing.T) {
	var calls int
	r := newTestRegistry(t, &calls, nil)

	_, err := r.Validate("search_user_availability", json.RawMessage(`{"start":"tomorrow","end":"2024-05-01T16:00:00Z"}`))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "start", verr.Field)

	args, err := r.Validate("search_user_availability", json.RawMessage(`{"start":"2024-05-01T15:00:00Z","end":"2024-05-01T16:00:00Z"}`))
	require.NoError(t, err)
	typed := args.(rangeArgs)
	assert.Equal(t, 15, typed.Start.Hour())
}

func TestValidate_RoundTripProperty(t *testing.T) {
	var calls int
	r := newTestRegistry(t, &calls, nil)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("valid arguments decode unchanged", prop.ForAll(
		func(id string) bool {
			raw, _ := json.Marshal(cancelArgs{EventID: id})
			args, err := r.Validate("cancel_event", raw)
			if err != nil {
				return false
			}
			return args.(cancelArgs).EventID == id
		},
		gen.AnyString(),
	))

	properties.Property("missing field is always cited", prop.ForAll(
		func(q string) bool {
			raw, _ := json.Marshal(map[string]string{"question_text": q})
			_, err := r.Validate("ask_question", raw)
			var verr *core.ValidationError
			return errors.As(err, &verr) && (verr.Field == "question" || verr.Field == "question_text")
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
	assert.Equal(t, 0, calls)
}

func TestExecute(t *testing.T) {
	var calls int
	obs := &recordingObserver{}
	r := newTestRegistry(t, &calls, obs)
	tc := testToolContext()

	t.Run("success", func(t *testing.T) {
		out, err := r.Execute(tc, core.ToolCallRequest{ID: "1", Name: "cancel_event", Arguments: json.RawMessage(`{"event_id":"e1"}`)})
		require.NoError(t, err)
		var env map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &env))
		assert.Equal(t, "success", env["status"])
		assert.Equal(t, "e1", env["id_of_event_removed"])
	})

	t.Run("validation error never reaches collaborator", func(t *testing.T) {
		before := calls
		out, err := r.Execute(tc, core.ToolCallRequest{ID: "2", Name: "search_user_availability", Arguments: json.RawMessage(`{"start":"2024-05-01T15:00:00Z"}`)})
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, out, "end")
		assert.Equal(t, before, calls)
	})

	t.Run("failure envelope is collaborator error", func(t *testing.T) {
		out, err := r.Execute(tc, core.ToolCallRequest{ID: "3", Name: "cancel_event", Arguments: json.RawMessage(`{"event_id":"missing"}`)})
		var cerr *core.CollaboratorError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, out, `"status":"failure"`)
		assert.Contains(t, out, "404 not found")
	})

	t.Run("returned error becomes failure envelope", func(t *testing.T) {
		out, err := r.Execute(tc, core.ToolCallRequest{ID: "4", Name: "cancel_event", Arguments: json.RawMessage(`{"event_id":"err"}`)})
		var cerr *core.CollaboratorError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, out, "backend down")
		assert.False(t, core.IsFatal(err))
	})

	t.Run("panic is recovered", func(t *testing.T) {
		out, err := r.Execute(tc, core.ToolCallRequest{ID: "5", Name: "cancel_event", Arguments: json.RawMessage(`{"event_id":"panic"}`)})
		var cerr *core.CollaboratorError
		require.ErrorAs(t, err, &cerr)
		var terr *ToolError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, CodePanic, terr.Code)
		assert.Contains(t, out, "failure")
	})

	t.Run("route tools are not executed", func(t *testing.T) {
		_, err := r.Execute(tc, core.ToolCallRequest{ID: "6", Name: "ask_question", Arguments: json.RawMessage(`{"question":"?"}`)})
		assert.Error(t, err)
		assert.True(t, core.IsFatal(err))
	})

	assert.Equal(t, []string{"success", "invalid", "failure", "error", "error"}, obs.statuses)
}

func TestDefinitionsAndNames(t *testing.T) {
	var calls int
	r := newTestRegistry(t, &calls, nil)

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "search_user_availability", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	assert.Equal(t, []string{"ask_question"}, r.NamesOf(KindRoute))
	assert.Equal(t, []string{"cancel_event", "search_user_availability"}, r.NamesOf(KindAction))
}

func TestEnvelope(t *testing.T) {
	ok := Success("removed task", "id_of_task_removed", "t1")
	assert.True(t, ok.OK())
	assert.JSONEq(t, `{"status":"success","result":"removed task","id_of_task_removed":"t1"}`, ok.String())

	fail := Failure("failed to remove task", errors.New("gone"))
	assert.False(t, fail.OK())
	assert.JSONEq(t, `{"status":"failure","result":"failed to remove task","error":"gone"}`, Render(fail))

	assert.Equal(t, "plain", Render("plain"))
	assert.Equal(t, `{"a":1}`, Render(map[string]int{"a": 1}))
}
