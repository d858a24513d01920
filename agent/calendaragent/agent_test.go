package calendaragent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/inboxmesh/agent"
	"github.com/hupe1980/inboxmesh/calendar"
	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/internal/testutil"
	"github.com/hupe1980/inboxmesh/model"
)

var (
	day       = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	threePM   = day.Add(15 * time.Hour)
	fixedNow  = func() time.Time { return day.Add(9*time.Hour + 30*time.Minute) }
	searchDay = map[string]any{"start": day.Format(time.RFC3339), "end": day.Add(24 * time.Hour).Format(time.RFC3339)}
)

func newCalendar() *testutil.FakeCalendar {
	return testutil.NewFakeCalendar(
		calendar.Event{ID: "standup", Summary: "Standup", Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 15*time.Minute)},
		calendar.Event{ID: "review", Summary: "Design review", Start: threePM, End: threePM.Add(time.Hour)},
	)
}

func newAgent(t *testing.T, m model.Model, store calendar.Store) *agent.SubAgent {
	t.Helper()
	a, err := NewWithOptions(m, store, Options{Location: time.UTC, Now: fixedNow})
	require.NoError(t, err)
	return a
}

func respond(status, summary string) model.Step {
	return testutil.Call(agent.RespondToolName, map[string]any{"request_status": status, "summary": summary})
}

func TestCalendarAgent_CancelMeeting(t *testing.T) {
	store := newCalendar()
	m := model.NewScriptedModel("calendar",
		testutil.Call(SearchAvailabilityToolName, searchDay),
		testutil.Call(CancelEventToolName, map[string]any{"event_id": "review"}),
		respond("success", "Cancelled the 3pm design review."),
	)
	a := newAgent(t, m, store)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Target: Name, Task: "cancel my 3pm meeting"})
	require.NoError(t, err)
	require.NoError(t, out.Classify())
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)
	assert.Equal(t, "Cancelled the 3pm design review.", out.Result.Summary)

	assert.Equal(t, []string{
		"ListEventsAndTasks(2024-05-06T00:00:00Z,2024-05-07T00:00:00Z)",
		"DeleteEvent(review)",
	}, store.Calls())
	_, ok := store.Event("review")
	assert.False(t, ok)
	assert.False(t, a.Pending("s1"))

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0].Instructions, "Now is 2024-05-06T09:30:00Z (Monday, May 6, 2024, time zone UTC)")
	assert.True(t, reqs[0].RequireTool)

	search := testutil.ToolResults(reqs[1].History)
	require.Len(t, search, 1)
	assert.Contains(t, search[0].Content, `"id":"review"`)
	assert.False(t, search[0].IsError)
}

func TestCalendarAgent_AskQuestionAndResume(t *testing.T) {
	store := newCalendar()
	m := model.NewScriptedModel("calendar",
		testutil.Call(agent.AskQuestionToolName, map[string]any{"question": "Which meeting should I cancel?"}),
		testutil.Call(CancelEventToolName, map[string]any{"event_id": "review"}),
		respond("success", "Cancelled."),
	)
	a := newAgent(t, m, store)
	ctx := context.Background()

	out, err := a.Invoke(ctx, "s1", core.DelegationRequest{Task: "cancel my meeting"})
	require.NoError(t, err)
	require.True(t, out.IsQuestion())
	assert.Equal(t, "Which meeting should I cancel?", out.Question.Question)
	assert.True(t, a.Pending("s1"))
	assert.Empty(t, store.Calls())

	out, err = a.Resume(ctx, "s1", "the 3pm one")
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)
	assert.False(t, a.Pending("s1"))

	answers := 0
	for _, r := range testutil.ToolResults(m.Requests()[2].History) {
		if r.Content == "the 3pm one" {
			answers++
			assert.Equal(t, agent.AskQuestionToolName, r.Name)
		}
	}
	assert.Equal(t, 1, answers)

	_, err = a.Resume(ctx, "s1", "the 3pm one")
	assert.ErrorIs(t, err, core.ErrUnknownCheckpoint)
}

func TestCalendarAgent_MissingEndIsRetried(t *testing.T) {
	store := newCalendar()
	m := model.NewScriptedModel("calendar",
		testutil.Call(SearchAvailabilityToolName, map[string]any{"start": day.Format(time.RFC3339)}),
		testutil.Call(SearchAvailabilityToolName, searchDay),
		respond("success", "You have two meetings."),
	)
	a := newAgent(t, m, store)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "what is on today?"})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)

	assert.Len(t, store.Calls(), 1)

	results := testutil.ToolResults(m.Requests()[1].History)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "end")
}

func TestCalendarAgent_DelegationIsolation(t *testing.T) {
	m := model.NewScriptedModel("calendar", respond("success", "ok"))
	a := newAgent(t, m, newCalendar())

	req := core.DelegationRequest{Target: Name, Task: "book lunch with Ana", Context: "Ana is free after noon"}
	_, err := a.Invoke(context.Background(), "s1", req)
	require.NoError(t, err)

	first := m.Requests()[0].History
	require.Len(t, first, 1)
	assert.Equal(t, core.RoleHuman, first[0].Role)
	assert.Equal(t, req.SeedText(), first[0].Text)
}

func TestCalendarAgent_CreateEventNode(t *testing.T) {
	store := newCalendar()
	m := model.NewScriptedModel("calendar",
		testutil.Call(CreateEventToolName, map[string]any{
			"summary":   "Dentist",
			"start":     day.Add(11 * time.Hour).Format(time.RFC3339),
			"end":       day.Add(12 * time.Hour).Format(time.RFC3339),
			"reminders": []map[string]any{{"method": "popup", "minutes": 30}},
		}),
		testutil.Call(CreateTaskToolName, map[string]any{"title": "Bring x-rays"}),
		respond("success", "Booked."),
	)
	a := newAgent(t, m, store)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "book the dentist at 11"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)
	assert.Equal(t, []string{"CreateEvent(Dentist)", "CreateTask(Bring x-rays)"}, store.Calls())

	results := testutil.ToolResults(m.Requests()[2].History)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Content, `"id_of_event_created":"event-1"`)
	assert.Contains(t, results[1].Content, `"id_of_task_created":"task-2"`)
}

func TestCalendarAgent_CollaboratorFailureIsData(t *testing.T) {
	store := newCalendar()
	m := model.NewScriptedModel("calendar",
		testutil.Call(CancelEventToolName, map[string]any{"event_id": "nope"}),
		respond("failure", "No such event."),
	)
	a := newAgent(t, m, store)

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "cancel nope"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailure, out.Result.Status)

	results := testutil.ToolResults(m.Requests()[1].History)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.True(t, strings.HasPrefix(results[0].Content, `{"error":"event nope not found"`))
	assert.Contains(t, results[0].Content, `"status":"failure"`)
}

func TestCalendarAgent_InvalidRespondIsRetried(t *testing.T) {
	m := model.NewScriptedModel("calendar",
		testutil.Call(agent.RespondToolName, map[string]any{"request_status": "done", "summary": "x"}),
		respond("success", "Done."),
	)
	a := newAgent(t, m, newCalendar())

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "noop"})
	require.NoError(t, err)
	assert.Equal(t, "Done.", out.Result.Summary)
	assert.Equal(t, 2, m.Calls())
}

func TestCalendarAgent_TextOnlyTurnEnds(t *testing.T) {
	m := model.NewScriptedModel("calendar", testutil.Say("Nothing to do."))
	a := newAgent(t, m, newCalendar())

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "noop"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, out.Result.Status)
	assert.Equal(t, "Nothing to do.", out.Result.Summary)
}

func TestCalendarAgent_FatalErrorBecomesFailure(t *testing.T) {
	m := model.NewScriptedModel("calendar", testutil.Fail(errors.New("provider down")))
	a := newAgent(t, m, newCalendar())

	out, err := a.Invoke(context.Background(), "s1", core.DelegationRequest{Task: "noop"})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, core.StatusFailure, out.Result.Status)
	assert.Contains(t, out.Result.ErrorInfo, "provider down")
	assert.False(t, a.Pending("s1"))
}
