package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type apiRecord struct {
	service, op, status string
}

type recordingObserver struct {
	mu      sync.Mutex
	records []apiRecord
}

func (o *recordingObserver) RecordGoogleAPIOperation(_ context.Context, service, op, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, apiRecord{service, op, status})
}

type request struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func fakeGoogle(t *testing.T) (*httptest.Server, *[]request) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := request{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		isTasks := strings.Contains(r.URL.Path, "/lists/")
		switch {
		case r.Method == http.MethodGet && !isTasks:
			_, _ = io.WriteString(w, `{"items":[
				{"id":"e1","summary":"Standup","start":{"dateTime":"2024-05-06T15:00:00Z"},"end":{"dateTime":"2024-05-06T15:30:00Z"},"attendees":[{"email":"a@example.com"}]},
				{"id":"e2","summary":"Holiday","start":{"date":"2024-05-07"},"end":{"date":"2024-05-08"}}
			]}`)
		case r.Method == http.MethodGet && isTasks:
			_, _ = io.WriteString(w, `{"items":[{"id":"t1","title":"File taxes","due":"2024-05-06T00:00:00.000Z","status":"needsAction"}]}`)
		case r.Method == http.MethodPost && !isTasks:
			_, _ = io.WriteString(w, `{"id":"new-event"}`)
		case r.Method == http.MethodPost && isTasks:
			_, _ = io.WriteString(w, `{"id":"new-task"}`)
		case r.Method == http.MethodPatch:
			_, _ = io.WriteString(w, `{"id":"patched"}`)
		case r.Method == http.MethodDelete:
			if strings.HasSuffix(r.URL.Path, "/missing") {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func newTestStore(t *testing.T, obs APIObserver) (*GoogleStore, *[]request) {
	t.Helper()
	srv, reqs := fakeGoogle(t)
	s, err := NewGoogleStore(context.Background(), srv.Client(), func(o *GoogleStoreOptions) {
		o.Location = time.UTC
		o.Observer = obs
		o.ClientOptions = []option.ClientOption{option.WithEndpoint(srv.URL + "/")}
	})
	require.NoError(t, err)
	return s, reqs
}

func TestGoogleStore_ListEventsAndTasks(t *testing.T) {
	obs := &recordingObserver{}
	s, reqs := newTestStore(t, obs)

	start := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	items, err := s.ListEventsAndTasks(context.Background(), start, start.Add(48*time.Hour))
	require.NoError(t, err)

	require.Len(t, items.Events, 2)
	assert.Equal(t, "e1", items.Events[0].ID)
	assert.Equal(t, 15, items.Events[0].Start.Hour())
	assert.Equal(t, []string{"a@example.com"}, items.Events[0].Attendees)
	assert.True(t, items.Events[1].AllDay)

	require.Len(t, items.Tasks, 1)
	assert.Equal(t, "File taxes", items.Tasks[0].Title)
	require.NotNil(t, items.Tasks[0].Due)

	require.Len(t, *reqs, 2)
	assert.Contains(t, (*reqs)[0].query, "maxResults=20")
	assert.Contains(t, (*reqs)[0].query, "singleEvents=true")
	assert.Contains(t, (*reqs)[1].query, "showCompleted=false")

	assert.Equal(t, []apiRecord{
		{"calendar", "events.list", "success"},
		{"tasks", "tasks.list", "success"},
	}, obs.records)
}

func TestGoogleStore_CreateEvent(t *testing.T) {
	s, reqs := newTestStore(t, nil)

	start := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)
	id, err := s.CreateEvent(context.Background(), EventSpec{
		Summary:   "Dentist",
		Start:     start,
		End:       start.Add(time.Hour),
		Attendees: []string{"b@example.com"},
		Reminders: []Reminder{{Method: "popup", Minutes: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-event", id)

	body := (*reqs)[0].body
	assert.Equal(t, "Dentist", body["summary"])
	startBody := body["start"].(map[string]any)
	assert.Equal(t, "2024-05-06T15:00:00Z", startBody["dateTime"])
	assert.Equal(t, "UTC", startBody["timeZone"])
	reminders := body["reminders"].(map[string]any)
	assert.Equal(t, false, reminders["useDefault"])
}

func TestGoogleStore_TaskOperations(t *testing.T) {
	s, reqs := newTestStore(t, nil)
	due := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	id, err := s.CreateTask(context.Background(), TaskSpec{Title: "Pay rent", Due: &due, Parent: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "new-task", id)
	assert.Contains(t, (*reqs)[0].query, "parent=p1")
	assert.Equal(t, "2024-05-10T00:00:00Z", (*reqs)[0].body["due"])

	require.NoError(t, s.RescheduleTask(context.Background(), "t1", due.Add(24*time.Hour)))
	assert.Equal(t, http.MethodPatch, (*reqs)[1].method)

	require.NoError(t, s.DeleteTask(context.Background(), "t1"))
	assert.Equal(t, http.MethodDelete, (*reqs)[2].method)
}

func TestGoogleStore_EventErrors(t *testing.T) {
	obs := &recordingObserver{}
	s, _ := newTestStore(t, obs)

	err := s.DeleteEvent(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete event")
	assert.Equal(t, "error", obs.records[0].status)

	start := time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC)
	require.NoError(t, s.RescheduleEvent(context.Background(), "e1", start, start.Add(time.Hour)))
}
