package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"
)

// GoogleStoreOptions configure a GoogleStore.
type GoogleStoreOptions struct {
	CalendarID string
	TaskListID string
	Location   *time.Location
	Observer   APIObserver

	// ClientOptions are appended to every service constructor; tests use
	// them to point the store at a fake endpoint.
	ClientOptions []option.ClientOption
}

// GoogleStore implements Store over Google Calendar and Google Tasks.
type GoogleStore struct {
	cal        *calendar.Service
	tasks      *tasks.Service
	calendarID string
	taskListID string
	loc        *time.Location
	observer   APIObserver
}

var _ Store = (*GoogleStore)(nil)

// NewGoogleStore creates the Calendar and Tasks services on an authenticated
// HTTP client.
func NewGoogleStore(ctx context.Context, client *http.Client, optFns ...func(o *GoogleStoreOptions)) (*GoogleStore, error) {
	opts := GoogleStoreOptions{
		CalendarID: "primary",
		TaskListID: "@default",
		Location:   time.Local,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, opts.ClientOptions...)

	cal, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	ts, err := tasks.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tasks service: %w", err)
	}

	return &GoogleStore{
		cal:        cal,
		tasks:      ts,
		calendarID: opts.CalendarID,
		taskListID: opts.TaskListID,
		loc:        opts.Location,
		observer:   opts.Observer,
	}, nil
}

// ListEventsAndTasks returns up to MaxEvents events overlapping the range and
// the open tasks due within it.
func (s *GoogleStore) ListEventsAndTasks(ctx context.Context, start, end time.Time) (Items, error) {
	var items Items

	err := s.observe(ctx, "calendar", "events.list", func() error {
		res, err := s.cal.Events.List(s.calendarID).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(MaxEvents).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		for _, e := range res.Items {
			items.Events = append(items.Events, s.toEvent(e))
		}
		return nil
	})
	if err != nil {
		return Items{}, err
	}

	err = s.observe(ctx, "tasks", "tasks.list", func() error {
		res, err := s.tasks.Tasks.List(s.taskListID).
			DueMin(start.Format(time.RFC3339)).
			DueMax(end.Format(time.RFC3339)).
			ShowCompleted(false).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		for _, t := range res.Items {
			items.Tasks = append(items.Tasks, toTask(t))
		}
		return nil
	})
	if err != nil {
		return Items{}, err
	}

	return items, nil
}

// CreateEvent inserts an event and returns its id.
func (s *GoogleStore) CreateEvent(ctx context.Context, spec EventSpec) (string, error) {
	zone := spec.TimeZone
	if zone == "" {
		zone = s.loc.String()
	}

	ev := &calendar.Event{
		Summary:     spec.Summary,
		Description: spec.Description,
		Location:    spec.Location,
		Start:       &calendar.EventDateTime{DateTime: spec.Start.Format(time.RFC3339), TimeZone: zone},
		End:         &calendar.EventDateTime{DateTime: spec.End.Format(time.RFC3339), TimeZone: zone},
		Recurrence:  spec.Recurrence,
	}
	for _, email := range spec.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}
	if len(spec.Reminders) > 0 {
		ev.Reminders = &calendar.EventReminders{ForceSendFields: []string{"UseDefault"}}
		for _, r := range spec.Reminders {
			ev.Reminders.Overrides = append(ev.Reminders.Overrides, &calendar.EventReminder{Method: r.Method, Minutes: r.Minutes})
		}
	}

	var id string
	err := s.observe(ctx, "calendar", "events.insert", func() error {
		created, err := s.cal.Events.Insert(s.calendarID, ev).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		id = created.Id
		return nil
	})
	return id, err
}

// RescheduleEvent moves an event to a new time range.
func (s *GoogleStore) RescheduleEvent(ctx context.Context, id string, start, end time.Time) error {
	patch := &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:   &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	return s.observe(ctx, "calendar", "events.patch", func() error {
		if _, err := s.cal.Events.Patch(s.calendarID, id, patch).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to reschedule event: %w", err)
		}
		return nil
	})
}

// DeleteEvent removes an event.
func (s *GoogleStore) DeleteEvent(ctx context.Context, id string) error {
	return s.observe(ctx, "calendar", "events.delete", func() error {
		if err := s.cal.Events.Delete(s.calendarID, id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		return nil
	})
}

// CreateTask inserts a task and returns its id.
func (s *GoogleStore) CreateTask(ctx context.Context, spec TaskSpec) (string, error) {
	t := &tasks.Task{
		Title:  spec.Title,
		Notes:  spec.Notes,
		Status: spec.Status,
	}
	if spec.Due != nil {
		t.Due = spec.Due.Format(time.RFC3339)
	}
	for _, link := range spec.Links {
		t.Links = append(t.Links, &tasks.TaskLinks{Link: link, Type: "related"})
	}

	var id string
	err := s.observe(ctx, "tasks", "tasks.insert", func() error {
		call := s.tasks.Tasks.Insert(s.taskListID, t)
		if spec.Parent != "" {
			call = call.Parent(spec.Parent)
		}
		created, err := call.Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		id = created.Id
		return nil
	})
	return id, err
}

// RescheduleTask changes a task's due date.
func (s *GoogleStore) RescheduleTask(ctx context.Context, id string, due time.Time) error {
	return s.observe(ctx, "tasks", "tasks.patch", func() error {
		if _, err := s.tasks.Tasks.Patch(s.taskListID, id, &tasks.Task{Due: due.Format(time.RFC3339)}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to reschedule task: %w", err)
		}
		return nil
	})
}

// DeleteTask removes a task.
func (s *GoogleStore) DeleteTask(ctx context.Context, id string) error {
	return s.observe(ctx, "tasks", "tasks.delete", func() error {
		if err := s.tasks.Tasks.Delete(s.taskListID, id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		return nil
	})
}

func (s *GoogleStore) observe(ctx context.Context, service, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.observer != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.observer.RecordGoogleAPIOperation(ctx, service, op, status, time.Since(start))
	}
	return err
}

func (s *GoogleStore) toEvent(e *calendar.Event) Event {
	out := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      e.Status,
	}
	out.Start, out.AllDay = s.parseEventTime(e.Start)
	out.End, _ = s.parseEventTime(e.End)
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, a.Email)
	}
	return out
}

func (s *GoogleStore) parseEventTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t, false
	}
	t, _ := time.ParseInLocation("2006-01-02", dt.Date, s.loc)
	return t, true
}

func toTask(t *tasks.Task) Task {
	out := Task{ID: t.Id, Title: t.Title, Notes: t.Notes, Status: t.Status}
	if t.Due != "" {
		if due, err := time.Parse(time.RFC3339, t.Due); err == nil {
			out.Due = &due
		}
	}
	return out
}
