package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/inboxmesh/calendar"
	"github.com/hupe1980/inboxmesh/mail"
)

// FakeCalendar is an in-memory calendar.Store. Operations on unknown ids
// fail like the real API does.
type FakeCalendar struct {
	mu     sync.Mutex
	events map[string]calendar.Event
	tasks  map[string]calendar.Task
	calls  []string
	nextID int

	// Err, when set, is returned by every operation.
	Err error
}

var _ calendar.Store = (*FakeCalendar)(nil)

// NewFakeCalendar creates a store holding events.
func NewFakeCalendar(events ...calendar.Event) *FakeCalendar {
	f := &FakeCalendar{
		events: make(map[string]calendar.Event),
		tasks:  make(map[string]calendar.Task),
	}
	for _, e := range events {
		f.events[e.ID] = e
	}
	return f
}

// AddTask stores a task.
func (f *FakeCalendar) AddTask(t calendar.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
}

// Calls returns the operations invoked so far, formatted as "op(arg)".
func (f *FakeCalendar) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Event returns a stored event.
func (f *FakeCalendar) Event(id string) (calendar.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	return e, ok
}

// Task returns a stored task.
func (f *FakeCalendar) Task(id string) (calendar.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

func (f *FakeCalendar) record(op, arg string) error {
	f.calls = append(f.calls, op+"("+arg+")")
	return f.Err
}

func (f *FakeCalendar) ListEventsAndTasks(_ context.Context, start, end time.Time) (calendar.Items, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListEventsAndTasks", start.Format(time.RFC3339)+","+end.Format(time.RFC3339)); err != nil {
		return calendar.Items{}, err
	}

	var items calendar.Items
	for _, e := range f.events {
		if e.End.After(start) && e.Start.Before(end) {
			items.Events = append(items.Events, e)
		}
	}
	sort.Slice(items.Events, func(i, j int) bool { return items.Events[i].Start.Before(items.Events[j].Start) })
	if len(items.Events) > calendar.MaxEvents {
		items.Events = items.Events[:calendar.MaxEvents]
	}
	for _, t := range f.tasks {
		if t.Due != nil && !t.Due.Before(start) && !t.Due.After(end) {
			items.Tasks = append(items.Tasks, t)
		}
	}
	sort.Slice(items.Tasks, func(i, j int) bool { return items.Tasks[i].ID < items.Tasks[j].ID })
	return items, nil
}

func (f *FakeCalendar) CreateEvent(_ context.Context, spec calendar.EventSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateEvent", spec.Summary); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("event-%d", f.nextID)
	f.events[id] = calendar.Event{
		ID: id, Summary: spec.Summary, Description: spec.Description, Location: spec.Location,
		Start: spec.Start, End: spec.End, Attendees: spec.Attendees,
	}
	return id, nil
}

func (f *FakeCalendar) RescheduleEvent(_ context.Context, id string, start, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RescheduleEvent", id); err != nil {
		return err
	}
	e, ok := f.events[id]
	if !ok {
		return fmt.Errorf("event %s not found", id)
	}
	e.Start, e.End = start, end
	f.events[id] = e
	return nil
}

func (f *FakeCalendar) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteEvent", id); err != nil {
		return err
	}
	if _, ok := f.events[id]; !ok {
		return fmt.Errorf("event %s not found", id)
	}
	delete(f.events, id)
	return nil
}

func (f *FakeCalendar) CreateTask(_ context.Context, spec calendar.TaskSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateTask", spec.Title); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	f.tasks[id] = calendar.Task{ID: id, Title: spec.Title, Notes: spec.Notes, Status: spec.Status, Due: spec.Due}
	return id, nil
}

func (f *FakeCalendar) RescheduleTask(_ context.Context, id string, due time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RescheduleTask", id); err != nil {
		return err
	}
	t, ok := f.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	t.Due = &due
	f.tasks[id] = t
	return nil
}

func (f *FakeCalendar) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteTask", id); err != nil {
		return err
	}
	if _, ok := f.tasks[id]; !ok {
		return fmt.Errorf("task %s not found", id)
	}
	delete(f.tasks, id)
	return nil
}

// FakeMail is an in-memory mail.Store. Keyword search matches keywords and
// subject as case-insensitive substrings; semantic search returns the
// e-mails registered for a query with SetSemantic.
type FakeMail struct {
	mu       sync.Mutex
	emails   []mail.Email
	semantic map[string][]string
	calls    []string

	// Err, when set, is returned by every operation.
	Err error
}

var _ mail.Store = (*FakeMail)(nil)

// NewFakeMail creates a store holding emails.
func NewFakeMail(emails ...mail.Email) *FakeMail {
	return &FakeMail{emails: append([]mail.Email(nil), emails...), semantic: make(map[string][]string)}
}

// SetSemantic registers the ids a semantic query returns, duplicates
// included.
func (f *FakeMail) SetSemantic(query string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.semantic[query] = ids
}

// Calls returns the operations invoked so far, formatted as "op(arg)".
func (f *FakeMail) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Email returns a stored e-mail.
func (f *FakeMail) Email(id string) (mail.Email, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.emails {
		if e.ID == id {
			return e, true
		}
	}
	return mail.Email{}, false
}

func (f *FakeMail) record(op, arg string) error {
	f.calls = append(f.calls, op+"("+arg+")")
	return f.Err
}

func inRange(d time.Time, start, end *time.Time) bool {
	if start != nil && d.Before(*start) {
		return false
	}
	if end != nil && d.After(*end) {
		return false
	}
	return true
}

func (f *FakeMail) KeywordSearch(_ context.Context, keywords, subject string, start, end *time.Time) ([]mail.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("KeywordSearch", keywords); err != nil {
		return nil, err
	}

	var out []mail.Email
	for _, e := range f.emails {
		text := strings.ToLower(e.Subject + " " + e.Text)
		if keywords != "" && !strings.Contains(text, strings.ToLower(keywords)) {
			continue
		}
		if subject != "" && !strings.Contains(strings.ToLower(e.Subject), strings.ToLower(subject)) {
			continue
		}
		if inRange(e.Date, start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *FakeMail) SemanticSearch(_ context.Context, query string, k int, start, end *time.Time) ([]mail.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SemanticSearch", query); err != nil {
		return nil, err
	}

	var out []mail.Email
	for _, id := range f.semantic[query] {
		for _, e := range f.emails {
			if e.ID == id && inRange(e.Date, start, end) {
				out = append(out, e)
			}
		}
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *FakeMail) AddLabel(_ context.Context, id, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddLabel", id+","+label); err != nil {
		return err
	}
	for i, e := range f.emails {
		if e.ID == id {
			f.emails[i].Labels = append(f.emails[i].Labels, label)
			return nil
		}
	}
	return fmt.Errorf("email %s not found", id)
}

func (f *FakeMail) RemoveLabel(_ context.Context, id, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveLabel", id+","+label); err != nil {
		return err
	}
	for i, e := range f.emails {
		if e.ID != id {
			continue
		}
		kept := e.Labels[:0:0]
		for _, l := range e.Labels {
			if l != label {
				kept = append(kept, l)
			}
		}
		f.emails[i].Labels = kept
		return nil
	}
	return fmt.Errorf("email %s not found", id)
}
