// Package calendar is the Calendar/Task store the calendar agent works
// against: a small Store interface and a Google Calendar plus Google Tasks
// implementation of it.
package calendar

import (
	"context"
	"time"
)

// MaxEvents caps how many events ListEventsAndTasks returns.
const MaxEvents = 20

// Reminder overrides the calendar's default reminders for an event.
type Reminder struct {
	Method  string `json:"method" enum:"email,popup" description:"How the reminder is delivered."`
	Minutes int64  `json:"minutes" description:"Minutes before the event start."`
}

// EventSpec describes an event to create.
type EventSpec struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
	Reminders   []Reminder
	Recurrence  []string
}

// TaskSpec describes a task to create.
type TaskSpec struct {
	Title  string
	Notes  string
	Status string
	Parent string
	Due    *time.Time
	Links  []string
}

// Event is a calendar event as shown to the model.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// Task is a task as shown to the model.
type Task struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Notes  string     `json:"notes,omitempty"`
	Status string     `json:"status,omitempty"`
	Due    *time.Time `json:"due,omitempty"`
}

// Items is what ListEventsAndTasks returns.
type Items struct {
	Events []Event `json:"events"`
	Tasks  []Task  `json:"tasks"`
}

// Store is the calendar collaborator. Every method is one API operation.
type Store interface {
	ListEventsAndTasks(ctx context.Context, start, end time.Time) (Items, error)
	CreateEvent(ctx context.Context, spec EventSpec) (string, error)
	RescheduleEvent(ctx context.Context, id string, start, end time.Time) error
	DeleteEvent(ctx context.Context, id string) error
	CreateTask(ctx context.Context, spec TaskSpec) (string, error)
	RescheduleTask(ctx context.Context, id string, due time.Time) error
	DeleteTask(ctx context.Context, id string) error
}

// APIObserver receives one record per Google API operation.
type APIObserver interface {
	RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration)
}
