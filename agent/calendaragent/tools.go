// Package calendaragent is the sub-agent that manages the user's Google
// Calendar and Google Tasks on behalf of the dispatcher.
package calendaragent

import (
	"time"

	"github.com/hupe1980/inboxmesh/calendar"
	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/tool"
)

// Tool names.
const (
	SearchAvailabilityToolName = "search_user_availability"
	ChangeEventTimeToolName    = "change_event_time"
	CancelEventToolName        = "cancel_event"
	ChangeTaskTimeToolName     = "change_task_time"
	CancelTaskToolName         = "cancel_task"
	CreateEventToolName        = "create_event"
	CreateTaskToolName         = "create_task"
)

const idHint = " If you don't have the id, search with search_user_availability first and take it from the result."

// SearchAvailabilityArgs are the arguments of search_user_availability.
type SearchAvailabilityArgs struct {
	Start time.Time `json:"start" description:"Start of the search range (RFC 3339)."`
	End   time.Time `json:"end" description:"End of the search range (RFC 3339)."`
}

// ChangeEventTimeArgs are the arguments of change_event_time.
type ChangeEventTimeArgs struct {
	EventID string    `json:"event_id" description:"Google Calendar id of the event."`
	Start   time.Time `json:"start" description:"New start time (RFC 3339)."`
	End     time.Time `json:"end" description:"New end time (RFC 3339)."`
}

// CancelEventArgs are the arguments of cancel_event.
type CancelEventArgs struct {
	EventID string `json:"event_id" description:"Google Calendar id of the event."`
}

// ChangeTaskTimeArgs are the arguments of change_task_time.
type ChangeTaskTimeArgs struct {
	TaskID string    `json:"task_id" description:"Google Tasks id of the task."`
	Due    time.Time `json:"due" description:"New due time (RFC 3339)."`
}

// CancelTaskArgs are the arguments of cancel_task.
type CancelTaskArgs struct {
	TaskID string `json:"task_id" description:"Google Tasks id of the task."`
}

// CreateEventArgs are the arguments of create_event.
type CreateEventArgs struct {
	Summary     string              `json:"summary" description:"Title of the event."`
	Start       time.Time           `json:"start" description:"Start time (RFC 3339)."`
	End         time.Time           `json:"end" description:"End time (RFC 3339)."`
	Description string              `json:"description,omitempty" description:"Longer description of the event."`
	Location    string              `json:"location,omitempty" description:"Where the event takes place."`
	Attendees   []string            `json:"attendees,omitempty" description:"E-mail addresses of the attendees."`
	Reminders   []calendar.Reminder `json:"reminders,omitempty" description:"Reminders replacing the calendar defaults."`
	Recurrence  []string            `json:"recurrence,omitempty" description:"RRULE, EXRULE, RDATE or EXDATE lines."`
}

// Spec converts the arguments into a store request.
func (a CreateEventArgs) Spec() calendar.EventSpec {
	return calendar.EventSpec{
		Summary:     a.Summary,
		Description: a.Description,
		Location:    a.Location,
		Start:       a.Start,
		End:         a.End,
		Attendees:   a.Attendees,
		Reminders:   a.Reminders,
		Recurrence:  a.Recurrence,
	}
}

// CreateTaskArgs are the arguments of create_task.
type CreateTaskArgs struct {
	Title  string     `json:"title" description:"Title of the task."`
	Due    *time.Time `json:"due,omitempty" description:"Due time (RFC 3339)."`
	Notes  string     `json:"notes,omitempty" description:"Notes describing the task."`
	Status string     `json:"status,omitempty" enum:"needsAction,completed" description:"Status of the task."`
	Parent string     `json:"parent,omitempty" description:"Id of the parent task."`
	Links  []string   `json:"links,omitempty" description:"Related URLs."`
}

// Spec converts the arguments into a store request.
func (a CreateTaskArgs) Spec() calendar.TaskSpec {
	return calendar.TaskSpec{
		Title:  a.Title,
		Notes:  a.Notes,
		Status: a.Status,
		Parent: a.Parent,
		Due:    a.Due,
		Links:  a.Links,
	}
}

// Tools returns the calendar agent's domain tools over store. Each tool
// calls exactly one store operation and reports it in an envelope.
func Tools(store calendar.Store) []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionTool(SearchAvailabilityToolName,
			"Check the user's availability. Returns the events and open tasks between start and end; each event has an id, a summary and its start and end.",
			func(tc *core.ToolContext, args SearchAvailabilityArgs) (any, error) {
				items, err := store.ListEventsAndTasks(tc.Context(), args.Start, args.End)
				if err != nil {
					return tool.Failure("failed to search availability", err), nil
				}
				return tool.Success("found events and tasks", "events", items.Events, "tasks", items.Tasks), nil
			}),

		tool.NewFunctionTool(ChangeEventTimeToolName,
			"Reschedule an event."+idHint,
			func(tc *core.ToolContext, args ChangeEventTimeArgs) (any, error) {
				if err := store.RescheduleEvent(tc.Context(), args.EventID, args.Start, args.End); err != nil {
					return tool.Failure("failed to reschedule event", err), nil
				}
				return tool.Success("rescheduled event", "id_of_event_rescheduled", args.EventID), nil
			}),

		tool.NewFunctionTool(CancelEventToolName,
			"Delete an event."+idHint,
			func(tc *core.ToolContext, args CancelEventArgs) (any, error) {
				if err := store.DeleteEvent(tc.Context(), args.EventID); err != nil {
					return tool.Failure("failed to remove event", err), nil
				}
				return tool.Success("removed event", "id_of_event_removed", args.EventID), nil
			}),

		tool.NewFunctionTool(ChangeTaskTimeToolName,
			"Change the due time of a task."+idHint,
			func(tc *core.ToolContext, args ChangeTaskTimeArgs) (any, error) {
				if err := store.RescheduleTask(tc.Context(), args.TaskID, args.Due); err != nil {
					return tool.Failure("failed to reschedule task", err), nil
				}
				return tool.Success("rescheduled task", "id_of_task_rescheduled", args.TaskID), nil
			}),

		tool.NewFunctionTool(CancelTaskToolName,
			"Delete a task."+idHint,
			func(tc *core.ToolContext, args CancelTaskArgs) (any, error) {
				if err := store.DeleteTask(tc.Context(), args.TaskID); err != nil {
					return tool.Failure("failed to remove task", err), nil
				}
				return tool.Success("removed task", "id_of_task_removed", args.TaskID), nil
			}),

		tool.NewFunctionTool(CreateEventToolName,
			"Create a calendar event. Check availability first.",
			func(tc *core.ToolContext, args CreateEventArgs) (any, error) {
				id, err := store.CreateEvent(tc.Context(), args.Spec())
				if err != nil {
					return tool.Failure("failed to create event", err), nil
				}
				return tool.Success("created event", "id_of_event_created", id), nil
			}),

		tool.NewFunctionTool(CreateTaskToolName,
			"Create a task. Check availability first.",
			func(tc *core.ToolContext, args CreateTaskArgs) (any, error) {
				id, err := store.CreateTask(tc.Context(), args.Spec())
				if err != nil {
					return tool.Failure("failed to create task", err), nil
				}
				return tool.Success("created task", "id_of_task_created", id), nil
			}),
	}
}
