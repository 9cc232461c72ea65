// Package schedule materializes extracted action items as tasks and
// follow-up events on a calendar/task backend (Google or a local store).
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

const DefaultEventDuration = time.Hour

type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	// Duration defaults to DefaultEventDuration.
	Duration time.Duration
	// Attendees without an '@' are dropped.
	Attendees []string
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"time_zone,omitempty"`
	Attendees   []string  `json:"attendees"`
	Link        string    `json:"link,omitempty"`
}

type TaskInput struct {
	Title string
	Notes string
	Owner string
	// Due is free text resolved with ParseDueDate; unparseable values are
	// dropped.
	Due string
}

type Task struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Notes   string     `json:"notes,omitempty"`
	Owner   string     `json:"owner,omitempty"`
	Due     string     `json:"due,omitempty"`
	Status  TaskStatus `json:"status"`
	Updated time.Time  `json:"updated"`
}

// TaskUpdate changes only the non-nil fields.
type TaskUpdate struct {
	Title  *string
	Notes  *string
	Status *TaskStatus
}

type EventFilter struct {
	// Date restricts to events starting on that day (YYYY-MM-DD).
	Date string
	// Attendee is a case-insensitive substring of an attendee address.
	Attendee string
}

type TaskFilter struct {
	Owner  string
	Status TaskStatus
}

// Backend is a calendar and task service.
type Backend interface {
	Name() string
	CreateEvent(ctx context.Context, in EventInput) (Event, error)
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
	CreateTask(ctx context.Context, in TaskInput) (Task, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) (Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	DeleteTask(ctx context.Context, id string) error
}

var ErrNotFound = errors.New("not found")

// Error wraps a backend failure with the operation that produced it.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CompleteTask marks a task completed.
func CompleteTask(ctx context.Context, b Backend, id string) (Task, error) {
	s := StatusCompleted
	return b.UpdateTask(ctx, id, TaskUpdate{Status: &s})
}

func validAttendees(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if strings.Contains(a, "@") {
			out = append(out, strings.TrimSpace(a))
		}
	}
	return out
}
