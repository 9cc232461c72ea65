package schedule

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/recap/internal/storage"
)

// LocalStore is the persistence the local backend needs; *storage.Store
// implements it.
type LocalStore interface {
	SaveLocalEvent(ctx context.Context, e storage.LocalEvent) error
	ListLocalEvents(ctx context.Context, from, to time.Time) ([]storage.LocalEvent, error)
	DeleteLocalEvent(ctx context.Context, id string) error
	SaveLocalTask(ctx context.Context, t storage.LocalTask) error
	GetLocalTask(ctx context.Context, id string) (storage.LocalTask, error)
	ListLocalTasks(ctx context.Context, status string) ([]storage.LocalTask, error)
	DeleteLocalTask(ctx context.Context, id string) error
}

// Local keeps events and tasks in the embedded database. It needs no
// credentials and is what tests and offline setups use.
type Local struct {
	store LocalStore
	loc   *time.Location
	now   func() time.Time
}

func NewLocal(store LocalStore, loc *time.Location) *Local {
	if loc == nil {
		loc = time.UTC
	}
	return &Local{store: store, loc: loc, now: time.Now}
}

func (l *Local) Name() string { return "local" }

func (l *Local) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		err = ErrNotFound
	}
	return &Error{Backend: l.Name(), Op: op, Err: err}
}

func (l *Local) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	d := in.Duration
	if d <= 0 {
		d = DefaultEventDuration
	}
	e := storage.LocalEvent{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Start:       in.Start,
		End:         in.Start.Add(d),
		TimeZone:    l.loc.String(),
		Attendees:   validAttendees(in.Attendees),
	}
	if err := l.store.SaveLocalEvent(ctx, e); err != nil {
		return Event{}, l.wrap("create event", err)
	}
	return l.event(e), nil
}

func (l *Local) event(e storage.LocalEvent) Event {
	return Event{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Start:       e.Start.In(l.loc),
		End:         e.End.In(l.loc),
		TimeZone:    e.TimeZone,
		Attendees:   e.Attendees,
	}
}

func (l *Local) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	var from, to time.Time
	if f.Date != "" {
		day, err := time.ParseInLocation(dateLayout, f.Date, l.loc)
		if err != nil {
			return nil, l.wrap("list events", err)
		}
		from, to = day, day.AddDate(0, 0, 1)
	}
	rows, err := l.store.ListLocalEvents(ctx, from, to)
	if err != nil {
		return nil, l.wrap("list events", err)
	}
	out := make([]Event, 0, len(rows))
	for _, e := range rows {
		if f.Attendee != "" && !hasAttendee(e.Attendees, f.Attendee) {
			continue
		}
		out = append(out, l.event(e))
	}
	return out, nil
}

func hasAttendee(attendees []string, needle string) bool {
	needle = strings.ToLower(needle)
	for _, a := range attendees {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	return false
}

func (l *Local) DeleteEvent(ctx context.Context, id string) error {
	return l.wrap("delete event", l.store.DeleteLocalEvent(ctx, id))
}

func (l *Local) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	t := storage.LocalTask{
		ID:     uuid.NewString(),
		Title:  in.Title,
		Notes:  in.Notes,
		Owner:  in.Owner,
		Status: string(StatusPending),
	}
	if d, ok := ParseDueDate(in.Due, l.now().In(l.loc)); ok {
		t.Due = d.Format(dateLayout)
	}
	if err := l.store.SaveLocalTask(ctx, t); err != nil {
		return Task{}, l.wrap("create task", err)
	}
	return localTask(t), nil
}

func localTask(t storage.LocalTask) Task {
	return Task{
		ID:      t.ID,
		Title:   t.Title,
		Notes:   t.Notes,
		Owner:   t.Owner,
		Due:     t.Due,
		Status:  TaskStatus(t.Status),
		Updated: t.UpdatedAt,
	}
}

func (l *Local) UpdateTask(ctx context.Context, id string, u TaskUpdate) (Task, error) {
	t, err := l.store.GetLocalTask(ctx, id)
	if err != nil {
		return Task{}, l.wrap("update task", err)
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Status != nil {
		t.Status = string(*u.Status)
	}
	t.UpdatedAt = l.now()
	if err := l.store.SaveLocalTask(ctx, t); err != nil {
		return Task{}, l.wrap("update task", err)
	}
	return localTask(t), nil
}

func (l *Local) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	rows, err := l.store.ListLocalTasks(ctx, string(f.Status))
	if err != nil {
		return nil, l.wrap("list tasks", err)
	}
	out := make([]Task, 0, len(rows))
	for _, t := range rows {
		if f.Owner != "" && !strings.EqualFold(t.Owner, f.Owner) {
			continue
		}
		out = append(out, localTask(t))
	}
	return out, nil
}

func (l *Local) DeleteTask(ctx context.Context, id string) error {
	return l.wrap("delete task", l.store.DeleteLocalTask(ctx, id))
}
