package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/storage"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	l := NewLocal(s, time.UTC)
	l.now = func() time.Time { return refNow }
	return l
}

func TestLocal_EventLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	start := time.Date(2025, time.March, 20, 14, 0, 0, 0, time.UTC)
	ev, err := l.CreateEvent(ctx, EventInput{
		Title:     "Design review",
		Start:     start,
		Attendees: []string{"alice@example.com", "Bob", "carol@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if !ev.End.Equal(start.Add(time.Hour)) {
		t.Errorf("End = %v, want start+1h", ev.End)
	}
	if len(ev.Attendees) != 2 {
		t.Errorf("Attendees = %v, want addresses only", ev.Attendees)
	}
	if _, err := l.CreateEvent(ctx, EventInput{Title: "Other day", Start: start.AddDate(0, 0, 1)}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	byDate, err := l.ListEvents(ctx, EventFilter{Date: "2025-03-20"})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(byDate) != 1 || byDate[0].Title != "Design review" {
		t.Errorf("ListEvents(date) = %+v", byDate)
	}
	byAttendee, _ := l.ListEvents(ctx, EventFilter{Attendee: "CAROL"})
	if len(byAttendee) != 1 {
		t.Errorf("ListEvents(attendee) returned %d events, want 1", len(byAttendee))
	}
	all, _ := l.ListEvents(ctx, EventFilter{})
	if len(all) != 2 {
		t.Errorf("ListEvents() returned %d events, want 2", len(all))
	}

	if err := l.DeleteEvent(ctx, ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	err = l.DeleteEvent(ctx, ev.ID)
	var serr *Error
	if !errors.As(err, &serr) || !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteEvent err = %v, want schedule.Error wrapping ErrNotFound", err)
	}
}

func TestLocal_TaskLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	a, err := l.CreateTask(ctx, TaskInput{Title: "Write spec", Owner: "Alice", Due: "next friday"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if a.Status != StatusPending {
		t.Errorf("Status = %q, want pending", a.Status)
	}
	if a.Due != "2025-03-14" {
		t.Errorf("Due = %q, want 2025-03-14", a.Due)
	}
	b, _ := l.CreateTask(ctx, TaskInput{Title: "Book room", Owner: "Bob", Due: "at some point"})
	if b.Due != "" {
		t.Errorf("unparseable due kept as %q", b.Due)
	}

	done, err := CompleteTask(ctx, l, a.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if done.Status != StatusCompleted || done.Title != "Write spec" {
		t.Errorf("completed task = %+v", done)
	}

	title := "Book the big room"
	renamed, err := l.UpdateTask(ctx, b.ID, TaskUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if renamed.Title != title || renamed.Status != StatusPending {
		t.Errorf("renamed = %+v", renamed)
	}

	pending, _ := l.ListTasks(ctx, TaskFilter{Status: StatusPending})
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Errorf("pending = %+v", pending)
	}
	alice, _ := l.ListTasks(ctx, TaskFilter{Owner: "alice"})
	if len(alice) != 1 || alice[0].ID != a.ID {
		t.Errorf("alice = %+v", alice)
	}

	if _, err := l.UpdateTask(ctx, "missing", TaskUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask(missing) err = %v, want ErrNotFound", err)
	}
	if err := l.DeleteTask(ctx, a.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	all, _ := l.ListTasks(ctx, TaskFilter{})
	if len(all) != 1 {
		t.Errorf("tasks after delete = %d, want 1", len(all))
	}
}
