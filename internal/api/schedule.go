package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/recap/internal/schedule"
)

type CreateEventRequest struct {
	Title           string   `json:"title" validate:"required"`
	Date            string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string   `json:"time"`
	Attendees       []string `json:"attendees"`
	Description     string   `json:"description"`
	DurationMinutes int      `json:"duration_minutes" validate:"gte=0"`
}

type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required"`
	Owner       string `json:"owner"`
	DueDate     string `json:"due_date"`
	Description string `json:"description"`
}

type UpdateTaskRequest struct {
	Title  *string `json:"title" validate:"omitempty,min=1"`
	Notes  *string `json:"notes"`
	Status *string `json:"status" validate:"omitempty,oneof=pending completed"`
}

// backend returns the scheduling backend or writes a 503.
func backend(w http.ResponseWriter, deps Deps) (schedule.Backend, bool) {
	if deps.Schedule == nil {
		httpError(w, http.StatusServiceUnavailable, "api_error", "no scheduling backend configured")
		return nil, false
	}
	return deps.Schedule, true
}

func scheduleError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, schedule.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}

func handleCreateEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		var req CreateEventRequest
		if !decodeBody(w, r, &req) {
			return
		}

		start, err := schedule.EventStart(req.Date, req.Time, deps.Location)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		ev, err := b.CreateEvent(r.Context(), schedule.EventInput{
			Title:       req.Title,
			Description: req.Description,
			Start:       start,
			Duration:    time.Duration(req.DurationMinutes) * time.Minute,
			Attendees:   req.Attendees,
		})
		if err != nil {
			scheduleError(w, "event", err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	}
}

func handleListEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		q := r.URL.Query()
		f := schedule.EventFilter{Date: q.Get("date"), Attendee: q.Get("attendee")}
		if f.Date != "" {
			if _, err := time.Parse("2006-01-02", f.Date); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "date must be formatted as 2006-01-02")
				return
			}
		}

		events, err := b.ListEvents(r.Context(), f)
		if err != nil {
			scheduleError(w, "event", err)
			return
		}
		if events == nil {
			events = []schedule.Event{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
	}
}

func handleDeleteEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		if err := b.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
			scheduleError(w, "event", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleCreateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		var req CreateTaskRequest
		if !decodeBody(w, r, &req) {
			return
		}

		t, err := b.CreateTask(r.Context(), schedule.TaskInput{
			Title: req.Title,
			Notes: req.Description,
			Owner: req.Owner,
			Due:   req.DueDate,
		})
		if err != nil {
			scheduleError(w, "task", err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func handleListTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		q := r.URL.Query()
		f := schedule.TaskFilter{Owner: q.Get("owner"), Status: schedule.TaskStatus(q.Get("status"))}
		if f.Status != "" && !f.Status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status must be one of: pending, completed")
			return
		}

		tasks, err := b.ListTasks(r.Context(), f)
		if err != nil {
			scheduleError(w, "task", err)
			return
		}
		if tasks == nil {
			tasks = []schedule.Task{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
	}
}

func handleUpdateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		var req UpdateTaskRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Title == nil && req.Notes == nil && req.Status == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of title, notes or status is required")
			return
		}

		u := schedule.TaskUpdate{Title: req.Title, Notes: req.Notes}
		if req.Status != nil {
			s := schedule.TaskStatus(*req.Status)
			u.Status = &s
		}
		t, err := b.UpdateTask(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			scheduleError(w, "task", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleCompleteTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		t, err := schedule.CompleteTask(r.Context(), b, chi.URLParam(r, "id"))
		if err != nil {
			scheduleError(w, "task", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleDeleteTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := backend(w, deps)
		if !ok {
			return
		}
		if err := b.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
			scheduleError(w, "task", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
