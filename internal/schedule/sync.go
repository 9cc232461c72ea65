package schedule

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/recap/internal/extract"
)

const (
	DefaultFollowUpDays     = 7
	DefaultFollowUpDuration = 30 * time.Minute
	followUpTitleRunes      = 50
)

type Options struct {
	// FollowUp schedules a review event when the record has action items.
	FollowUp         bool
	FollowUpDays     int
	FollowUpDuration time.Duration
}

// Report lists what Materialize created. A failed item is recorded in
// Errors and does not stop the others.
type Report struct {
	Tasks         []Task   `json:"tasks"`
	TasksCreated  int      `json:"tasks_created"`
	CalendarEvent *Event   `json:"calendar_event,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// Syncer turns extraction records into tasks and follow-up events.
type Syncer struct {
	backend Backend
	now     func() time.Time
	logger  *slog.Logger
}

func NewSyncer(b Backend, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{backend: b, now: time.Now, logger: logger}
}

func (s *Syncer) Backend() Backend { return s.backend }

// Materialize creates one task per action item and, when requested, a
// follow-up event listing them.
func (s *Syncer) Materialize(ctx context.Context, rec extract.Record, opts Options) Report {
	rep := Report{Tasks: []Task{}}
	tldr := strings.TrimSpace(rec.TLDR)

	for _, a := range rec.ActionItems {
		if strings.TrimSpace(a.Task) == "" {
			continue
		}
		t, err := s.backend.CreateTask(ctx, TaskInput{
			Title: a.Task,
			Owner: a.Owner,
			Notes: "From meeting: " + tldr,
			Due:   a.DueDate,
		})
		if err != nil {
			s.logger.Warn("creating task failed", "backend", s.backend.Name(), "task", a.Task, "error", err)
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		rep.Tasks = append(rep.Tasks, t)
	}
	rep.TasksCreated = len(rep.Tasks)

	if opts.FollowUp && len(rec.ActionItems) > 0 {
		days := opts.FollowUpDays
		if days <= 0 {
			days = DefaultFollowUpDays
		}
		dur := opts.FollowUpDuration
		if dur <= 0 {
			dur = DefaultFollowUpDuration
		}
		ev, err := s.backend.CreateEvent(ctx, EventInput{
			Title:       FollowUpTitle(tldr),
			Description: FollowUpDescription(rec),
			Start:       s.now().AddDate(0, 0, days),
			Duration:    dur,
		})
		if err != nil {
			s.logger.Warn("creating follow-up event failed", "backend", s.backend.Name(), "error", err)
			rep.Errors = append(rep.Errors, err.Error())
		} else {
			rep.CalendarEvent = &ev
		}
	}

	s.logger.Info("materialized record", "backend", s.backend.Name(), "tasks", rep.TasksCreated,
		"follow_up", rep.CalendarEvent != nil, "errors", len(rep.Errors))
	return rep
}

func FollowUpTitle(tldr string) string {
	if tldr == "" {
		tldr = "Meeting"
	}
	r := []rune(tldr)
	if len(r) > followUpTitleRunes {
		r = r[:followUpTitleRunes]
	}
	return "Follow-up: " + string(r)
}

func FollowUpDescription(rec extract.Record) string {
	parts := []string{rec.TLDR, "\n\nAction Items to Review:"}
	for _, a := range rec.ActionItems {
		owner := a.Owner
		if owner == "" {
			owner = "N/A"
		}
		parts = append(parts, "• "+a.Task+" (Owner: "+owner+")")
	}
	return strings.Join(parts, "\n")
}
