package pipeline

import (
	"context"
	"log/slog"

	"github.com/kalambet/recap/internal/storage"
)

type titleKey struct{}

// WithMeetingTitle attaches a meeting title that the meeting log records
// with the next summary made under ctx.
func WithMeetingTitle(ctx context.Context, title string) context.Context {
	return context.WithValue(ctx, titleKey{}, title)
}

func meetingTitle(ctx context.Context, c Completed) string {
	if t, ok := ctx.Value(titleKey{}).(string); ok && t != "" {
		return t
	}
	r := []rune(c.Record.TLDR)
	if len(r) > 80 {
		r = r[:80]
	}
	return string(r)
}

// MeetingSaver persists the meeting log.
type MeetingSaver interface {
	SaveMeeting(ctx context.Context, m storage.Meeting) (string, error)
}

// MeetingLog returns a Listener that writes every successful summary to the
// meeting log. The log is unbounded and independent of thread histories.
func MeetingLog(s MeetingSaver, logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return ListenerFunc(func(ctx context.Context, c Completed) {
		id, err := s.SaveMeeting(ctx, storage.Meeting{
			ThreadID:  c.ThreadID,
			Title:     meetingTitle(ctx, c),
			Record:    c.Record,
			LatencyMs: c.LatencyMs,
			CreatedAt: c.Timestamp,
		})
		if err != nil {
			logger.Warn("meeting log write failed", "thread_id", c.ThreadID, "error", err)
			return
		}
		logger.Debug("meeting logged", "thread_id", c.ThreadID, "meeting_id", id)
	})
}
