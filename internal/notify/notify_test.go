package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/extract"
	"github.com/kalambet/recap/internal/pipeline"
)

type message struct {
	subject string
	data    any
}

type fakePublisher struct {
	sent []message
	err  error
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.sent = append(f.sent, message{subject, data})
	return f.err
}

func completed() pipeline.Completed {
	rec := extract.Record{
		TLDR:        "Agreed on Q3 scope.",
		Decisions:   []extract.Decision{{Decision: "Ship v2"}},
		ActionItems: []extract.ActionItem{{Task: "Write plan"}, {Task: "Book demo"}},
		Risks:       []string{"Hiring"},
	}
	rec.Normalize()
	return pipeline.Completed{
		ThreadID:    "product",
		Record:      rec,
		LatencyMs:   840,
		Timestamp:   time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC),
		UsedContext: true,
	}
}

func TestEvent(t *testing.T) {
	ev := Event(completed())
	want := SummaryCompleted{
		ThreadID:    "product",
		Timestamp:   time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC),
		TLDR:        "Agreed on Q3 scope.",
		ActionItems: 2,
		Decisions:   1,
		Risks:       1,
		LatencyMs:   840,
		UsedContext: true,
	}
	if ev != want {
		t.Errorf("Event = %+v, want %+v", ev, want)
	}
}

func TestListener_Publishes(t *testing.T) {
	p := &fakePublisher{}
	Listener(p, "", nil).SummaryCompleted(context.Background(), completed())

	if len(p.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(p.sent))
	}
	if p.sent[0].subject != SubjectSummaryCompleted {
		t.Errorf("subject = %q, want %q", p.sent[0].subject, SubjectSummaryCompleted)
	}
	ev, ok := p.sent[0].data.(SummaryCompleted)
	if !ok || ev.ThreadID != "product" {
		t.Errorf("data = %#v", p.sent[0].data)
	}
}

func TestListener_CustomSubjectAndError(t *testing.T) {
	p := &fakePublisher{err: errors.New("nats: connection closed")}
	// A publish failure must not panic or block.
	Listener(p, "team.events", nil).SummaryCompleted(context.Background(), completed())

	if len(p.sent) != 1 || p.sent[0].subject != "team.events" {
		t.Errorf("sent = %+v", p.sent)
	}
}
