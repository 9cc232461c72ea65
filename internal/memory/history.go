package memory

import (
	"time"
	"unicode/utf8"

	"github.com/kalambet/recap/internal/extract"
)

// Bounds on the per-thread history.
const (
	MaxRecords         = 20
	MaxActionHistory   = 100
	MaxDecisionHistory = 50
	PreviewChars       = 500
)

// ThreadHistory is everything remembered about one thread.
type ThreadHistory struct {
	Records    []Entry           `json:"records" yaml:"records"`
	Persistent PersistentContext `json:"persistent_context" yaml:"persistent_context"`
}

// Entry is one remembered meeting.
type Entry struct {
	Timestamp         time.Time      `json:"timestamp" yaml:"timestamp"`
	Record            extract.Record `json:"record" yaml:"record"`
	TranscriptPreview string         `json:"transcript_preview" yaml:"transcript_preview"`
}

// PersistentContext aggregates facts across every meeting of a thread.
type PersistentContext struct {
	KeyPeople          []string          `json:"key_people" yaml:"key_people"`
	ActionItemsHistory []ActionHistory   `json:"action_items_history" yaml:"action_items_history"`
	DecisionsHistory   []DecisionHistory `json:"decisions_history" yaml:"decisions_history"`
}

type ActionHistory struct {
	Task      string    `json:"task" yaml:"task"`
	Owner     string    `json:"owner,omitempty" yaml:"owner,omitempty"`
	DueDate   string    `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type DecisionHistory struct {
	Decision  string    `json:"decision" yaml:"decision"`
	Owner     string    `json:"owner,omitempty" yaml:"owner,omitempty"`
	Context   string    `json:"context,omitempty" yaml:"context,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Empty reports whether the thread has no remembered meetings.
func (h *ThreadHistory) Empty() bool {
	return len(h.Records) == 0
}

func (h *ThreadHistory) add(now time.Time, rec extract.Record, transcript string) {
	rec = rec.Clone()
	h.Records = append(h.Records, Entry{
		Timestamp:         now,
		Record:            rec,
		TranscriptPreview: preview(transcript, PreviewChars),
	})

	for _, a := range rec.ActionItems {
		h.Persistent.ActionItemsHistory = append(h.Persistent.ActionItemsHistory, ActionHistory{
			Task:      a.Task,
			Owner:     a.Owner,
			DueDate:   a.DueDate,
			Timestamp: now,
		})
	}
	for _, d := range rec.Decisions {
		h.Persistent.DecisionsHistory = append(h.Persistent.DecisionsHistory, DecisionHistory{
			Decision:  d.Decision,
			Owner:     d.Owner,
			Context:   d.Context,
			Timestamp: now,
		})
	}
	for _, a := range rec.ActionItems {
		if a.Owner != "" && !contains(h.Persistent.KeyPeople, a.Owner) {
			h.Persistent.KeyPeople = append(h.Persistent.KeyPeople, a.Owner)
		}
	}

	h.Records = keepLast(h.Records, MaxRecords)
	h.Persistent.ActionItemsHistory = keepLast(h.Persistent.ActionItemsHistory, MaxActionHistory)
	h.Persistent.DecisionsHistory = keepLast(h.Persistent.DecisionsHistory, MaxDecisionHistory)
}

func (h *ThreadHistory) clone() ThreadHistory {
	out := ThreadHistory{
		Records: make([]Entry, len(h.Records)),
		Persistent: PersistentContext{
			KeyPeople:          append([]string{}, h.Persistent.KeyPeople...),
			ActionItemsHistory: append([]ActionHistory{}, h.Persistent.ActionItemsHistory...),
			DecisionsHistory:   append([]DecisionHistory{}, h.Persistent.DecisionsHistory...),
		},
	}
	for i, e := range h.Records {
		e.Record = e.Record.Clone()
		out.Records[i] = e
	}
	return out
}

// keepLast drops the oldest elements so that at most n remain. The result
// never aliases the evicted prefix.
func keepLast[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return append([]T(nil), s[len(s)-n:]...)
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
