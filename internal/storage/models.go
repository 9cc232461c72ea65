package storage

import (
	"errors"
	"time"

	"github.com/kalambet/recap/internal/extract"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	ResultJSON  string
}

// Session groups API requests of one client and binds them to a thread.
type Session struct {
	ID        string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	ThreadID  string            `json:"thread_id"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	Requests  int               `json:"total_requests"`
}

// SessionRequest is one summarize call made through a session.
type SessionRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
}

// Meeting is an entry of the unbounded meeting log.
type Meeting struct {
	ID        string         `json:"id" yaml:"id"`
	ThreadID  string         `json:"thread_id" yaml:"thread_id"`
	Title     string         `json:"title,omitempty" yaml:"title,omitempty"`
	Record    extract.Record `json:"summary" yaml:"summary"`
	LatencyMs float64        `json:"latency_ms" yaml:"latency_ms"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
}

// Extraction is a batch result keyed "user/file".
type Extraction struct {
	Key       string
	ThreadID  string
	Record    extract.Record
	CreatedAt time.Time
}

// Sync state kinds.
const (
	SyncTask  = "task"
	SyncEvent = "event"
)

// SyncItem is an external object created by the last batch sync.
type SyncItem struct {
	Kind       string
	ExternalID string
}

// LocalEvent is a calendar event kept in the local schedule.
type LocalEvent struct {
	ID          string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
	CreatedAt   time.Time
}

// LocalTask is a task kept in the local schedule.
type LocalTask struct {
	ID        string
	Title     string
	Notes     string
	Owner     string
	Due       string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
