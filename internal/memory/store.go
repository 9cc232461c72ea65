package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/recap/internal/extract"
)

// DefaultThread is used when a caller does not name a thread.
const DefaultThread = "default"

// DefaultDigestRecords is the number of meetings rendered by Digest when the
// caller passes a non-positive limit.
const DefaultDigestRecords = 5

// HistoryStore persists thread histories. Load returns (nil, nil) for a
// thread that was never saved. Save must replace the stored value atomically.
type HistoryStore interface {
	Load(ctx context.Context, threadID string) (*ThreadHistory, error)
	Save(ctx context.Context, threadID string, h ThreadHistory) error
}

// ThreadLister is implemented by history stores that can enumerate threads.
type ThreadLister interface {
	ListThreads(ctx context.Context) ([]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// PersistenceError reports a failed load or save of a thread history.
// After a failed save the in-memory history still holds the change.
type PersistenceError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s history for thread %q: %v", e.Op, e.ThreadID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store owns every ThreadHistory and is their only mutator. Operations on
// one thread are serialized; different threads proceed independently.
type Store struct {
	backend HistoryStore
	clock   Clock

	mu      sync.Mutex
	threads map[string]*thread
}

type thread struct {
	mu    sync.Mutex
	hist  *ThreadHistory
	dirty bool
}

// NewStore creates a Store persisting through backend.
func NewStore(backend HistoryStore) *Store {
	return NewStoreWithClock(backend, realClock{})
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(backend HistoryStore, clock Clock) *Store {
	return &Store{
		backend: backend,
		clock:   clock,
		threads: make(map[string]*thread),
	}
}

func normalizeID(id string) string {
	if id == "" {
		return DefaultThread
	}
	return id
}

func (s *Store) thread(id string) *thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		t = &thread{}
		s.threads[id] = t
	}
	return t
}

// ensure loads the thread's history on first access. Caller holds t.mu.
func (s *Store) ensure(ctx context.Context, id string, t *thread) error {
	if t.hist != nil {
		return nil
	}
	h, err := s.backend.Load(ctx, id)
	if err != nil {
		return &PersistenceError{Op: "load", ThreadID: id, Err: err}
	}
	if h == nil {
		h = &ThreadHistory{}
	}
	t.hist = h
	return nil
}

// save persists the thread. Caller holds t.mu.
func (s *Store) save(ctx context.Context, id string, t *thread) error {
	if err := s.backend.Save(context.WithoutCancel(ctx), id, t.hist.clone()); err != nil {
		t.dirty = true
		slog.Warn("thread history not persisted", "thread_id", id, "error", err)
		return &PersistenceError{Op: "save", ThreadID: id, Err: err}
	}
	t.dirty = false
	return nil
}

// Load makes sure the thread's history is resident, reading it from the
// backend on first access.
func (s *Store) Load(ctx context.Context, threadID string) error {
	id := normalizeID(threadID)
	t := s.thread(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	return s.ensure(ctx, id, t)
}

// Append records a successful extraction for the thread and saves the
// thread synchronously. A *PersistenceError with Op "save" means the append
// is kept in memory but not yet durable.
func (s *Store) Append(ctx context.Context, threadID string, rec extract.Record, transcript string) error {
	id := normalizeID(threadID)
	t := s.thread(id)
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := s.ensure(ctx, id, t); err != nil {
		return err
	}
	t.hist.add(s.clock.Now(), rec, transcript)
	return s.save(ctx, id, t)
}

// Reset clears all records and persistent context of the thread.
func (s *Store) Reset(ctx context.Context, threadID string) error {
	id := normalizeID(threadID)
	t := s.thread(id)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hist = &ThreadHistory{}
	return s.save(ctx, id, t)
}

// Digest renders the most recent maxRecords meetings of the thread for
// prompt injection, or NoContext when the thread has no history.
func (s *Store) Digest(ctx context.Context, threadID string, maxRecords int) (string, error) {
	id := normalizeID(threadID)
	t := s.thread(id)
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := s.ensure(ctx, id, t); err != nil {
		return "", err
	}
	if maxRecords <= 0 {
		maxRecords = DefaultDigestRecords
	}
	return renderDigest(t.hist, maxRecords), nil
}

// Snapshot returns a deep copy of the thread's history.
func (s *Store) Snapshot(ctx context.Context, threadID string) (ThreadHistory, error) {
	id := normalizeID(threadID)
	t := s.thread(id)
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := s.ensure(ctx, id, t); err != nil {
		return ThreadHistory{}, err
	}
	return t.hist.clone(), nil
}

// Summary describes what is remembered about a thread.
type Summary struct {
	ThreadID          string   `json:"thread_id"`
	TotalMeetings     int      `json:"total_meetings"`
	KeyPeople         []string `json:"key_people"`
	RecentActionItems int      `json:"recent_action_items"`
	RecentDecisions   int      `json:"recent_decisions"`
}

// Summary returns counts over the thread's history.
func (s *Store) Summary(ctx context.Context, threadID string) (Summary, error) {
	h, err := s.Snapshot(ctx, threadID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ThreadID:          normalizeID(threadID),
		TotalMeetings:     len(h.Records),
		KeyPeople:         h.Persistent.KeyPeople,
		RecentActionItems: len(h.Persistent.ActionItemsHistory),
		RecentDecisions:   len(h.Persistent.DecisionsHistory),
	}, nil
}

// Threads lists known thread ids: those seen by this process plus, when the
// backend supports it, those already persisted.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	s.mu.Lock()
	for id, t := range s.threads {
		t.mu.Lock()
		if t.hist != nil && !t.hist.Empty() {
			seen[id] = true
		}
		t.mu.Unlock()
	}
	s.mu.Unlock()

	if l, ok := s.backend.(ThreadLister); ok {
		ids, err := l.ListThreads(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing threads: %w", err)
		}
		for _, id := range ids {
			seen[id] = true
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Flush retries the save of every thread whose last save failed.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		t := s.thread(id)
		t.mu.Lock()
		if t.dirty && t.hist != nil {
			if err := s.save(ctx, id, t); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		t.mu.Unlock()
	}
	return firstErr
}
