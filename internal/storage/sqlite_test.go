package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/extract"
	"github.com/kalambet/recap/internal/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) || len(v1) == 0 {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"thread_histories", "sessions", "session_requests", "meetings", "action_items", "decisions", "extractions", "sync_state", "local_events", "local_tasks", "jobs"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

// --- Thread histories ---

func TestThreadHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.Load(ctx, "tech")
	if err != nil || got != nil {
		t.Fatalf("Load(unknown) = %v, %v; want nil, nil", got, err)
	}

	mem := memory.NewStore(s)
	rec := extract.Record{TLDR: "Ship v2", ActionItems: []extract.ActionItem{{Task: "Tag", Owner: "Bob"}}}
	rec.Normalize()
	if err := mem.Append(ctx, "tech", rec, "Bob: tag it"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := s.Load(ctx, "tech")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Records) != 1 || loaded.Records[0].Record.TLDR != "Ship v2" {
		t.Errorf("loaded = %+v", loaded)
	}
	if !reflect.DeepEqual(loaded.Persistent.KeyPeople, []string{"Bob"}) {
		t.Errorf("KeyPeople = %v", loaded.Persistent.KeyPeople)
	}

	ids, err := s.ListThreads(ctx)
	if err != nil || !reflect.DeepEqual(ids, []string{"tech"}) {
		t.Errorf("ListThreads() = %v, %v", ids, err)
	}
}

func TestThreadHistorySaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.Save(ctx, "t", memory.ThreadHistory{Records: make([]memory.Entry, 3)})
	_ = s.Save(ctx, "t", memory.ThreadHistory{})

	h, err := s.Load(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Records) != 0 {
		t.Errorf("len(Records) = %d, want 0", len(h.Records))
	}
}

// --- Sessions ---

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	sess := Session{ID: "u1_1", UserID: "u1", ThreadID: "team", Metadata: map[string]string{"team": "core"}, CreatedAt: created}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_ = s.AddSessionRequest(ctx, "u1_1", SessionRequest{Success: true, LatencyMs: 120})
	_ = s.AddSessionRequest(ctx, "u1_1", SessionRequest{Success: false, LatencyMs: 30, Error: "boom"})

	got, err := s.GetSession(ctx, "u1_1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Requests != 2 || got.ThreadID != "team" || got.Metadata["team"] != "core" || !got.CreatedAt.Equal(created) {
		t.Errorf("GetSession() = %+v", got)
	}

	reqs, err := s.SessionRequests(ctx, "u1_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 2 || !reqs[0].Success || reqs[1].Error != "boom" {
		t.Errorf("SessionRequests() = %+v", reqs)
	}

	list, _ := s.ListSessions(ctx)
	if len(list) != 1 {
		t.Errorf("len(ListSessions) = %d, want 1", len(list))
	}

	if err := s.DeleteSession(ctx, "u1_1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, "u1_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession after delete err = %v, want ErrNotFound", err)
	}
	if reqs, _ := s.SessionRequests(ctx, "u1_1"); len(reqs) != 0 {
		t.Errorf("requests survived session delete: %v", reqs)
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.DeleteSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --- Meeting log ---

func TestSaveAndListMeetings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, tldr := range []string{"first", "second"} {
		rec := extract.Record{
			TLDR:        tldr,
			Decisions:   []extract.Decision{{Decision: "d"}},
			ActionItems: []extract.ActionItem{{Task: "a", Owner: "Ann"}},
		}
		rec.Normalize()
		if _, err := s.SaveMeeting(ctx, Meeting{ThreadID: "t", Record: rec, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("SaveMeeting: %v", err)
		}
	}
	other := extract.Record{TLDR: "elsewhere"}
	other.Normalize()
	_, _ = s.SaveMeeting(ctx, Meeting{ThreadID: "other", Record: other, CreatedAt: base})

	got, err := s.ListMeetings(ctx, "t", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Record.TLDR != "second" || got[1].Record.TLDR != "first" {
		t.Errorf("ListMeetings() = %+v", got)
	}

	all, _ := s.ListMeetings(ctx, "", 10, 0)
	if len(all) != 3 {
		t.Errorf("len(all meetings) = %d, want 3", len(all))
	}

	var items int
	_ = s.DB().QueryRow(`SELECT COUNT(*) FROM action_items`).Scan(&items)
	if items != 2 {
		t.Errorf("action_items rows = %d, want 2", items)
	}
}

// --- Batch state ---

func TestExtractionsUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	r1 := extract.Record{TLDR: "v1"}
	r2 := extract.Record{TLDR: "v2"}
	_ = s.SaveExtraction(ctx, Extraction{Key: "alice/a.txt", ThreadID: "alice", Record: r1})
	_ = s.SaveExtraction(ctx, Extraction{Key: "alice/a.txt", ThreadID: "alice", Record: r2})
	_ = s.SaveExtraction(ctx, Extraction{Key: "bob/b.txt", ThreadID: "bob", Record: r1})

	got, err := s.ListExtractions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Key != "alice/a.txt" || got[0].Record.TLDR != "v2" {
		t.Errorf("ListExtractions() = %+v", got)
	}
	if got[1].Record.Risks == nil {
		t.Error("extraction record not normalized")
	}
}

func TestReplaceSyncState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.ReplaceSyncState(ctx, []SyncItem{{Kind: SyncTask, ExternalID: "t1"}, {Kind: SyncEvent, ExternalID: "e1"}})
	_ = s.ReplaceSyncState(ctx, []SyncItem{{Kind: SyncTask, ExternalID: "t2"}})

	got, err := s.SyncState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []SyncItem{{Kind: SyncTask, ExternalID: "t2"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("SyncState() = %+v, want %+v", got, want)
	}
}

// --- Local schedule ---

func TestLocalEvents(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	_ = s.SaveLocalEvent(ctx, LocalEvent{ID: "e1", Title: "Standup", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Attendees: []string{"a@x.io"}})
	_ = s.SaveLocalEvent(ctx, LocalEvent{ID: "e2", Title: "Retro", Start: day.Add(33 * time.Hour), End: day.Add(34 * time.Hour)})

	got, err := s.ListLocalEvents(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "e1" || !reflect.DeepEqual(got[0].Attendees, []string{"a@x.io"}) {
		t.Errorf("ListLocalEvents() = %+v", got)
	}

	if err := s.DeleteLocalEvent(ctx, "e1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteLocalEvent(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestLocalTasks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.SaveLocalTask(ctx, LocalTask{ID: "t1", Title: "Write spec", Owner: "Bob", Status: "needsAction"})
	_ = s.SaveLocalTask(ctx, LocalTask{ID: "t2", Title: "Review", Status: "completed"})

	pending, err := s.ListLocalTasks(ctx, "needsAction")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "t1" {
		t.Errorf("pending = %+v", pending)
	}

	task, _ := s.GetLocalTask(ctx, "t1")
	task.Status = "completed"
	if err := s.SaveLocalTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	done, _ := s.ListLocalTasks(ctx, "completed")
	if len(done) != 2 {
		t.Errorf("len(completed) = %d, want 2", len(done))
	}

	if _, err := s.GetLocalTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLocalTask(missing) err = %v", err)
	}
}

// --- Jobs ---

func TestEnqueueAndClaimJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.EnqueueJob(ctx, Job{Type: "summarize_transcript", PayloadJSON: `{"path":"a.txt"}`})
	if err != nil || id == "" {
		t.Fatalf("EnqueueJob() = %q, %v", id, err)
	}

	j, err := s.ClaimNextJob(ctx, []string{"summarize_transcript"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if j == nil || j.ID != id || j.Status != JobRunning || j.MaxAttempts != 3 {
		t.Fatalf("claimed = %+v", j)
	}

	again, err := s.ClaimNextJob(ctx, []string{"summarize_transcript"})
	if err != nil || again != nil {
		t.Errorf("second claim = %+v, %v; want nil", again, err)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, _ = s.EnqueueJob(ctx, Job{Type: "x", PayloadJSON: "{}", RunAfter: time.Now().Add(time.Hour)})
	j, err := s.ClaimNextJob(ctx, []string{"x"})
	if err != nil || j != nil {
		t.Errorf("ClaimNextJob() = %+v, %v; want nil", j, err)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, _ = s.EnqueueJob(ctx, Job{Type: "other", PayloadJSON: "{}"})
	j, _ := s.ClaimNextJob(ctx, []string{"summarize_transcript"})
	if j != nil {
		t.Errorf("claimed job of wrong type: %+v", j)
	}
}

func TestCompleteJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.EnqueueJob(ctx, Job{Type: "x", PayloadJSON: "{}"})
	_, _ = s.ClaimNextJob(ctx, []string{"x"})
	if err := s.CompleteJob(ctx, id, `{"ok":true}`); err != nil {
		t.Fatal(err)
	}
	j, _ := s.GetJob(ctx, id)
	if j.Status != JobCompleted {
		t.Errorf("Status = %q, want completed", j.Status)
	}
	if err := s.CompleteJob(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) err = %v", err)
	}
}

func TestFailJob_BackoffThenFailed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.EnqueueJob(ctx, Job{Type: "x", PayloadJSON: "{}", MaxAttempts: 2})
	_, _ = s.ClaimNextJob(ctx, []string{"x"})

	before := time.Now()
	if err := s.FailJob(ctx, id, "boom"); err != nil {
		t.Fatal(err)
	}
	j, _ := s.GetJob(ctx, id)
	if j.Status != JobPending || j.Attempts != 1 || j.LastError != "boom" {
		t.Errorf("after first failure = %+v", j)
	}
	if !j.RunAfter.After(before) {
		t.Errorf("RunAfter = %v, want after %v", j.RunAfter, before)
	}

	if err := s.FailJob(ctx, id, "boom again"); err != nil {
		t.Fatal(err)
	}
	j, _ = s.GetJob(ctx, id)
	if j.Status != JobFailed || j.Attempts != 2 {
		t.Errorf("after second failure = %+v", j)
	}
}
