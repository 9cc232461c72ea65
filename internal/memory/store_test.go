package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/extract"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

// flakyStore fails Save while failSave is set.
type flakyStore struct {
	*MapStore
	mu       sync.Mutex
	failSave bool
	failLoad bool
	saves    int
}

func (f *flakyStore) Load(ctx context.Context, id string) (*ThreadHistory, error) {
	f.mu.Lock()
	fail := f.failLoad
	f.mu.Unlock()
	if fail {
		return nil, errors.New("disk unavailable")
	}
	return f.MapStore.Load(ctx, id)
}

func (f *flakyStore) Save(ctx context.Context, id string, h ThreadHistory) error {
	f.mu.Lock()
	fail := f.failSave
	f.saves++
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MapStore.Save(ctx, id, h)
}

func record(tldr string, owners ...string) extract.Record {
	r := extract.Record{TLDR: tldr}
	for i, o := range owners {
		r.ActionItems = append(r.ActionItems, extract.ActionItem{Task: fmt.Sprintf("%s task %d", tldr, i+1), Owner: o})
	}
	r.Normalize()
	return r
}

func TestDigest_EmptyThread(t *testing.T) {
	s := NewStore(NewMapStore())
	got, err := s.Digest(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	if got != NoContext {
		t.Errorf("Digest() = %q, want %q", got, NoContext)
	}
	if !IsNoContext(got) {
		t.Error("IsNoContext(sentinel) = false")
	}
}

func TestDigest_Format(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(NewMapStore(), newFakeClock())

	r := extract.Record{
		TLDR:        "Kickoff",
		Decisions:   []extract.Decision{{Decision: "Use Go"}},
		ActionItems: []extract.ActionItem{{Task: "Draft plan", Owner: "Bob"}, {Task: "Book room"}},
	}
	r.Normalize()
	if err := s.Append(ctx, "tech", r, "transcript"); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	got, err := s.Digest(ctx, "tech", 5)
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	want := strings.Join([]string{
		"PREVIOUS 1 MEETINGS CONTEXT:",
		"\nMeeting 1 (2025-03-10):",
		"  Summary: Kickoff",
		"  Key Decisions: 1",
		"  Action Items: 2",
		"\n\nRECENT ACTION ITEMS (2):",
		"  - Draft plan (Owner: Bob)",
		"  - Book room (Owner: N/A)",
		"\n\nKEY PEOPLE INVOLVED:",
		"  Bob",
	}, "\n")
	if got != want {
		t.Errorf("Digest() =\n%s\nwant\n%s", got, want)
	}
}

func TestAppend_KeyPeopleOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())

	if err := s.Append(ctx, "tech", record("First", "Bob"), "T1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "tech", record("Second", "Carol", "Bob"), "T2"); err != nil {
		t.Fatal(err)
	}

	h, err := s.Snapshot(ctx, "tech")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Bob", "Carol"}; !reflect.DeepEqual(h.Persistent.KeyPeople, want) {
		t.Errorf("KeyPeople = %v, want %v", h.Persistent.KeyPeople, want)
	}

	d, _ := s.Digest(ctx, "tech", 5)
	if !strings.Contains(d, "Summary: First") || !strings.Contains(d, "Summary: Second") {
		t.Errorf("Digest() missing meetings:\n%s", d)
	}
}

func TestAppend_RecordsCapFIFO(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())

	for i := 1; i <= MaxRecords+1; i++ {
		if err := s.Append(ctx, "t", record(fmt.Sprintf("call %d", i)), "x"); err != nil {
			t.Fatal(err)
		}
	}

	h, _ := s.Snapshot(ctx, "t")
	if len(h.Records) != MaxRecords {
		t.Fatalf("len(Records) = %d, want %d", len(h.Records), MaxRecords)
	}
	if h.Records[0].Record.TLDR != "call 2" {
		t.Errorf("oldest record = %q, want %q", h.Records[0].Record.TLDR, "call 2")
	}

	d, _ := s.Digest(ctx, "t", MaxRecords)
	if strings.Contains(d, "Summary: call 1\n") {
		t.Errorf("digest still references evicted call 1")
	}
	if !strings.Contains(d, "Meeting 1 (") || !strings.Contains(d, "Summary: call 2") {
		t.Errorf("digest does not start at call 2:\n%s", d)
	}
}

func TestAppend_HistoryCaps(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())

	r := extract.Record{TLDR: "big"}
	for i := 0; i < 30; i++ {
		r.ActionItems = append(r.ActionItems, extract.ActionItem{Task: fmt.Sprintf("a%d", i)})
		r.Decisions = append(r.Decisions, extract.Decision{Decision: fmt.Sprintf("d%d", i)})
	}
	for i := 0; i < 4; i++ {
		if err := s.Append(ctx, "t", r, ""); err != nil {
			t.Fatal(err)
		}
	}

	h, _ := s.Snapshot(ctx, "t")
	if n := len(h.Persistent.ActionItemsHistory); n != MaxActionHistory {
		t.Errorf("len(ActionItemsHistory) = %d, want %d", n, MaxActionHistory)
	}
	if n := len(h.Persistent.DecisionsHistory); n != MaxDecisionHistory {
		t.Errorf("len(DecisionsHistory) = %d, want %d", n, MaxDecisionHistory)
	}
	if last := h.Persistent.ActionItemsHistory[MaxActionHistory-1].Task; last != "a29" {
		t.Errorf("newest action = %q, want a29", last)
	}
}

func TestAppend_TranscriptPreview(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())

	long := strings.Repeat("é", PreviewChars+50)
	if err := s.Append(ctx, "t", record("x"), long); err != nil {
		t.Fatal(err)
	}
	h, _ := s.Snapshot(ctx, "t")
	if got := []rune(h.Records[0].TranscriptPreview); len(got) != PreviewChars {
		t.Errorf("preview length = %d runes, want %d", len(got), PreviewChars)
	}
}

func TestThreadIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())

	for i := 0; i < 3; i++ {
		_ = s.Append(ctx, "A", record(fmt.Sprintf("alpha-%d", i), "Ann"), "")
		_ = s.Append(ctx, "B", record(fmt.Sprintf("beta-%d", i), "Ben"), "")
	}

	da, _ := s.Digest(ctx, "A", 10)
	db, _ := s.Digest(ctx, "B", 10)
	if strings.Contains(da, "beta") || strings.Contains(da, "Ben") {
		t.Errorf("thread A digest leaks thread B:\n%s", da)
	}
	if strings.Contains(db, "alpha") || strings.Contains(db, "Ann") {
		t.Errorf("thread B digest leaks thread A:\n%s", db)
	}
}

func TestDefaultThread(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())
	_ = s.Append(ctx, "", record("anon"), "")

	sum, err := s.Summary(ctx, DefaultThread)
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalMeetings != 1 || sum.ThreadID != DefaultThread {
		t.Errorf("Summary() = %+v, want 1 meeting on %q", sum, DefaultThread)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	backend := NewMapStore()
	s := NewStore(backend)
	_ = s.Append(ctx, "t", record("x", "Bob"), "")

	if err := s.Reset(ctx, "t"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	d, _ := s.Digest(ctx, "t", 5)
	if d != NoContext {
		t.Errorf("Digest() after reset = %q", d)
	}
	persisted, _ := backend.Load(ctx, "t")
	if persisted == nil || !persisted.Empty() || len(persisted.Persistent.KeyPeople) != 0 {
		t.Errorf("persisted history after reset = %+v, want empty", persisted)
	}
}

func TestHistoryReloadedFromBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMapStore()
	_ = NewStore(backend).Append(ctx, "t", record("persisted", "Dana"), "")

	s := NewStore(backend)
	sum, err := s.Summary(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalMeetings != 1 || !reflect.DeepEqual(sum.KeyPeople, []string{"Dana"}) {
		t.Errorf("Summary() = %+v", sum)
	}
}

func TestPersistenceErrorKeepsMemory(t *testing.T) {
	ctx := context.Background()
	backend := &flakyStore{MapStore: NewMapStore(), failSave: true}
	s := NewStore(backend)

	err := s.Append(ctx, "t", record("kept"), "")
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "save" {
		t.Fatalf("Append() error = %v, want save *PersistenceError", err)
	}

	sum, _ := s.Summary(ctx, "t")
	if sum.TotalMeetings != 1 {
		t.Errorf("TotalMeetings = %d, want 1 after failed save", sum.TotalMeetings)
	}

	backend.mu.Lock()
	backend.failSave = false
	backend.mu.Unlock()

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	persisted, _ := backend.MapStore.Load(ctx, "t")
	if persisted == nil || len(persisted.Records) != 1 {
		t.Errorf("persisted after Flush = %+v, want 1 record", persisted)
	}
}

func TestLoadError(t *testing.T) {
	backend := &flakyStore{MapStore: NewMapStore(), failLoad: true}
	s := NewStore(backend)

	err := s.Load(context.Background(), "t")
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "load" {
		t.Fatalf("Load() error = %v, want load *PersistenceError", err)
	}
	if backend.saves != 0 {
		t.Errorf("saves = %d, want 0", backend.saves)
	}
}

func TestConcurrentAppendsSameThread(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())

	const n = 15
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, "shared", record(fmt.Sprintf("m%d", i), fmt.Sprintf("p%d", i)), "")
		}(i)
	}
	wg.Wait()

	h, _ := s.Snapshot(ctx, "shared")
	if len(h.Records) != n {
		t.Errorf("len(Records) = %d, want %d", len(h.Records), n)
	}
	if len(h.Persistent.KeyPeople) != n {
		t.Errorf("len(KeyPeople) = %d, want %d", len(h.Persistent.KeyPeople), n)
	}
}

func TestThreads(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())
	_ = s.Append(ctx, "b", record("x"), "")
	_ = s.Append(ctx, "a", record("y"), "")

	got, err := s.Threads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Threads() = %v, want %v", got, want)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMapStore())
	_ = s.Append(ctx, "t", record("orig", "Bob"), "")

	h, _ := s.Snapshot(ctx, "t")
	h.Records[0].Record.TLDR = "mutated"
	h.Persistent.KeyPeople[0] = "Eve"

	again, _ := s.Snapshot(ctx, "t")
	if again.Records[0].Record.TLDR != "orig" || again.Persistent.KeyPeople[0] != "Bob" {
		t.Errorf("Snapshot() shares state with store: %+v", again)
	}
}
