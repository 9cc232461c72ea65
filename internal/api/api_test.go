package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/recap/internal/composer"
	"github.com/kalambet/recap/internal/memory"
	"github.com/kalambet/recap/internal/metrics"
	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/transcript"
)

const testToken = "test-token-12345"

const launchJSON = "```json\n" + `{"tldr":"Launch moved to Friday.","decisions":[{"decision":"Ship Friday","owner":"Ana"}],"action_items":[{"task":"Draft announcement","owner":"Ben","due_date":"2025-03-14"}],"risks":["QA capacity"]}` + "\n```"

// stubGenerator answers every prompt with the same response.
type stubGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.response, g.err
}

type testEnv struct {
	handler http.Handler
	deps    Deps
	store   *storage.Store
	mem     *memory.Store
	gen     *stubGenerator
}

func setupHandler(t *testing.T, withSchedule bool) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gen := &stubGenerator{response: launchJSON}
	mem := memory.NewStore(store)
	agg := metrics.New()
	orch := pipeline.New(gen, mem, composer.New(0), agg, pipeline.Options{})
	orch.AddListener(pipeline.MeetingLog(store, nil))

	deps := Deps{
		Summarizer: orch,
		Memory:     mem,
		Store:      store,
		Metrics:    agg,
		Token:      testToken,
		UserID:     "alice",
		Fetcher:    transcript.NewFetcher(http.DefaultClient),
		Location:   time.UTC,
	}
	if withSchedule {
		local := schedule.NewLocal(store, time.UTC)
		deps.Schedule = local
		deps.Syncer = schedule.NewSyncer(local, nil)
	}
	return &testEnv{handler: NewHandler(deps), deps: deps, store: store, mem: mem, gen: gen}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, authReq(method, url, body, testToken))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, code int, errType string) errorBody {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, code, w.Body.String())
	}
	body := decode[errorBody](t, w)
	if body.Error.Type != errType {
		t.Errorf("error type = %q, want %q", body.Error.Type, errType)
	}
	return body
}

func TestHealth_NoAuth(t *testing.T) {
	env := setupHandler(t, false)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["status"] != "healthy" || body["user_id"] != "alice" {
		t.Errorf("body = %v", body)
	}
}

func TestAuth_Required(t *testing.T) {
	env := setupHandler(t, false)
	for _, token := range []string{"", "wrong-token"} {
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, authReq(http.MethodGet, "/api/metrics", "", token))
		expectError(t, w, http.StatusUnauthorized, "authentication_error")
	}
}

func TestInvalidJSONBody(t *testing.T) {
	env := setupHandler(t, false)
	w := env.do(t, http.MethodPost, "/api/summarize", "{not json")
	expectError(t, w, http.StatusBadRequest, "invalid_request_error")
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=500", 100},
		{"limit=-1", 20},
		{"limit=abc", 20},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/meetings?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		configured, header string
		want               int
	}{
		{"secret", "Bearer secret", http.StatusNoContent},
		{"secret", "bearer secret", http.StatusNoContent},
		{"secret", "Bearer  secret ", http.StatusNoContent},
		{"secret", "Basic secret", http.StatusUnauthorized},
		{"secret", "Bearer", http.StatusUnauthorized},
		{"secret", "", http.StatusUnauthorized},
		{"", "Bearer ", http.StatusUnauthorized},
		{"", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		BearerAuth(tt.configured)(ok).ServeHTTP(w, r)
		if w.Code != tt.want {
			t.Errorf("token %q, header %q: status = %d, want %d", tt.configured, tt.header, w.Code, tt.want)
		}
	}
}
