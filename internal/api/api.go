package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kalambet/recap/internal/memory"
	"github.com/kalambet/recap/internal/metrics"
	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/storage"
)

const maxRequestBodySize = 10 << 20 // 10MB

// Summarizer runs one extraction against a thread.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, threadID string, useContext bool) pipeline.Result
}

// TranscriptFetcher downloads the text of a transcript_url.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Deps struct {
	Summarizer Summarizer
	Memory     *memory.Store
	Store      *storage.Store
	Metrics    *metrics.Aggregator
	Token      string
	// UserID owns the sessions created through this server.
	UserID string

	// Schedule is optional; calendar and task routes answer 503 without it.
	Schedule schedule.Backend
	// Syncer is optional; when set /analyze materializes action items.
	Syncer      *schedule.Syncer
	SyncOptions schedule.Options
	Location    *time.Location

	// Fetcher is optional; when nil transcript_url is rejected.
	Fetcher TranscriptFetcher
}

// NewHandler returns the recap REST API. Everything except /health
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.UserID == "" {
		deps.UserID = "default"
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/api/summarize", handleSummarize(deps))

		r.Post("/api/session/create", handleCreateSession(deps))
		r.Get("/api/session/{id}", handleGetSession(deps))
		r.Get("/api/session/{id}/history", handleSessionHistory(deps))
		r.Delete("/api/session/{id}", handleDeleteSession(deps))
		r.Get("/api/sessions", handleListSessions(deps))

		r.Get("/api/metrics", handleMetrics(deps))
		r.Get("/api/threads", handleListThreads(deps))
		r.Get("/api/threads/{id}", handleThreadSummary(deps))
		r.Get("/api/threads/{id}/digest", handleThreadDigest(deps))
		r.Get("/api/threads/{id}/history", handleThreadHistory(deps))
		r.Delete("/api/threads/{id}", handleResetThread(deps))
		r.Get("/api/meetings", handleListMeetings(deps))

		r.Post("/api/calendar/events", handleCreateEvent(deps))
		r.Get("/api/calendar/events", handleListEvents(deps))
		r.Delete("/api/calendar/events/{id}", handleDeleteEvent(deps))
		r.Post("/api/tasks", handleCreateTask(deps))
		r.Get("/api/tasks", handleListTasks(deps))
		r.Patch("/api/tasks/{id}", handleUpdateTask(deps))
		r.Post("/api/tasks/{id}/complete", handleCompleteTask(deps))
		r.Delete("/api/tasks/{id}", handleDeleteTask(deps))

		r.Post("/api/jobs", handleEnqueueJob(deps))
		r.Get("/api/jobs/{id}", handleGetJob(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"user_id":   deps.UserID,
		})
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeBody reads a JSON body into v and validates it. An empty body
// decodes as an empty object. It writes the error response and returns
// false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return fe.Field() + " is required"
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with %s", fe.Field(), strings.ToLower(fe.Param()))
	case "datetime":
		return fmt.Sprintf("%s must be formatted as %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url", "http_url":
		return fe.Field() + " must be a valid URL"
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
