package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/recap/internal/memory"
	"github.com/kalambet/recap/internal/storage"
)

func handleMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Metrics.Snapshot())
	}
}

func handleListThreads(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := deps.Memory.Threads(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list threads: %v", err)
			return
		}
		threads := make([]memory.Summary, 0, len(ids))
		for _, id := range ids {
			s, err := deps.Memory.Summary(r.Context(), id)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load thread %q: %v", id, err)
				return
			}
			threads = append(threads, s)
		}
		writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
	}
}

// Threads are created on first use, so an unknown id reads as an empty
// thread rather than a 404.
func handleThreadSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Memory.Summary(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load thread: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleThreadDigest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		n := parseIntParam(r, "records", memory.DefaultDigestRecords, memory.MaxRecords)
		if n == 0 {
			n = memory.DefaultDigestRecords
		}
		d, err := deps.Memory.Digest(r.Context(), id, n)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render digest: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id":   id,
			"digest":      d,
			"has_context": !memory.IsNoContext(d),
		})
	}
}

func handleThreadHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := deps.Memory.Snapshot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load thread: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func handleResetThread(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Memory.Reset(r.Context(), id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset thread: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "thread_id": id})
	}
}

func handleListMeetings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		meetings, err := deps.Store.ListMeetings(r.Context(), r.URL.Query().Get("thread_id"), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list meetings: %v", err)
			return
		}
		if meetings == nil {
			meetings = []storage.Meeting{}
		}
		writeJSON(w, http.StatusOK, meetings)
	}
}
