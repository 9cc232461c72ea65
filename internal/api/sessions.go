package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/recap/internal/storage"
)

type CreateSessionRequest struct {
	ThreadID string            `json:"thread_id"`
	Metadata map[string]string `json:"metadata"`
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		sess := storage.Session{
			ID:        uuid.NewString(),
			UserID:    deps.UserID,
			ThreadID:  req.ThreadID,
			Metadata:  req.Metadata,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.CreateSession(r.Context(), sess); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"session_id": sess.ID,
			"user_id":    sess.UserID,
			"thread_id":  sess.ThreadID,
			"created_at": sess.CreatedAt,
		})
	}
}

func getSession(w http.ResponseWriter, r *http.Request, deps Deps) (storage.Session, bool) {
	sess, err := deps.Store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "session not found")
		return sess, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
		return sess, false
	}
	return sess, true
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := getSession(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleSessionHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := getSession(w, r, deps)
		if !ok {
			return
		}
		reqs, err := deps.Store.SessionRequests(r.Context(), sess.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session history: %v", err)
			return
		}
		if reqs == nil {
			reqs = []storage.SessionRequest{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":     sess.ID,
			"user_id":        sess.UserID,
			"thread_id":      sess.ThreadID,
			"created_at":     sess.CreatedAt,
			"requests":       reqs,
			"total_requests": len(reqs),
		})
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := deps.Store.ListSessions(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		sessions := make([]storage.Session, 0, len(all))
		for _, s := range all {
			if s.UserID == deps.UserID {
				sessions = append(sessions, s)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":        deps.UserID,
			"sessions":       sessions,
			"total_sessions": len(sessions),
		})
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteSession(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
