package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/recap/internal/ingest"
	"github.com/kalambet/recap/internal/storage"
)

type EnqueueJobRequest struct {
	Path       string `json:"path" validate:"required_without=Transcript,excluded_with=Transcript"`
	Transcript string `json:"transcript"`
	ThreadID   string `json:"thread_id"`
	Title      string `json:"title"`
	UseContext *bool  `json:"use_context"`
	Sync       bool   `json:"sync"`
}

type JobResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func handleEnqueueJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnqueueJobRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id, err := ingest.Enqueue(r.Context(), deps.Store, ingest.Payload{
			Path:       req.Path,
			Transcript: req.Transcript,
			ThreadID:   req.ThreadID,
			Title:      req.Title,
			UseContext: req.UseContext,
			Sync:       req.Sync,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		resp := JobResponse{
			ID:        j.ID,
			Type:      j.Type,
			Status:    j.Status,
			Attempts:  j.Attempts,
			LastError: j.LastError,
			CreatedAt: j.CreatedAt,
			UpdatedAt: j.UpdatedAt,
		}
		if j.ResultJSON != "" {
			resp.Result = json.RawMessage(j.ResultJSON)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
