package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/recap/internal/extract"
	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/storage"
)

const fetchTimeout = 30 * time.Second

type MeetingInfo struct {
	Title string `json:"title"`
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time  string `json:"time"`
}

type SummarizeRequest struct {
	Transcript    string       `json:"transcript" validate:"required_without=TranscriptURL"`
	TranscriptURL string       `json:"transcript_url" validate:"omitempty,http_url"`
	SessionID     string       `json:"session_id"`
	ThreadID      string       `json:"thread_id"`
	UseContext    *bool        `json:"use_context"`
	MeetingInfo   *MeetingInfo `json:"meeting_info"`
}

// AnalyzeResponse is the /analyze body: the extraction plus what was
// created in the scheduling backend.
type AnalyzeResponse struct {
	Success       bool            `json:"success"`
	Summary       *extract.Record `json:"summary"`
	ThreadID      string          `json:"thread_id"`
	UsedContext   bool            `json:"used_context"`
	LatencyMs     float64         `json:"latency_ms"`
	Timestamp     time.Time       `json:"timestamp"`
	Tasks         []schedule.Task `json:"tasks"`
	TasksCreated  int             `json:"tasks_created"`
	CalendarEvent *schedule.Event `json:"calendar_event"`
	Errors        []string        `json:"errors"`
	Warnings      []string        `json:"warnings,omitempty"`
}

func handleSummarize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SummarizeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, ok := summarize(w, r, deps, req)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SummarizeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res, ok := summarize(w, r, deps, req)
		if !ok {
			return
		}

		out := AnalyzeResponse{
			Success:     true,
			Summary:     res.Record,
			ThreadID:    res.ThreadID,
			UsedContext: res.UsedContext,
			LatencyMs:   res.LatencyMs,
			Timestamp:   res.Timestamp,
			Tasks:       []schedule.Task{},
			Errors:      []string{},
			Warnings:    res.Warnings,
		}
		if deps.Syncer != nil {
			opts := deps.SyncOptions
			opts.FollowUp = true
			rep := deps.Syncer.Materialize(r.Context(), *res.Record, opts)
			out.Tasks = rep.Tasks
			out.TasksCreated = rep.TasksCreated
			out.CalendarEvent = rep.CalendarEvent
			out.Errors = append(out.Errors, rep.Errors...)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// summarize resolves the transcript and thread of req, runs the
// extraction and logs the call on the request's session. It writes the
// error response and returns false on failure.
func summarize(w http.ResponseWriter, r *http.Request, deps Deps, req SummarizeRequest) (pipeline.Result, bool) {
	ctx := r.Context()

	var sess *storage.Session
	if req.SessionID != "" {
		s, err := deps.Store.GetSession(ctx, req.SessionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid session_id")
			return pipeline.Result{}, false
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return pipeline.Result{}, false
		}
		sess = &s
	}

	threadID := req.ThreadID
	if threadID == "" && sess != nil {
		threadID = sess.ThreadID
	}

	text := req.Transcript
	if strings.TrimSpace(text) == "" && req.TranscriptURL != "" {
		if deps.Fetcher == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "transcript_url is not supported by this server")
			return pipeline.Result{}, false
		}
		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		var err error
		if text, err = deps.Fetcher.Fetch(fctx, req.TranscriptURL); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to fetch transcript: %v", err)
			return pipeline.Result{}, false
		}
	}

	useContext := true
	if req.UseContext != nil {
		useContext = *req.UseContext
	}
	if req.MeetingInfo != nil && req.MeetingInfo.Title != "" {
		ctx = pipeline.WithMeetingTitle(ctx, req.MeetingInfo.Title)
	}

	res := deps.Summarizer.Summarize(ctx, text, threadID, useContext)

	if sess != nil {
		err := deps.Store.AddSessionRequest(context.WithoutCancel(ctx), sess.ID, storage.SessionRequest{
			Timestamp: res.Timestamp,
			Success:   res.Success,
			LatencyMs: res.LatencyMs,
			Error:     res.Error,
		})
		if err != nil {
			slog.Warn("recording session request failed", "session_id", sess.ID, "error", err)
		}
	}

	if !res.Success {
		if errors.Is(res.Err, pipeline.ErrEmptyTranscript) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", res.Error)
		} else {
			httpError(w, http.StatusInternalServerError, "api_error", "%s", res.Error)
		}
		return res, false
	}
	return res, true
}
