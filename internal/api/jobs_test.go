package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/kalambet/recap/internal/ingest"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/storage"
)

func TestJobs_EnqueueAndGet(t *testing.T) {
	env := setupHandler(t, false)

	w := env.do(t, http.MethodPost, "/api/jobs", `{"transcript":"Ana: ship friday.","thread_id":"launch"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	queued := decode[map[string]string](t, w)
	id := queued["id"]
	if id == "" || queued["status"] != "queued" {
		t.Fatalf("response = %v", queued)
	}

	w = env.do(t, http.MethodGet, "/api/jobs/"+id, "")
	job := decode[JobResponse](t, w)
	if job.Status != storage.JobPending || job.Type != ingest.JobSummarize {
		t.Errorf("job = %+v", job)
	}
	if job.Result != nil {
		t.Errorf("result = %s before processing", job.Result)
	}

	worker := ingest.NewWorker(env.store, env.deps.Summarizer, nil, schedule.Options{}, 0)
	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	w = env.do(t, http.MethodGet, "/api/jobs/"+id, "")
	job = decode[JobResponse](t, w)
	if job.Status != storage.JobCompleted {
		t.Fatalf("status = %q, want completed", job.Status)
	}
	if len(job.Result) == 0 {
		t.Error("completed job has no result")
	}
}

func TestJobs_Validation(t *testing.T) {
	env := setupHandler(t, false)
	for _, body := range []string{`{}`, `{"path":"a.txt","transcript":"text"}`} {
		w := env.do(t, http.MethodPost, "/api/jobs", body)
		expectError(t, w, http.StatusBadRequest, "invalid_request_error")
	}

	w := env.do(t, http.MethodGet, "/api/jobs/missing", "")
	expectError(t, w, http.StatusNotFound, "not_found")
}
