package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/transcript"
)

// JobSummarize is the job type for transcript extraction.
const JobSummarize = "summarize_transcript"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id, resultJSON string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Summarizer runs one extraction.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, threadID string, useContext bool) pipeline.Result
}

// Payload is the JSON body of a summarize_transcript job. Exactly one of
// Path and Transcript is set.
type Payload struct {
	Path       string `json:"path,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`
	Title      string `json:"title,omitempty"`
	UseContext *bool  `json:"use_context,omitempty"`
	Sync       bool   `json:"sync,omitempty"`
}

// JobResult is stored on a completed job.
type JobResult struct {
	pipeline.Result
	Sync *schedule.Report `json:"sync,omitempty"`
}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) (string, error)
}

// Enqueue validates p and queues it as a summarize_transcript job.
func Enqueue(ctx context.Context, q Enqueuer, p Payload) (string, error) {
	if (p.Path == "") == (strings.TrimSpace(p.Transcript) == "") {
		return "", errors.New("exactly one of path and transcript is required")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return q.EnqueueJob(ctx, storage.Job{Type: JobSummarize, PayloadJSON: string(b)})
}

// Worker processes summarize_transcript jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	sum      Summarizer
	syncer   *schedule.Syncer
	syncOpts schedule.Options
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. syncer may be nil, in which case the sync flag
// of a job is ignored. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, sum Summarizer, syncer *schedule.Syncer, syncOpts schedule.Options, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		sum:      sum,
		syncer:   syncer,
		syncOpts: syncOpts,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobSummarize})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	res, err := w.processJob(ctx, job)
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	b, err := json.Marshal(res)
	if err != nil {
		return true, fmt.Errorf("encoding result of job %s: %w", job.ID, err)
	}
	if err := w.store.CompleteJob(ctx, job.ID, string(b)); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Info("job completed", "job_id", job.ID, "thread_id", res.ThreadID, "latency_ms", res.LatencyMs)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (JobResult, error) {
	var p Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return JobResult{}, fmt.Errorf("parsing payload: %w", err)
	}

	text := p.Transcript
	if p.Path != "" {
		var err error
		if text, err = transcript.Load(p.Path); err != nil {
			return JobResult{}, err
		}
		if p.ThreadID == "" {
			p.ThreadID = ThreadFor(p.Path)
		}
		if p.Title == "" {
			p.Title = transcript.Title(p.Path)
		}
	}

	useContext := true
	if p.UseContext != nil {
		useContext = *p.UseContext
	}
	if p.Title != "" {
		ctx = pipeline.WithMeetingTitle(ctx, p.Title)
	}

	res := w.sum.Summarize(ctx, text, p.ThreadID, useContext)
	if !res.Success {
		return JobResult{}, fmt.Errorf("summarizing: %s", res.Error)
	}

	out := JobResult{Result: res}
	if p.Sync && w.syncer != nil {
		rep := w.syncer.Materialize(ctx, *res.Record, w.syncOpts)
		out.Sync = &rep
	}
	return out, nil
}

// ThreadFor names the thread of a transcript file after its parent folder.
func ThreadFor(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return dir
}
