// Package batch runs extraction over a transcript folder tree and replays
// stored extractions into the schedule backend.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/recap/internal/extract"
	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/transcript"
)

const DefaultConcurrency = 4

type Summarizer interface {
	Summarize(ctx context.Context, transcript, threadID string, useContext bool) pipeline.Result
}

type Store interface {
	SaveExtraction(ctx context.Context, e storage.Extraction) error
	ListExtractions(ctx context.Context) ([]storage.Extraction, error)
	SyncState(ctx context.Context) ([]storage.SyncItem, error)
	ReplaceSyncState(ctx context.Context, items []storage.SyncItem) error
}

// Runner executes batch extraction and sync. The syncer may be nil when no
// schedule backend is configured.
type Runner struct {
	sum         Summarizer
	store       Store
	syncer      *schedule.Syncer
	concurrency int
	logger      *slog.Logger
}

func New(sum Summarizer, store Store, syncer *schedule.Syncer, concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sum: sum, store: store, syncer: syncer, concurrency: concurrency, logger: logger}
}

type ExtractOptions struct {
	Dir string
	// User restricts the run to one user folder.
	User string
	// Sync materializes tasks for every successful extraction.
	Sync bool
}

type Failure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

type ExtractReport struct {
	Users        []string  `json:"users"`
	Meetings     int       `json:"meetings"`
	TasksCreated int       `json:"tasks_created"`
	Failures     []Failure `json:"failures,omitempty"`
}

var ErrNoUsers = errors.New("no user folders found")

// Extract summarizes every transcript under opts.Dir. Each user folder is a
// thread: users run in parallel, a user's meetings run in file order so each
// sees the context of the ones before it.
func (r *Runner) Extract(ctx context.Context, opts ExtractOptions) (ExtractReport, error) {
	var rep ExtractReport
	if opts.Sync && r.syncer == nil {
		return rep, errors.New("sync requested but no schedule backend is configured")
	}

	users, err := transcript.Discover(opts.Dir)
	if err != nil {
		return rep, err
	}
	if opts.User != "" {
		var only []transcript.User
		for _, u := range users {
			if u.Name == opts.User {
				only = append(only, u)
			}
		}
		if len(only) == 0 {
			return rep, fmt.Errorf("user %q not found in %s", opts.User, opts.Dir)
		}
		users = only
	}
	if len(users) == 0 {
		return rep, fmt.Errorf("%w in %s", ErrNoUsers, opts.Dir)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, u := range users {
		rep.Users = append(rep.Users, u.Name)
		g.Go(func() error {
			for _, file := range u.Files {
				if err := gctx.Err(); err != nil {
					return err
				}
				key := u.Name + "/" + filepath.Base(file)
				tasks, err := r.extractOne(gctx, u.Name, key, file, opts.Sync)

				mu.Lock()
				if err != nil {
					rep.Failures = append(rep.Failures, Failure{Key: key, Error: err.Error()})
				} else {
					rep.Meetings++
					rep.TasksCreated += tasks
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	r.logger.Info("batch extract complete", "users", len(rep.Users), "meetings", rep.Meetings, "failures", len(rep.Failures))
	return rep, nil
}

func (r *Runner) extractOne(ctx context.Context, user, key, file string, doSync bool) (int, error) {
	text, err := transcript.Load(file)
	if err != nil {
		return 0, err
	}
	res := r.sum.Summarize(pipeline.WithMeetingTitle(ctx, transcript.Title(file)), text, user, true)
	if !res.Success {
		r.logger.Warn("extraction failed", "key", key, "error", res.Error)
		return 0, errors.New(res.Error)
	}
	r.logger.Info("extracted", "key", key, "latency_ms", res.LatencyMs, "used_context", res.UsedContext)

	if err := r.store.SaveExtraction(ctx, storage.Extraction{Key: key, ThreadID: user, Record: *res.Record}); err != nil {
		return 0, fmt.Errorf("saving extraction: %w", err)
	}
	if !doSync {
		return 0, nil
	}
	sr := r.syncer.Materialize(ctx, *res.Record, schedule.Options{})
	return sr.TasksCreated, nil
}

type SyncReport struct {
	Meetings      int      `json:"meetings"`
	DeletedTasks  int      `json:"deleted_tasks"`
	DeletedEvents int      `json:"deleted_events"`
	TasksCreated  int      `json:"tasks_created"`
	EventsCreated int      `json:"events_created"`
	Errors        []string `json:"errors,omitempty"`
}

// Sync replaces whatever the previous sync created with tasks (and
// optionally follow-up events) for every stored extraction.
func (r *Runner) Sync(ctx context.Context, opts schedule.Options) (SyncReport, error) {
	var rep SyncReport
	if r.syncer == nil {
		return rep, errors.New("no schedule backend is configured")
	}
	extractions, err := r.store.ListExtractions(ctx)
	if err != nil {
		return rep, fmt.Errorf("loading extractions: %w", err)
	}
	if len(extractions) == 0 {
		return rep, errors.New("no stored extractions; run extract first")
	}

	if err := r.deletePrevious(ctx, &rep); err != nil {
		return rep, err
	}

	var items []storage.SyncItem
	for _, e := range extractions {
		sr := r.syncer.Materialize(ctx, e.Record, opts)
		rep.Meetings++
		for _, t := range sr.Tasks {
			items = append(items, storage.SyncItem{Kind: storage.SyncTask, ExternalID: t.ID})
		}
		if sr.CalendarEvent != nil {
			items = append(items, storage.SyncItem{Kind: storage.SyncEvent, ExternalID: sr.CalendarEvent.ID})
			rep.EventsCreated++
		}
		rep.TasksCreated += sr.TasksCreated
		for _, msg := range sr.Errors {
			rep.Errors = append(rep.Errors, e.Key+": "+msg)
		}
	}

	if err := r.store.ReplaceSyncState(ctx, items); err != nil {
		return rep, fmt.Errorf("recording sync state: %w", err)
	}
	r.logger.Info("batch sync complete", "meetings", rep.Meetings, "tasks", rep.TasksCreated, "events", rep.EventsCreated)
	return rep, nil
}

func (r *Runner) deletePrevious(ctx context.Context, rep *SyncReport) error {
	prev, err := r.store.SyncState(ctx)
	if err != nil {
		return fmt.Errorf("loading sync state: %w", err)
	}
	if len(prev) == 0 {
		return nil
	}
	backend := r.syncer.Backend()
	for _, it := range prev {
		var err error
		switch it.Kind {
		case storage.SyncTask:
			err = backend.DeleteTask(ctx, it.ExternalID)
			if err == nil {
				rep.DeletedTasks++
			}
		case storage.SyncEvent:
			err = backend.DeleteEvent(ctx, it.ExternalID)
			if err == nil {
				rep.DeletedEvents++
			}
		}
		if err != nil && !errors.Is(err, schedule.ErrNotFound) {
			r.logger.Warn("deleting previously synced item failed", "kind", it.Kind, "id", it.ExternalID, "error", err)
			rep.Errors = append(rep.Errors, err.Error())
		}
	}
	if err := r.store.ReplaceSyncState(ctx, nil); err != nil {
		return fmt.Errorf("clearing sync state: %w", err)
	}
	return nil
}

// Records returns the stored extractions keyed as user/file.
func (r *Runner) Records(ctx context.Context) (map[string]extract.Record, error) {
	all, err := r.store.ListExtractions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]extract.Record, len(all))
	for _, e := range all {
		out[e.Key] = e.Record
	}
	return out, nil
}
