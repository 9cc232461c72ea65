package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kalambet/recap/internal/transcript"
)

// DefaultQuietPeriod is how long a file must go without writes before it
// is queued.
const DefaultQuietPeriod = 2 * time.Second

// Watcher queues a summarize_transcript job for every transcript written
// under a directory tree. Each file is queued once per burst of writes.
type Watcher struct {
	root      string
	queue     Enqueuer
	syncTasks bool
	quiet     time.Duration
	fs        *fsnotify.Watcher
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingFile
	wg      sync.WaitGroup
}

// NewWatcher watches root and all its subdirectories. Queued jobs carry
// the sync flag. A quiet period <= 0 uses DefaultQuietPeriod.
func NewWatcher(root string, queue Enqueuer, syncTasks bool, quiet time.Duration) (*Watcher, error) {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root:      root,
		queue:     queue,
		syncTasks: syncTasks,
		quiet:     quiet,
		fs:        fw,
		logger:    slog.Default(),
		pending:   make(map[string]*pendingFile),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("add watch path %s: %w", path, err)
		}
		return nil
	})
}

// Run handles file events until ctx is cancelled, then waits for queued
// files to be flushed.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching transcripts", "dir", w.root, "quiet_period", w.quiet)
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			w.wg.Wait()
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(ctx, ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watching new directory failed", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	if !transcript.Supported(ev.Name) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	path := ev.Name
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.quiet)
		return
	}
	p := &pendingFile{}
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.quiet, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == p {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.enqueue(ctx, path)
	})
	w.pending[path] = p
}

type pendingFile struct {
	timer *time.Timer
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	// The run context may already be cancelled while flushing.
	id, err := Enqueue(context.WithoutCancel(ctx), w.queue, Payload{Path: path, Sync: w.syncTasks})
	if err != nil {
		w.logger.Error("queueing transcript failed", "path", path, "error", err)
		return
	}
	w.logger.Info("transcript queued", "path", path, "job_id", id)
}

// stopPending queues every file still waiting out its quiet period.
func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		if !p.timer.Stop() {
			continue
		}
		delete(w.pending, path)
		go func() {
			defer w.wg.Done()
			w.enqueue(context.Background(), path)
		}()
	}
}
