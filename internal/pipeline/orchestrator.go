package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/recap/internal/composer"
	"github.com/kalambet/recap/internal/extract"
	"github.com/kalambet/recap/internal/memory"
)

// Generator turns a prompt into raw model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ContextStore is the part of memory.Store the orchestrator needs.
type ContextStore interface {
	Load(ctx context.Context, threadID string) error
	Digest(ctx context.Context, threadID string, maxRecords int) (string, error)
	Append(ctx context.Context, threadID string, rec extract.Record, transcript string) error
}

// LatencyRecorder receives the latency of every successful extraction.
type LatencyRecorder interface {
	Record(latencyMs float64)
}

// Listener is notified after each successful extraction. Listeners must not
// block for long; errors are theirs to log.
type Listener interface {
	SummaryCompleted(ctx context.Context, s Completed)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, s Completed)

func (f ListenerFunc) SummaryCompleted(ctx context.Context, s Completed) { f(ctx, s) }

// Completed describes a successful extraction for listeners.
type Completed struct {
	ThreadID    string
	Record      extract.Record
	Transcript  string
	LatencyMs   float64
	Timestamp   time.Time
	UsedContext bool
}

// GenerationError reports a failed generation backend call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation backend: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrEmptyTranscript is returned for a blank transcript.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Result is the outcome of one Summarize call. Exactly one of Record and
// Error is set.
type Result struct {
	Success     bool            `json:"success"`
	Record      *extract.Record `json:"summary,omitempty"`
	LatencyMs   float64         `json:"latency_ms"`
	Timestamp   time.Time       `json:"timestamp"`
	UsedContext bool            `json:"used_context"`
	ThreadID    string          `json:"thread_id"`
	Error       string          `json:"error,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`

	// Err is the typed failure cause: *GenerationError, *extract.ParseError,
	// *memory.PersistenceError or a context error.
	Err error `json:"-"`
}

// Options tune an Orchestrator.
type Options struct {
	// DigestRecords is the number of past meetings rendered into the prompt.
	DigestRecords int
	// GenerateTimeout bounds a single generation call. Zero means no bound
	// beyond the caller's context.
	GenerateTimeout time.Duration
}

// Orchestrator drives one extraction end to end: digest, prompt,
// generation, parsing, history append and metrics.
type Orchestrator struct {
	gen       Generator
	store     ContextStore
	composer  *composer.Composer
	metrics   LatencyRecorder
	opts      Options
	listeners []Listener
}

// New creates an Orchestrator. metrics may be nil.
func New(gen Generator, store ContextStore, comp *composer.Composer, metrics LatencyRecorder, opts Options) *Orchestrator {
	if opts.DigestRecords <= 0 {
		opts.DigestRecords = memory.DefaultDigestRecords
	}
	if comp == nil {
		comp = composer.New(0)
	}
	return &Orchestrator{
		gen:      gen,
		store:    store,
		composer: comp,
		metrics:  metrics,
		opts:     opts,
	}
}

// AddListener registers l for successful extractions.
func (o *Orchestrator) AddListener(l Listener) {
	o.listeners = append(o.listeners, l)
}

// Summarize extracts a record from transcript within threadID. Generation
// and parse failures abort the call without touching the thread history.
// A failed history save is reported as a warning on a successful result.
func (o *Orchestrator) Summarize(ctx context.Context, transcript, threadID string, useContext bool) Result {
	start := time.Now()
	if threadID == "" {
		threadID = memory.DefaultThread
	}
	res := Result{ThreadID: threadID}

	fail := func(err error) Result {
		res.Success = false
		res.UsedContext = false
		res.Err = err
		res.Error = err.Error()
		res.LatencyMs = since(start)
		res.Timestamp = time.Now().UTC()
		slog.Warn("summarize failed", "thread_id", threadID, "error", err, "latency_ms", res.LatencyMs)
		return res
	}

	if strings.TrimSpace(transcript) == "" {
		return fail(ErrEmptyTranscript)
	}

	if err := o.store.Load(ctx, threadID); err != nil {
		return fail(err)
	}

	digest := ""
	if useContext {
		d, err := o.store.Digest(ctx, threadID, o.opts.DigestRecords)
		if err != nil {
			return fail(err)
		}
		digest = d
		res.UsedContext = !memory.IsNoContext(d)
	}
	usedContext := res.UsedContext

	prompt := o.composer.Compose(transcript, digest, usedContext)

	genCtx := ctx
	if o.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.opts.GenerateTimeout)
		defer cancel()
	}
	raw, err := o.gen.Generate(genCtx, prompt)
	if err != nil {
		return fail(&GenerationError{Err: err})
	}

	rec, err := extract.Parse(raw)
	if err != nil {
		slog.Warn("unparseable model response",
			"thread_id", threadID,
			"response", truncate(raw, 2000),
			"transcript", truncate(transcript, 500),
		)
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("summarize cancelled: %w", err))
	}

	if err := o.store.Append(ctx, threadID, rec, transcript); err != nil {
		var pe *memory.PersistenceError
		if !errors.As(err, &pe) || pe.Op != "save" {
			return fail(err)
		}
		res.Warnings = append(res.Warnings, err.Error())
	}

	res.Success = true
	res.UsedContext = usedContext
	res.Record = &rec
	res.LatencyMs = since(start)
	res.Timestamp = time.Now().UTC()

	if o.metrics != nil {
		o.metrics.Record(res.LatencyMs)
	}

	done := Completed{
		ThreadID:    threadID,
		Record:      rec.Clone(),
		Transcript:  transcript,
		LatencyMs:   res.LatencyMs,
		Timestamp:   res.Timestamp,
		UsedContext: usedContext,
	}
	for _, l := range o.listeners {
		l.SummaryCompleted(context.WithoutCancel(ctx), done)
	}

	slog.Debug("summarize complete",
		"thread_id", threadID,
		"used_context", usedContext,
		"action_items", len(rec.ActionItems),
		"latency_ms", res.LatencyMs,
	)
	return res
}

func since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
