package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/kalambet/recap/internal/composer"
	"github.com/kalambet/recap/internal/config"
	"github.com/kalambet/recap/internal/engine"
	"github.com/kalambet/recap/internal/memory"
	"github.com/kalambet/recap/internal/metrics"
	"github.com/kalambet/recap/internal/notify"
	"github.com/kalambet/recap/internal/pgstore"
	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/redisstore"
	"github.com/kalambet/recap/internal/schedule"
	"github.com/kalambet/recap/internal/storage"
	"github.com/kalambet/recap/internal/transcript"
)

// app is the service graph shared by serve and the in-process commands.
type app struct {
	cfg      config.Config
	gen      engine.Generator
	store    *storage.Store
	memory   *memory.Store
	metrics  *metrics.Aggregator
	orch     *pipeline.Orchestrator
	schedule schedule.Backend
	syncer   *schedule.Syncer
	syncOpts schedule.Options
	fetcher  *transcript.Fetcher
	loc      *time.Location

	closers []func()
}

// loadConfig loads and validates the configuration and installs logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	setupLogging(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.loc = loc

	timeout, err := cfg.EngineTimeout()
	if err != nil {
		return nil, err
	}

	a.store, err = storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.onClose(func() {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	})

	backend, err := a.historyBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.memory = memory.NewStore(backend)

	a.gen, err = engine.New(ctx, engine.Config{
		Backend: cfg.Engine.Backend,
		Timeout: timeout,
		Gemini:  engine.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model},
		OpenAI: engine.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		},
		Anthropic: engine.AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		},
		Ollama: engine.OllamaConfig{BaseURL: cfg.Ollama.BaseURL, Model: cfg.Ollama.Model},
	})
	if err != nil {
		return nil, fmt.Errorf("creating generation backend: %w", err)
	}
	if err := engine.Prepare(ctx, a.gen, os.Stderr); err != nil {
		return nil, err
	}
	slog.Info("generation backend ready", "engine", a.gen.Describe())

	a.orch = pipeline.New(a.gen, a.memory, composer.New(0), a.metrics, pipeline.Options{
		DigestRecords:   cfg.Memory.DigestRecords,
		GenerateTimeout: timeout,
	})
	a.orch.AddListener(pipeline.MeetingLog(a.store, slog.Default()))

	if cfg.NATS.URL != "" {
		nc, err := notify.NewClient(cfg.NATS.URL, cfg.NATS.Token, slog.Default())
		if err != nil {
			return nil, err
		}
		a.onClose(nc.Close)
		a.orch.AddListener(notify.Listener(nc, cfg.NATS.Subject, slog.Default()))
		slog.Info("publishing summary events", "subject", cfg.NATS.Subject)
	}

	if err := a.scheduleBackend(ctx); err != nil {
		return nil, err
	}

	a.fetcher = transcript.NewFetcher(&http.Client{Timeout: 30 * time.Second})

	ok = true
	return a, nil
}

func (a *app) historyBackend(ctx context.Context) (memory.HistoryStore, error) {
	m := a.cfg.Memory
	switch m.Backend {
	case "postgres":
		pg, err := pgstore.New(ctx, m.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.onClose(pg.Close)
		slog.Info("thread history in postgres")
		return pg, nil
	case "redis":
		rs, err := redisstore.New(ctx, redisstore.Options{Addr: m.RedisAddr, Password: m.RedisPassword, DB: m.RedisDB})
		if err != nil {
			return nil, err
		}
		a.onClose(func() {
			if err := rs.Close(); err != nil {
				slog.Warn("closing redis", "error", err)
			}
		})
		slog.Info("thread history in redis", "addr", m.RedisAddr)
		return rs, nil
	default:
		return a.store, nil
	}
}

func (a *app) scheduleBackend(ctx context.Context) error {
	s := a.cfg.Schedule
	switch s.Backend {
	case "local":
		a.schedule = schedule.NewLocal(a.store, a.loc)
	case "google":
		g, err := schedule.NewGoogle(ctx, schedule.GoogleConfig{
			CredentialsFile: s.CredentialsFile,
			TokenFile:       s.TokenFile,
			Location:        a.loc,
		})
		if err != nil {
			return fmt.Errorf("connecting google schedule: %w", err)
		}
		a.schedule = g
	default:
		return nil
	}
	a.syncer = schedule.NewSyncer(a.schedule, slog.Default())
	a.syncOpts = schedule.Options{
		FollowUp:         true,
		FollowUpDays:     s.FollowUpDays,
		FollowUpDuration: time.Duration(s.FollowUpMinutes) * time.Minute,
	}
	slog.Info("schedule backend ready", "backend", a.schedule.Name())
	return nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close flushes unsaved thread histories and releases every resource in
// reverse order of acquisition.
func (a *app) Close() {
	if a.memory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.memory.Flush(ctx); err != nil {
			slog.Warn("flushing thread history", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
