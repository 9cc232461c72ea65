package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key string
	typ keyType
	env string
	// alias is a conventional variable read when env is unset.
	alias   string
	secret  bool
	oneOf   []string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account names the secret in the platform secret store.
func (s keySpec) account() string {
	return strings.ReplaceAll(s.key, ".", "_")
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "RECAP_SERVER_PORT",
		alias: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "RECAP_LOG_LEVEL",
		oneOf: []string{"debug", "info", "warn", "error"},
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "RECAP_LOG_FORMAT",
		oneOf: []string{"text", "json"},
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RECAP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "memory.backend", typ: kString, env: "RECAP_MEMORY_BACKEND",
		oneOf: []string{"sqlite", "postgres", "redis"},
		apply:   func(cfg *Config, v any) { cfg.Memory.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.Backend },
	},
	{
		key: "memory.postgres_url", typ: kString, env: "RECAP_MEMORY_POSTGRES_URL",
		alias: "DATABASE_URL", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Memory.PostgresURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.PostgresURL },
	},
	{
		key: "memory.redis_addr", typ: kString, env: "RECAP_MEMORY_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Memory.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.RedisAddr },
	},
	{
		key: "memory.redis_password", typ: kString, env: "RECAP_MEMORY_REDIS_PASSWORD",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Memory.RedisPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.RedisPassword },
	},
	{
		key: "memory.redis_db", typ: kInt, env: "RECAP_MEMORY_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Memory.RedisDB = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.RedisDB },
	},
	{
		key: "memory.digest_records", typ: kInt, env: "RECAP_MEMORY_DIGEST_RECORDS",
		apply:   func(cfg *Config, v any) { cfg.Memory.DigestRecords = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.DigestRecords },
	},
	{
		key: "engine.backend", typ: kString, env: "RECAP_ENGINE_BACKEND",
		oneOf: []string{"gemini", "openai", "anthropic", "ollama"},
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "engine.timeout", typ: kString, env: "RECAP_ENGINE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Engine.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Timeout },
	},
	{
		key: "gemini.api_key", typ: kString, env: "RECAP_GEMINI_API_KEY",
		alias: "GEMINI_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "RECAP_GEMINI_MODEL",
		alias: "GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "openai.api_key", typ: kString, env: "RECAP_OPENAI_API_KEY",
		alias: "OPENAI_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "RECAP_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "RECAP_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "anthropic.api_key", typ: kString, env: "RECAP_ANTHROPIC_API_KEY",
		alias: "ANTHROPIC_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Anthropic.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.APIKey },
	},
	{
		key: "anthropic.model", typ: kString, env: "RECAP_ANTHROPIC_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.Model },
	},
	{
		key: "anthropic.max_tokens", typ: kInt, env: "RECAP_ANTHROPIC_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Anthropic.MaxTokens },
	},
	{
		key: "ollama.base_url", typ: kString, env: "RECAP_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "RECAP_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "schedule.backend", typ: kString, env: "RECAP_SCHEDULE_BACKEND",
		oneOf: []string{"none", "local", "google"},
		apply:   func(cfg *Config, v any) { cfg.Schedule.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.Backend },
	},
	{
		key: "schedule.credentials_file", typ: kString, env: "RECAP_SCHEDULE_CREDENTIALS_FILE",
		alias: "GOOGLE_CREDENTIALS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Schedule.CredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.CredentialsFile },
	},
	{
		key: "schedule.token_file", typ: kString, env: "RECAP_SCHEDULE_TOKEN_FILE",
		alias: "GOOGLE_TOKEN_PATH",
		apply:   func(cfg *Config, v any) { cfg.Schedule.TokenFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.TokenFile },
	},
	{
		key: "schedule.time_zone", typ: kString, env: "RECAP_SCHEDULE_TIME_ZONE",
		apply:   func(cfg *Config, v any) { cfg.Schedule.TimeZone = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.TimeZone },
	},
	{
		key: "schedule.follow_up_days", typ: kInt, env: "RECAP_SCHEDULE_FOLLOW_UP_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Schedule.FollowUpDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Schedule.FollowUpDays },
	},
	{
		key: "schedule.follow_up_minutes", typ: kInt, env: "RECAP_SCHEDULE_FOLLOW_UP_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Schedule.FollowUpMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Schedule.FollowUpMinutes },
	},
	{
		key: "nats.url", typ: kString, env: "RECAP_NATS_URL",
		alias: "NATS_URL",
		apply:   func(cfg *Config, v any) { cfg.NATS.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.NATS.URL },
	},
	{
		key: "nats.token", typ: kString, env: "RECAP_NATS_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.NATS.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.NATS.Token },
	},
	{
		key: "nats.subject", typ: kString, env: "RECAP_NATS_SUBJECT",
		apply:   func(cfg *Config, v any) { cfg.NATS.Subject = v.(string) },
		extract: func(cfg Config) any { return cfg.NATS.Subject },
	},
	{
		key: "batch.transcript_dir", typ: kString, env: "RECAP_BATCH_TRANSCRIPT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Batch.TranscriptDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Batch.TranscriptDir },
	},
	{
		key: "batch.concurrency", typ: kInt, env: "RECAP_BATCH_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Batch.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.Concurrency },
	},
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func (s keySpec) check(v string) error {
	if len(s.oneOf) > 0 && !slices.Contains(s.oneOf, v) {
		return fmt.Errorf("invalid value %q for %s (want one of %s)", v, s.key, strings.Join(s.oneOf, ", "))
	}
	return nil
}

func applyBackend(cfg *Config, b Settings) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name := s.env
		raw := os.Getenv(name)
		if raw == "" && s.alias != "" {
			name = s.alias
			raw = os.Getenv(name)
		}
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
