package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const service = "recap"

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Memory    MemoryConfig
	Engine    EngineConfig
	Gemini    GeminiConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Ollama    OllamaConfig
	Schedule  ScheduleConfig
	NATS      NATSConfig
	Batch     BatchConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	DataDir string
}

type MemoryConfig struct {
	Backend       string
	PostgresURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DigestRecords int
}

type EngineConfig struct {
	Backend string
	Timeout string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type ScheduleConfig struct {
	Backend         string
	CredentialsFile string
	TokenFile       string
	TimeZone        string
	FollowUpDays    int
	FollowUpMinutes int
}

type NATSConfig struct {
	URL     string
	Token   string
	Subject string
}

type BatchConfig struct {
	TranscriptDir string
	Concurrency   int
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server:  ServerConfig{Port: 5000},
		Log:     LogConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{DataDir: dataDir},
		Memory: MemoryConfig{
			Backend:       "sqlite",
			RedisAddr:     "localhost:6379",
			DigestRecords: 5,
		},
		Engine:    EngineConfig{Backend: "gemini", Timeout: "120s"},
		Gemini:    GeminiConfig{Model: "gemini-2.0-flash"},
		OpenAI:    OpenAIConfig{Model: "gpt-4o-mini"},
		Anthropic: AnthropicConfig{Model: "claude-3-5-sonnet-latest", MaxTokens: 4096},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
		},
		Schedule: ScheduleConfig{
			Backend:         "local",
			CredentialsFile: "client_secret.json",
			TokenFile:       "token.json",
			TimeZone:        "UTC",
			FollowUpDays:    7,
			FollowUpMinutes: 30,
		},
		NATS:  NATSConfig{Subject: "recap.summary.completed"},
		Batch: BatchConfig{TranscriptDir: "transcripts", Concurrency: 4},
	}
}

// Load reads configuration from the platform-native backend, a .env file
// in the working directory, environment variables, and the platform secret
// store.
//
// On macOS the backend is UserDefaults (domain: com.recap.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/recap/config.yaml
// and secrets fall back to $XDG_DATA_HOME/recap/secrets.yaml.
//
// Environment variables (RECAP_*) override backend values on all platforms.
// Variables already set in the environment win over the .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newPlatformBackend(), NewKeychain())
}

// keychain abstracts secret store reads for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Settings, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := kc.Get(service, s.account()); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// Validate checks that the selected backends have what they need to start.
func (c Config) Validate() error {
	switch c.Engine.Backend {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return missing("gemini.api_key")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return missing("openai.api_key")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return missing("anthropic.api_key")
		}
	case "ollama":
	default:
		return fmt.Errorf("invalid engine.backend %q", c.Engine.Backend)
	}

	switch c.Memory.Backend {
	case "sqlite", "redis":
	case "postgres":
		if c.Memory.PostgresURL == "" {
			return missing("memory.postgres_url")
		}
	default:
		return fmt.Errorf("invalid memory.backend %q", c.Memory.Backend)
	}

	switch c.Schedule.Backend {
	case "none", "local", "google":
	default:
		return fmt.Errorf("invalid schedule.backend %q", c.Schedule.Backend)
	}

	if _, err := c.EngineTimeout(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func missing(key string) error {
	s, _ := lookup(key)
	return fmt.Errorf("missing required config: %s. Set it via environment variable %s, `recap config set %s <value>`%s",
		key, s.env, key, apiKeyHint(s.account()))
}

// EngineTimeout parses engine.timeout. Zero disables the per-call bound.
func (c Config) EngineTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Engine.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid engine.timeout %q: %w", c.Engine.Timeout, err)
	}
	return d, nil
}

// Location resolves schedule.time_zone.
func (c Config) Location() (*time.Location, error) {
	if c.Schedule.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.time_zone %q: %w", c.Schedule.TimeZone, err)
	}
	return loc, nil
}
