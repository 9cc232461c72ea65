package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory Settings.
type mapBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strs[key]
	return v, ok, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *mapBackend) SetString(key, val string) error {
	b.strs[key] = val
	return nil
}

func (b *mapBackend) SetInt(key string, val int) error {
	b.ints[key] = val
	return nil
}

func (b *mapBackend) Delete(key string) error {
	delete(b.strs, key)
	delete(b.ints, key)
	return nil
}

// mockKeychain is a test double for the secret store.
type mockKeychain struct {
	values map[string]string
	setErr error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[service+"/"+account] = value
	return nil
}

// clearEnv unsets every variable the loader reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		if s.alias != "" {
			t.Setenv(s.alias, "")
		}
	}
	t.Setenv("RECAP_API_TOKEN", "")
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend(), &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Engine.Backend != "gemini" {
		t.Errorf("Engine.Backend = %q, want %q", cfg.Engine.Backend, "gemini")
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("Gemini.Model = %q, want %q", cfg.Gemini.Model, "gemini-2.0-flash")
	}
	if cfg.Memory.Backend != "sqlite" {
		t.Errorf("Memory.Backend = %q, want %q", cfg.Memory.Backend, "sqlite")
	}
	if cfg.Memory.DigestRecords != 5 {
		t.Errorf("Memory.DigestRecords = %d, want 5", cfg.Memory.DigestRecords)
	}
	if cfg.Schedule.FollowUpDays != 7 || cfg.Schedule.FollowUpMinutes != 30 {
		t.Errorf("follow-up = %d days / %d min, want 7 / 30", cfg.Schedule.FollowUpDays, cfg.Schedule.FollowUpMinutes)
	}
	if cfg.NATS.Subject != "recap.summary.completed" {
		t.Errorf("NATS.Subject = %q", cfg.NATS.Subject)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strs["engine.backend"] = "ollama"
	b.strs["ollama.model"] = "qwen2.5"
	b.ints["server.port"] = 6000
	b.ints["batch.concurrency"] = 8
	// Secrets are never read from the plain backend.
	b.strs["gemini.api_key"] = "leaked"

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Backend != "ollama" || cfg.Ollama.Model != "qwen2.5" {
		t.Errorf("engine = %q/%q", cfg.Engine.Backend, cfg.Ollama.Model)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Batch.Concurrency != 8 {
		t.Errorf("Batch.Concurrency = %d, want 8", cfg.Batch.Concurrency)
	}
	if cfg.Gemini.APIKey != "" {
		t.Errorf("Gemini.APIKey = %q, want empty", cfg.Gemini.APIKey)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.ints["server.port"] = 6000

	t.Setenv("RECAP_SERVER_PORT", "7000")
	t.Setenv("RECAP_GEMINI_API_KEY", "env-key")
	t.Setenv("GOOGLE_TOKEN_PATH", "/tmp/token.json")
	t.Setenv("RECAP_MEMORY_DIGEST_RECORDS", "not-a-number")

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Gemini.APIKey, "env-key")
	}
	if cfg.Schedule.TokenFile != "/tmp/token.json" {
		t.Errorf("Schedule.TokenFile = %q, want alias value", cfg.Schedule.TokenFile)
	}
	if cfg.Memory.DigestRecords != 5 {
		t.Errorf("Memory.DigestRecords = %d, want default 5 on bad input", cfg.Memory.DigestRecords)
	}
}

func TestPrimaryEnvWinsOverAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "alias-key")
	t.Setenv("RECAP_GEMINI_API_KEY", "primary-key")

	cfg, err := loadWith(newMapBackend(), &mockKeychain{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gemini.APIKey != "primary-key" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Gemini.APIKey, "primary-key")
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	kc := &mockKeychain{values: map[string]string{
		"recap/gemini_api_key": "keychain-secret",
		"recap/nats_token":     "nats-secret",
	}}

	cfg, err := loadWith(newMapBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "keychain-secret" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Gemini.APIKey, "keychain-secret")
	}
	if cfg.NATS.Token != "nats-secret" {
		t.Errorf("NATS.Token = %q, want %q", cfg.NATS.Token, "nats-secret")
	}

	t.Setenv("RECAP_GEMINI_API_KEY", "env-key")
	cfg, _ = loadWith(newMapBackend(), kc)
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env to win over keychain", cfg.Gemini.APIKey)
	}
}

func TestValidate(t *testing.T) {
	base := defaults()
	base.Gemini.APIKey = "k"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing gemini key", func(c *Config) { c.Gemini.APIKey = "" }, "RECAP_GEMINI_API_KEY"},
		{"ollama needs no key", func(c *Config) { c.Gemini.APIKey = ""; c.Engine.Backend = "ollama" }, ""},
		{"missing openai key", func(c *Config) { c.Engine.Backend = "openai" }, "openai.api_key"},
		{"unknown engine", func(c *Config) { c.Engine.Backend = "bard" }, "engine.backend"},
		{"postgres without url", func(c *Config) { c.Memory.Backend = "postgres" }, "memory.postgres_url"},
		{"bad schedule", func(c *Config) { c.Schedule.Backend = "outlook" }, "schedule.backend"},
		{"bad timeout", func(c *Config) { c.Engine.Timeout = "soon" }, "engine.timeout"},
		{"bad zone", func(c *Config) { c.Schedule.TimeZone = "Mars/Olympus" }, "schedule.time_zone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEngineTimeout(t *testing.T) {
	c := defaults()
	d, err := c.EngineTimeout()
	if err != nil || d != 120*time.Second {
		t.Errorf("EngineTimeout() = %v, %v; want 2m0s", d, err)
	}
	c.Engine.Timeout = ""
	if d, _ := c.EngineTimeout(); d != 0 {
		t.Errorf("EngineTimeout(empty) = %v, want 0", d)
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()
	kc := &mockKeychain{}

	if err := setKey(b, kc, "server.port", "8080"); err != nil {
		t.Fatalf("setKey(server.port): %v", err)
	}
	if b.ints["server.port"] != 8080 {
		t.Errorf("server.port = %d, want 8080", b.ints["server.port"])
	}
	if err := setKey(b, kc, "server.port", "eighty"); err == nil {
		t.Error("setKey(server.port, eighty) succeeded, want error")
	}
	if err := setKey(b, kc, "engine.backend", "openai"); err != nil {
		t.Fatalf("setKey(engine.backend): %v", err)
	}
	if b.strs["engine.backend"] != "openai" {
		t.Errorf("engine.backend = %q", b.strs["engine.backend"])
	}
	if err := setKey(b, kc, "engine.backend", "bard"); err == nil {
		t.Error("setKey(engine.backend, bard) succeeded, want error")
	}
	if err := setKey(b, kc, "nope.key", "x"); err == nil {
		t.Error("setKey(unknown) succeeded, want error")
	}

	if err := setKey(b, kc, "openai.api_key", "sk-123"); err != nil {
		t.Fatalf("setKey(openai.api_key): %v", err)
	}
	if _, ok := b.strs["openai.api_key"]; ok {
		t.Error("secret written to the plain backend")
	}
	if got := kc.values["recap/openai_api_key"]; got != "sk-123" {
		t.Errorf("keychain openai_api_key = %q, want %q", got, "sk-123")
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "AIzaSyExampleKey42"

	for _, k := range ShowAll(cfg) {
		switch k.Key {
		case "gemini.api_key":
			if strings.Contains(k.Value, "ExampleKey") {
				t.Errorf("gemini.api_key shown as %q", k.Value)
			}
		case "openai.api_key":
			if k.Value != "(unset)" {
				t.Errorf("openai.api_key = %q, want (unset)", k.Value)
			}
		case "server.port":
			if k.Value != "5000" {
				t.Errorf("server.port = %q, want 5000", k.Value)
			}
		}
	}
}

func TestGetAPIToken(t *testing.T) {
	t.Setenv("RECAP_API_TOKEN", "")
	kc := &mockKeychain{}

	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("token length = %d, want 64", len(tok))
	}
	again, err := GetAPIToken(kc)
	if err != nil {
		t.Fatal(err)
	}
	if again != tok {
		t.Errorf("second call = %q, want stored token %q", again, tok)
	}

	t.Setenv("RECAP_API_TOKEN", "from-env")
	if got, _ := GetAPIToken(kc); got != "from-env" {
		t.Errorf("GetAPIToken = %q, want env override", got)
	}
}

func TestGetAPIToken_StoreFailure(t *testing.T) {
	t.Setenv("RECAP_API_TOKEN", "")
	if _, err := GetAPIToken(&mockKeychain{setErr: errors.New("locked")}); err == nil {
		t.Error("GetAPIToken succeeded with a failing secret store")
	}
}
