//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestYAMLSettings_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := newPlatformBackend()
	if err := s.SetInt("server.port", 4100); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := s.SetString("engine.backend", "ollama"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	data, err := os.ReadFile(configFilePath())
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	if !strings.Contains(string(data), "server:\n    port: 4100") {
		t.Errorf("config file is not sectioned:\n%s", data)
	}

	reloaded := newPlatformBackend()
	if port, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || port != 4100 {
		t.Errorf("GetInt = %d, %v, %v; want 4100", port, ok, err)
	}
	if v, ok, _ := reloaded.GetString("engine.backend"); !ok || v != "ollama" {
		t.Errorf("GetString = %q, %v; want ollama", v, ok)
	}
	if _, ok, _ := reloaded.GetString("engine.timeout"); ok {
		t.Error("unset key reported as present")
	}

	if err := reloaded.Delete("engine.backend"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newPlatformBackend().GetString("engine.backend"); ok {
		t.Error("deleted key still present")
	}
}

func TestYAMLSettings_HandWrittenFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, service), 0o700); err != nil {
		t.Fatal(err)
	}
	body := "memory:\n  backend: redis\n  redis_db: \"3\"\nbatch:\n  concurrency: many\n"
	if err := os.WriteFile(configFilePath(), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s := newPlatformBackend()
	if db, _, err := s.GetInt("memory.redis_db"); err != nil || db != 3 {
		t.Errorf("quoted int = %d, %v; want 3", db, err)
	}
	if _, ok, err := s.GetInt("batch.concurrency"); !ok || err == nil {
		t.Errorf("GetInt(non-number) = %v, %v; want an error", ok, err)
	}
}

func TestSecretsFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(service, "gemini_api_key"); err == nil {
		t.Fatal("expected error before any secret is stored")
	}
	if err := keychainSet(service, "gemini_api_key", "g-123"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}
	if err := keychainSet(service, apiTokenAccount, "tok"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}

	got, err := keychainGet(service, "gemini_api_key")
	if err != nil || string(got) != "g-123" {
		t.Errorf("keychainGet = %q, %v; want g-123", got, err)
	}
	info, err := os.Stat(secretsFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode = %o, want 600", perm)
	}
}
