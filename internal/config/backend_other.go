//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), service)
}

func apiKeyHint(account string) string {
	return fmt.Sprintf(", or add %s under %s in %s", account, service, secretsFilePath())
}

// xdgDir resolves an XDG base directory, falling back to $HOME/<rel...> and
// then to the working directory.
func xdgDir(env string, rel ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, rel...)...)
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), service, "config.yaml")
}

// yamlSettings keeps config in $XDG_CONFIG_HOME/recap/config.yaml, one
// mapping per section:
//
//	server:
//	  port: 5000
//	engine:
//	  backend: ollama
type yamlSettings struct {
	path     string
	sections map[string]map[string]any
}

func newPlatformBackend() Settings {
	s := &yamlSettings{path: configFilePath(), sections: map[string]map[string]any{}}
	if err := s.load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v. Using default values.\n", err)
	}
	return s
}

func (s *yamlSettings) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &s.sections); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", s.path, err)
	}
	if s.sections == nil {
		s.sections = map[string]map[string]any{}
	}
	return nil
}

func (s *yamlSettings) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(s.sections)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func splitKey(key string) (section, name string) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return "", key
	}
	return section, name
}

func (s *yamlSettings) get(key string) (any, bool) {
	section, name := splitKey(key)
	v, ok := s.sections[section][name]
	return v, ok
}

func (s *yamlSettings) set(key string, v any) error {
	section, name := splitKey(key)
	if s.sections[section] == nil {
		s.sections[section] = map[string]any{}
	}
	s.sections[section][name] = v
	return s.save()
}

func (s *yamlSettings) GetString(key string) (string, bool, error) {
	v, ok := s.get(key)
	if !ok || v == nil {
		return "", false, nil
	}
	if str, isStr := v.(string); isStr {
		return str, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (s *yamlSettings) GetInt(key string) (int, bool, error) {
	v, ok := s.get(key)
	if !ok || v == nil {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid integer for %s: %v", key, v)
	}
}

func (s *yamlSettings) SetString(key, val string) error {
	return s.set(key, val)
}

func (s *yamlSettings) SetInt(key string, val int) error {
	return s.set(key, val)
}

func (s *yamlSettings) Delete(key string) error {
	section, name := splitKey(key)
	if _, ok := s.sections[section][name]; !ok {
		return nil
	}
	delete(s.sections[section], name)
	if len(s.sections[section]) == 0 {
		delete(s.sections, section)
	}
	return s.save()
}
