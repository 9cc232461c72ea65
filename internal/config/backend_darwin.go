//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.recap.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", service)
	}
	return "recap-data"
}

func apiKeyHint(account string) string {
	return fmt.Sprintf(", or macOS Keychain (service: %s, account: %s)", service, account)
}

// defaultsSettings stores config in UserDefaults through the defaults CLI.
// Keys keep their dotted names.
type defaultsSettings struct {
	domain string
}

func newPlatformBackend() Settings {
	return defaultsSettings{domain: defaultsDomain}
}

func (d defaultsSettings) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (d defaultsSettings) GetString(key string) (string, bool, error) {
	s, err := d.run("read", d.domain, key)
	if err != nil {
		// defaults exits 1 for a missing key.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading default %s: %w (%s)", key, err, s)
	}
	return s, true, nil
}

func (d defaultsSettings) GetInt(key string) (int, bool, error) {
	s, ok, err := d.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (d defaultsSettings) write(key, typ, val string) error {
	if out, err := d.run("write", d.domain, key, typ, val); err != nil {
		return fmt.Errorf("writing default %s: %w (%s)", key, err, out)
	}
	return nil
}

func (d defaultsSettings) SetString(key, val string) error {
	return d.write(key, "-string", val)
}

func (d defaultsSettings) SetInt(key string, val int) error {
	return d.write(key, "-int", strconv.Itoa(val))
}

func (d defaultsSettings) Delete(key string) error {
	if _, ok, err := d.GetString(key); err != nil || !ok {
		return err
	}
	if out, err := d.run("delete", d.domain, key); err != nil {
		return fmt.Errorf("deleting default %s: %w (%s)", key, err, out)
	}
	return nil
}
