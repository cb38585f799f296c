package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/session-gate/internal/application"
	"github.com/example/session-gate/internal/envelope"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var managedKeys = []string{
	"CONFIG_FILE",
	"HTTP_PORT",
	"DATABASE_PATH",
	"ENCRYPTION_KEY",
	"CREDENTIAL_MODE",
	"ADMIN_TOKEN",
	"STORE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
	"GRANT_SWEEP_INTERVAL",
	"ATTEMPT_RATE",
	"ATTEMPT_BURST",
	"SESSION_MAX_DURATION",
	"SESSION_CRITICAL_THRESHOLD",
	"SESSION_DANGER_THRESHOLD",
	"SESSION_MIN_MESSAGES",
	"SERIES_TIMEZONE",
	"LOG_LEVEL",
	"LOG_FILE",
}

// clearEnv blanks every setting for the duration of the test. Load treats
// empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		t.Setenv(EnvPrefix+key, "")
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPrefix+"ENCRYPTION_KEY", testKey)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.DatabasePath != "sessiongate.db" {
			t.Fatalf("unexpected default database path: %q", cfg.DatabasePath)
		}
		if len(cfg.EncryptionKey) != envelope.KeySize {
			t.Fatalf("expected %d byte key, got %d", envelope.KeySize, len(cfg.EncryptionKey))
		}
		if cfg.CredentialMode != application.CredentialModeHashed {
			t.Fatalf("expected hashed credential mode, got %q", cfg.CredentialMode)
		}
		if cfg.StoreTimeout != application.DefaultStoreTimeout {
			t.Fatalf("expected default store timeout, got %s", cfg.StoreTimeout)
		}
		if cfg.Timer.MaxDuration != 30*time.Minute || cfg.Timer.MinMessages != 5 {
			t.Fatalf("unexpected default timer policy: %+v", cfg.Timer)
		}
		if cfg.SeriesLocation != time.UTC {
			t.Fatalf("expected series to repeat in UTC, got %s", cfg.SeriesLocation)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Fatalf("expected info level, got %s", cfg.LogLevel)
		}
	})

	t.Run("errors when the encryption key is missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when the key is missing")
		}
		if !errors.Is(err, envelope.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
		if !strings.Contains(err.Error(), EnvPrefix+"ENCRYPTION_KEY") {
			t.Fatalf("expected setting name in error, got %q", err.Error())
		}
	})

	t.Run("rejects a malformed key instead of substituting one", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPrefix+"ENCRYPTION_KEY", "abc123")

		_, err := Load()
		var cfgErr *envelope.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected *envelope.ConfigurationError, got %v", err)
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPrefix+"ENCRYPTION_KEY", testKey)
		t.Setenv(EnvPrefix+"HTTP_PORT", "9090")
		t.Setenv(EnvPrefix+"DATABASE_PATH", "/tmp/gate.db")
		t.Setenv(EnvPrefix+"CREDENTIAL_MODE", "encrypted")
		t.Setenv(EnvPrefix+"STORE_TIMEOUT", "750ms")
		t.Setenv(EnvPrefix+"ATTEMPT_RATE", "2.5")
		t.Setenv(EnvPrefix+"ATTEMPT_BURST", "10")
		t.Setenv(EnvPrefix+"SESSION_MAX_DURATION", "45m")
		t.Setenv(EnvPrefix+"SESSION_MIN_MESSAGES", "3")
		t.Setenv(EnvPrefix+"LOG_LEVEL", "debug")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.DatabasePath != "/tmp/gate.db" {
			t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
		}
		if cfg.CredentialMode != application.CredentialModeEncrypted {
			t.Fatalf("expected encrypted mode, got %q", cfg.CredentialMode)
		}
		if cfg.StoreTimeout != 750*time.Millisecond {
			t.Fatalf("expected store timeout 750ms, got %s", cfg.StoreTimeout)
		}
		if cfg.AttemptRate != 2.5 || cfg.AttemptBurst != 10 {
			t.Fatalf("unexpected attempt limits: %v/%d", cfg.AttemptRate, cfg.AttemptBurst)
		}
		if cfg.Timer.MaxDuration != 45*time.Minute || cfg.Timer.MinMessages != 3 {
			t.Fatalf("unexpected timer policy: %+v", cfg.Timer)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("expected debug level, got %s", cfg.LogLevel)
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPrefix+"ENCRYPTION_KEY", testKey)
		t.Setenv(EnvPrefix+"HTTP_PORT", "-1")
		t.Setenv(EnvPrefix+"STORE_TIMEOUT", "soon")
		t.Setenv(EnvPrefix+"CREDENTIAL_MODE", "plain")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "config: settings have invalid values: SESSIONGATE_HTTP_PORT, SESSIONGATE_CREDENTIAL_MODE, SESSIONGATE_STORE_TIMEOUT"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("series timezone must name a location", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPrefix+"ENCRYPTION_KEY", testKey)
		t.Setenv(EnvPrefix+"SERIES_TIMEZONE", "Mars/Olympus")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), EnvPrefix+"SERIES_TIMEZONE") {
			t.Fatalf("expected invalid timezone error, got %v", err)
		}

		t.Setenv(EnvPrefix+"SERIES_TIMEZONE", "UTC")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.SeriesLocation.String() != "UTC" {
			t.Fatalf("unexpected series location %s", cfg.SeriesLocation)
		}
	})

	t.Run("danger threshold may not exceed critical", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPrefix+"ENCRYPTION_KEY", testKey)
		t.Setenv(EnvPrefix+"SESSION_DANGER_THRESHOLD", "2m")

		if _, err := Load(); err == nil {
			t.Fatalf("expected error when danger threshold exceeds critical threshold")
		}
	})
}

func TestLoader_ConfigFile(t *testing.T) {

	writeFile := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "sessiongate.toml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config file: %v", err)
		}
		return path
	}

	t.Run("file supplies values the environment leaves unset", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, strings.Join([]string{
			`encryption_key = "` + testKey + `"`,
			`http_port = 7070`,
			`attempt_rate = 0.5`,
			`store_timeout = "2s"`,
		}, "\n"))
		t.Setenv(ConfigFileEnv, path)
		t.Setenv(EnvPrefix+"HTTP_PORT", "6060")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 6060 {
			t.Fatalf("expected environment to override file port, got %d", cfg.HTTPPort)
		}
		if cfg.AttemptRate != 0.5 {
			t.Fatalf("expected attempt rate from file, got %v", cfg.AttemptRate)
		}
		if cfg.StoreTimeout != 2*time.Second {
			t.Fatalf("expected store timeout from file, got %s", cfg.StoreTimeout)
		}
	})

	t.Run("nested tables are rejected", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "[server]\nport = 1\n")
		t.Setenv(ConfigFileEnv, path)

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "server") {
			t.Fatalf("expected unsupported key error, got %v", err)
		}
	})

	t.Run("missing file fails", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "absent.toml"))

		if _, err := Load(); err == nil {
			t.Fatalf("expected error for missing config file")
		}
	})
}
