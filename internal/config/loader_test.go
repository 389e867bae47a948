package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var pickupVariables = []string{
	"PICKUP_HTTP_PORT",
	"PICKUP_SQLITE_DSN",
	"PICKUP_JWT_SECRET",
	"PICKUP_JWT_ISSUER",
	"PICKUP_TIMEZONE",
	"PICKUP_CREATE_BUFFER",
	"PICKUP_CANCEL_BUFFER",
	"PICKUP_MAX_SERIES_OCCURRENCES",
	"PICKUP_GEOCODER_URL",
	"PICKUP_GEOCODER_USER_AGENT",
	"PICKUP_LOG_LEVEL",
	"PICKUP_ENV_FILE",
}

// clearEnvironment unsets every variable and restores the previous values after the test.
func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, key := range pickupVariables {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnvironment(t)
		const secret = "super-secret"
		t.Setenv("PICKUP_JWT_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLitePath != "pickups.db" {
			t.Fatalf("unexpected default database path: %q", cfg.SQLitePath)
		}
		if cfg.JWTSecret != secret {
			t.Fatalf("expected secret %q, got %q", secret, cfg.JWTSecret)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC, got %v", cfg.Location)
		}
		if cfg.CreateBuffer != time.Hour || cfg.CancelBuffer != 2*time.Hour {
			t.Fatalf("unexpected buffers: create %s cancel %s", cfg.CreateBuffer, cfg.CancelBuffer)
		}
		if cfg.MaxSeriesOccurrences != 52 {
			t.Fatalf("expected 52 series occurrences, got %d", cfg.MaxSeriesOccurrences)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Fatalf("expected info level, got %v", cfg.LogLevel)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnvironment(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: PICKUP_JWT_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("PICKUP_JWT_SECRET", "secret-value")
		t.Setenv("PICKUP_HTTP_PORT", "9090")
		t.Setenv("PICKUP_SQLITE_DSN", "/tmp/pickups.db")
		t.Setenv("PICKUP_TIMEZONE", "Europe/London")
		t.Setenv("PICKUP_CREATE_BUFFER", "90m")
		t.Setenv("PICKUP_CANCEL_BUFFER", "3h")
		t.Setenv("PICKUP_MAX_SERIES_OCCURRENCES", "12")
		t.Setenv("PICKUP_GEOCODER_URL", "http://geocoder.local/")
		t.Setenv("PICKUP_LOG_LEVEL", "debug")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.SQLitePath != "/tmp/pickups.db" {
			t.Fatalf("unexpected database path: %q", cfg.SQLitePath)
		}
		if cfg.Location.String() != "Europe/London" {
			t.Fatalf("unexpected location: %v", cfg.Location)
		}
		if cfg.CreateBuffer != 90*time.Minute || cfg.CancelBuffer != 3*time.Hour {
			t.Fatalf("unexpected buffers: create %s cancel %s", cfg.CreateBuffer, cfg.CancelBuffer)
		}
		if cfg.MaxSeriesOccurrences != 12 {
			t.Fatalf("expected 12 series occurrences, got %d", cfg.MaxSeriesOccurrences)
		}
		if cfg.GeocoderURL != "http://geocoder.local" {
			t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.GeocoderURL)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("expected debug level, got %v", cfg.LogLevel)
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("PICKUP_JWT_SECRET", "secret-value")
		t.Setenv("PICKUP_HTTP_PORT", "not-a-port")
		t.Setenv("PICKUP_TIMEZONE", "Mars/Olympus")
		t.Setenv("PICKUP_CANCEL_BUFFER", "-1h")
		t.Setenv("PICKUP_LOG_LEVEL", "loud")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "environment variables have invalid values: PICKUP_HTTP_PORT, PICKUP_TIMEZONE, PICKUP_CANCEL_BUFFER, PICKUP_LOG_LEVEL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reads values from the env file without overriding the environment", func(t *testing.T) {
		clearEnvironment(t)
		path := filepath.Join(t.TempDir(), "pickups.env")
		content := "PICKUP_JWT_SECRET=from-file\nPICKUP_HTTP_PORT=7070\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv("PICKUP_ENV_FILE", path)
		t.Setenv("PICKUP_HTTP_PORT", "6060")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.JWTSecret != "from-file" {
			t.Fatalf("expected secret from env file, got %q", cfg.JWTSecret)
		}
		if cfg.HTTPPort != 6060 {
			t.Fatalf("expected process environment to win, got %d", cfg.HTTPPort)
		}
	})

	t.Run("fails when an explicit env file is missing", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("PICKUP_JWT_SECRET", "secret-value")
		t.Setenv("PICKUP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

		if _, err := Load(); err == nil {
			t.Fatalf("expected error for a missing explicit env file")
		}
	})
}
