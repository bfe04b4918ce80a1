package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfigFile writes a config file into a temp dir and returns its
// path. The root directory is created so validation passes.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func minimalConfig(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	return "server:\n  root: " + root + "\n"
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, minimalConfig(t))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format text, got %q", cfg.Logging.Format)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.RateLimit != 10 {
		t.Errorf("expected default rate limit 10, got %d", cfg.Server.RateLimit)
	}
	if cfg.Server.RateWindow != time.Second {
		t.Errorf("expected default rate window 1s, got %v", cfg.Server.RateWindow)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Counter.Mode != "serialized" {
		t.Errorf("expected default counter mode serialized, got %q", cfg.Counter.Mode)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled by default")
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestLoad_ExplicitRateLimitZeroSurvives(t *testing.T) {
	root := t.TempDir()
	path := writeConfigFile(t, "server:\n  root: "+root+"\n  rate_limit: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// 0 disables rate limiting and must not be replaced by the default
	if cfg.Server.RateLimit != 0 {
		t.Errorf("expected rate limit 0 to be preserved, got %d", cfg.Server.RateLimit)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	// The logging key appears in the file so viper knows it; the env var
	// then takes precedence
	root := t.TempDir()
	path := writeConfigFile(t, "logging:\n  level: INFO\nserver:\n  root: "+root+"\n")

	t.Setenv("FILESERVER_LOGGING_LEVEL", "debug")
	t.Setenv("FILESERVER_SERVER_RATE_LIMIT", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected env-overridden level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Server.RateLimit != 25 {
		t.Errorf("expected env-overridden rate limit 25, got %d", cfg.Server.RateLimit)
	}
}

func TestLoad_MissingRoot(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: INFO\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing server.root")
	}
}

func TestLoad_RootNotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "afile")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeConfigFile(t, "server:\n  root: "+file+"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when root is a file")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	root := t.TempDir()
	path := writeConfigFile(t, "logging:\n  level: verbose\nserver:\n  root: "+root+"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestLoad_InvalidCounterMode(t *testing.T) {
	root := t.TempDir()
	path := writeConfigFile(t, "server:\n  root: "+root+"\ncounter:\n  mode: atomic\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown counter mode")
	}
}

func TestValidate_RateWindow(t *testing.T) {
	cases := []struct {
		name    string
		limit   int
		window  time.Duration
		wantErr bool
	}{
		{"whole seconds ok", 5, 2 * time.Second, false},
		{"sub-second rejected", 5, 500 * time.Millisecond, true},
		{"fractional rejected", 5, 1500 * time.Millisecond, true},
		{"ignored when disabled", 0, 250 * time.Millisecond, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Server.Root = t.TempDir()
			cfg.Server.RateLimit = tc.limit
			cfg.Server.RateWindow = tc.window

			err := Validate(cfg)
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_MIMETable(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Root = t.TempDir()
	cfg.MIME.Types = map[string]string{"html": "text/html"}

	if err := Validate(cfg); err == nil {
		t.Error("expected error for extension without leading dot")
	}

	cfg.MIME.Types = map[string]string{".svg": ""}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for empty content type")
	}

	cfg.MIME.Types = map[string]string{".svg": "image/svg+xml"}
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error for valid table: %v", err)
	}
}
