package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_DIR", "RUNNER_CONCURRENCY", "VIDEO_POLL_INTERVAL_SECONDS", "VIDEO_MAX_POLLS", "APP_LOCALE", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, "./data")
	}
	if cfg.RunnerConcurrency != 1 {
		t.Fatalf("RunnerConcurrency = %d, want 1", cfg.RunnerConcurrency)
	}
	if cfg.VideoPollInterval != 10*time.Second {
		t.Fatalf("VideoPollInterval = %s, want 10s", cfg.VideoPollInterval)
	}
	if cfg.VideoMaxPolls != 120 {
		t.Fatalf("VideoMaxPolls = %d, want 120", cfg.VideoMaxPolls)
	}
	if cfg.Locale != "en" {
		t.Fatalf("Locale = %q, want %q", cfg.Locale, "en")
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORSAllowedOrigins mismatch: %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigParsesOverrides(t *testing.T) {
	t.Setenv("RUNNER_CONCURRENCY", "4")
	t.Setenv("APP_LOCALE", "ZH")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RunnerConcurrency != 4 {
		t.Fatalf("RunnerConcurrency = %d, want 4", cfg.RunnerConcurrency)
	}
	if cfg.Locale != "zh" {
		t.Fatalf("Locale = %q, want %q", cfg.Locale, "zh")
	}
	expected := []string{"http://a.test", "http://b.test"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
}

func TestLoadConfigRejectsZeroConcurrency(t *testing.T) {
	t.Setenv("RUNNER_CONCURRENCY", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for RUNNER_CONCURRENCY=0")
	}
}

func TestLoadConfigRejectsUnknownLocale(t *testing.T) {
	t.Setenv("APP_LOCALE", "fr")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported locale")
	}
}

func TestEnsureDataDirs(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	if err := cfg.EnsureDataDirs(); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}
	for _, sub := range []string{"assets/uploads", "assets/generated", "credentials", "tmp"} {
		info, err := os.Stat(filepath.Join(cfg.DataDir, sub))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", sub, err)
		}
	}
	if cfg.DBPath() != filepath.Join(cfg.DataDir, "app.db") {
		t.Fatalf("DBPath = %q", cfg.DBPath())
	}
}
