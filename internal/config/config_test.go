package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
listen:
  port: 9090
model:
  base_url: https://llm.example.com/v1
  name: gpt-4o-mini
  temperature: 0.2
memory:
  redis:
    addr: cache.example.com:6379
  qdrant:
    host: vectors.example.com
    collection: fitness_memory
  short_term:
    window: 12
    ttl: 12h
  long_term:
    top_k: 5
    min_score: 0.65
agent:
  max_rounds: 4
  turn_timeout: 45s
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Listen.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.Model.BaseURL != "https://llm.example.com/v1" {
		t.Errorf("model base url = %q", cfg.Model.BaseURL)
	}
	if cfg.Memory.ShortTerm.Window != 12 {
		t.Errorf("short-term window = %d, want 12", cfg.Memory.ShortTerm.Window)
	}
	if cfg.Memory.ShortTerm.TTL.Std() != 12*time.Hour {
		t.Errorf("short-term ttl = %v, want 12h", cfg.Memory.ShortTerm.TTL)
	}
	if cfg.Memory.LongTerm.TopK != 5 {
		t.Errorf("top_k = %d, want 5", cfg.Memory.LongTerm.TopK)
	}
	if cfg.Memory.LongTerm.MinScore != 0.65 {
		t.Errorf("min_score = %v, want 0.65", cfg.Memory.LongTerm.MinScore)
	}
	if cfg.Agent.TurnTimeout.Std() != 45*time.Second {
		t.Errorf("turn_timeout = %v, want 45s", cfg.Agent.TurnTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}

	// Fields absent from the file keep their defaults.
	if cfg.Gateway.BreakerThreshold != 5 {
		t.Errorf("breaker_threshold = %d, want default 5", cfg.Gateway.BreakerThreshold)
	}
	if cfg.Memory.ContextBudget != 2048 {
		t.Errorf("context_budget = %d, want default 2048", cfg.Memory.ContextBudget)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("COACH_TEST_API_KEY", "sk-sekrit")
	content := "model:\n  api_key: ${COACH_TEST_API_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.APIKey != "sk-sekrit" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Model.APIKey)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := "memory:\n  short_term:\n    ttl: yesterday\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	_, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLogLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
