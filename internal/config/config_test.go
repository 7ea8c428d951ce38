package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Extraction.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Extraction.Provider)
	}
	if cfg.Extraction.BodyLimit != 4000 {
		t.Errorf("expected body_limit 4000, got %d", cfg.Extraction.BodyLimit)
	}
	if cfg.Extraction.RecordLimit != 5000 {
		t.Errorf("expected record_limit 5000, got %d", cfg.Extraction.RecordLimit)
	}
	if cfg.Scan.MaxResults != 50 {
		t.Errorf("expected max_results 50, got %d", cfg.Scan.MaxResults)
	}
	if cfg.Scan.LookbackHours != 24 {
		t.Errorf("expected lookback_hours 24, got %d", cfg.Scan.LookbackHours)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
extraction:
  provider: ollama
  model: llama3.1:8b
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Extraction.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Extraction.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Extraction.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Extraction.OllamaURL)
	}
	if cfg.Scan.DefaultTimezone != "America/Los_Angeles" {
		t.Errorf("expected default timezone, got %q", cfg.Scan.DefaultTimezone)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Scan.DefaultHour != 8 {
		t.Errorf("expected default scan hour 8, got %d", cfg.Scan.DefaultHour)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
