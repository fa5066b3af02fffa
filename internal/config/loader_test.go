package config

import (
	"os"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
chat:
  history_window: 10
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Chat.HistoryWindow != 10 {
		t.Errorf("expected history window 10, got %d", cfg.Chat.HistoryWindow)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func TestLoadFile_EngineCatalog(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-engines-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
providers:
  openai-main:
    type: openai
    base_url: https://api.openai.com/v1
    api_key: sk-test
engines:
  gpt-4o-mini:
    provider: openai-main
    model: gpt-4o-mini
    display_name: GPT-4o mini
    enabled: true
    input_rate_cents_per_mtok: 15
    output_rate_cents_per_mtok: 60
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var engines EnginesConfig
	if err := LoadFile(tmpFile.Name(), &engines); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	entry, ok := engines.Engines["gpt-4o-mini"]
	if !ok {
		t.Fatal("expected gpt-4o-mini engine entry")
	}
	if entry.InputRate != 15 || entry.OutputRate != 60 {
		t.Errorf("unexpected rates: input=%d output=%d", entry.InputRate, entry.OutputRate)
	}
	if !entry.Enabled {
		t.Error("expected engine enabled")
	}
	if engines.Providers["openai-main"].Type != "openai" {
		t.Errorf("unexpected provider type %q", engines.Providers["openai-main"].Type)
	}
}
