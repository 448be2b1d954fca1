package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nosh/config"
)

func TestLoadDefaultsWithMissingFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected a resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Client.Language != "en-US" {
		t.Errorf("language = %q", cfg.Client.Language)
	}
	if cfg.Server.Bind != "127.0.0.1:8787" {
		t.Errorf("bind = %q", cfg.Server.Bind)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("api key = %q, want the env value", cfg.APIKey)
	}
	if want := filepath.Join(tempHome, ".local", "share", "nosh", "nosh.db"); cfg.Storage.SQLitePath != want {
		t.Errorf("sqlite path = %q, want %q", cfg.Storage.SQLitePath, want)
	}
	if cfg.ResponseTimeout() != 8*time.Second {
		t.Errorf("response timeout = %v", cfg.ResponseTimeout())
	}
}

func TestLoadExplicitFileOverridesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[client]
endpoint_url = "https://nosh.example/extract"
language = "pt-BR"
user_id = "ana"
response_timeout_seconds = 4

[server]
bind = "0.0.0.0:9000"
max_retries = 5
retry_delay_seconds = 1

[storage]
backend = "local"
local_dir = "` + t.TempDir() + `"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected the file to be found")
	}
	if cfg.Client.Language != "pt-BR" || cfg.Client.UserID != "ana" {
		t.Errorf("client = %+v", cfg.Client)
	}
	if cfg.Server.MaxRetries != 5 || cfg.RetryDelay() != time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.APIKey != "" {
		t.Errorf("api key = %q, want empty when env unset", cfg.APIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad language", "[client]\nlanguage = \"fr-FR\"\n", "unsupported language"},
		{"bad backend", "[storage]\nbackend = \"dynamo\"\n", "unknown storage backend"},
		{"negative retries", "[server]\nmax_retries = -1\n", "max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[client]") {
		t.Error("sample config missing [client] section")
	}
	if err := config.WriteSample(path); err == nil {
		t.Error("WriteSample overwrote an existing file")
	}
}
