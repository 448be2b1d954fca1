// Package config loads the TOML configuration shared by the recording
// client and the extraction server. The upstream API key is deliberately
// not a file setting; it comes from the environment so the credential
// never lands on disk.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"nosh/extractor"
)

//go:embed sample_config.toml
var sampleConfig string

const apiKeyEnv = "GEMINI_API_KEY"

// Client configures the recording side.
type Client struct {
	EndpointURL            string `toml:"endpoint_url"`
	Language               string `toml:"language"`
	UserID                 string `toml:"user_id"`
	DeviceName             string `toml:"device_name"`
	ResponseTimeoutSeconds int    `toml:"response_timeout_seconds"`
}

// Server configures the extraction endpoint.
type Server struct {
	Bind              string `toml:"bind"`
	Model             string `toml:"model"`
	MaxRetries        int    `toml:"max_retries"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
}

// Storage selects and locates the persistence collaborator.
type Storage struct {
	Backend    string `toml:"backend"` // "sqlite" or "local"
	SQLitePath string `toml:"sqlite_path"`
	LocalDir   string `toml:"local_dir"`
}

type Config struct {
	Client  Client  `toml:"client"`
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`

	// APIKey is read from the environment, never from the file.
	APIKey string `toml:"-"`
}

func Default() Config {
	return Config{
		Client: Client{
			EndpointURL:            "http://127.0.0.1:8787/extract",
			Language:               extractor.LangEnglish,
			UserID:                 "default",
			ResponseTimeoutSeconds: 8,
		},
		Server: Server{
			Bind:              "127.0.0.1:8787",
			Model:             "gemini-2.0-flash",
			MaxRetries:        2,
			RetryDelaySeconds: 2,
		},
		Storage: Storage{
			Backend:    "sqlite",
			SQLitePath: "~/.local/share/nosh/nosh.db",
			LocalDir:   "~/.local/share/nosh/local",
		},
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() (string, error) {
	return expandPath("~/.config/nosh/config.toml")
}

// Load parses and validates the configuration. A missing file is not an
// error; defaults apply. Returns the config, the resolved path, and
// whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.APIKey = os.Getenv(apiKeyEnv)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolvePath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("nosh.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath); err != nil {
		return err
	}
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return err
	}
	c.Client.Language = strings.TrimSpace(c.Client.Language)
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	return nil
}

func (c *Config) Validate() error {
	if c.Client.EndpointURL == "" {
		return errors.New("config: client.endpoint_url is required")
	}
	if !extractor.SupportedLanguage(c.Client.Language) {
		return fmt.Errorf("config: unsupported language %q", c.Client.Language)
	}
	if strings.TrimSpace(c.Client.UserID) == "" {
		return errors.New("config: client.user_id is required")
	}
	if c.Client.ResponseTimeoutSeconds <= 0 {
		return errors.New("config: client.response_timeout_seconds must be positive")
	}
	if c.Server.Bind == "" {
		return errors.New("config: server.bind is required")
	}
	if c.Server.MaxRetries < 0 {
		return errors.New("config: server.max_retries must not be negative")
	}
	if c.Server.RetryDelaySeconds < 0 {
		return errors.New("config: server.retry_delay_seconds must not be negative")
	}
	switch c.Storage.Backend {
	case "sqlite", "local":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// EnsureDirectories creates the directories the configured backends need.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Storage.SQLitePath), c.Storage.LocalDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ResponseTimeout returns the client's bounded result wait.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.Client.ResponseTimeoutSeconds) * time.Second
}

// RetryDelay returns the server's delay between upstream retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Server.RetryDelaySeconds) * time.Second
}

// WriteSample writes the embedded sample configuration to path, refusing
// to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config: %s already exists", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
