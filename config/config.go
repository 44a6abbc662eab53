// Package config loads RecallrAI client settings from a YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/recallrai/recallrai-go/client"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey    = "RECALLRAI_API_KEY"
	EnvProjectID = "RECALLRAI_PROJECT_ID"
	EnvBaseURL   = "RECALLRAI_BASE_URL"
	EnvTimeout   = "RECALLRAI_TIMEOUT"
	EnvLogLevel  = "RECALLRAI_LOG_LEVEL"
)

var (
	ErrMissingAPIKey    = errors.New("config: api key is required")
	ErrInvalidAPIKey    = errors.New("config: api key must start with " + client.APIKeyPrefix)
	ErrMissingProjectID = errors.New("config: project id is required")
	ErrInvalidTimeout   = errors.New("config: timeout must be a positive duration")
	ErrInvalidBaseURL   = errors.New("config: base url must be an absolute http(s) url")
)

// Config holds the client settings.
type Config struct {
	APIKey    string `yaml:"api_key"`
	ProjectID string `yaml:"project_id"`
	BaseURL   string `yaml:"base_url"`

	// Timeout is a Go duration string such as "60s".
	Timeout string `yaml:"timeout"`

	Logging LoggingConfig `yaml:"logging"`
	Export  ExportConfig  `yaml:"export"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ExportConfig configures `recallr memory export`.
type ExportConfig struct {
	DatabasePath string `yaml:"database_path"`
	PageSize     int    `yaml:"page_size"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.recallrai.com",
		Timeout: "60s",
		Logging: LoggingConfig{Level: "info"},
		Export: ExportConfig{
			DatabasePath: "recallrai-export.db",
			PageSize:     client.MaxMemoriesLimit,
		},
	}
}

// DefaultPath returns ~/.recallrai/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".recallrai", "config.yaml")
	}
	return filepath.Join(home, ".recallrai", "config.yaml")
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the YAML file at path, then the given .env files (".env" if
// none), then the environment. Variables already set in the environment win
// over .env entries.
func FromEnv(path string, envFiles ...string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadDotEnv loads .env files into the environment, skipping missing ones.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields with the RECALLRAI_* variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvProjectID); v != "" {
		c.ProjectID = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Save writes c as YAML, creating the directory if needed. The file holds
// the API key, so it is written 0600.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GetTimeout parses Timeout. An empty value yields the client default.
func (c *Config) GetTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 60 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, c.Timeout)
	}
	return d, nil
}

// Validate checks that c can build a client.
func (c *Config) Validate() error {
	var errs []error
	switch {
	case c.APIKey == "":
		errs = append(errs, ErrMissingAPIKey)
	case !strings.HasPrefix(c.APIKey, client.APIKeyPrefix):
		errs = append(errs, ErrInvalidAPIKey)
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		errs = append(errs, ErrMissingProjectID)
	}
	if _, err := c.GetTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL))
		}
	}
	return errors.Join(errs...)
}

// NewClient validates c and builds a client from it.
func (c *Config) NewClient(logger *zap.Logger, opts ...client.Option) (*client.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	timeout, _ := c.GetTimeout()
	base := []client.Option{client.WithTimeout(timeout), client.WithLogger(logger)}
	if c.BaseURL != "" {
		base = append(base, client.WithBaseURL(c.BaseURL))
	}
	return client.New(c.APIKey, c.ProjectID, append(base, opts...)...)
}
