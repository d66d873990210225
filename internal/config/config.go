// Package config loads the mxapi command's configuration file and JSONC
// sync filter files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/broady/mxapi/r0"
)

// Config is the top-level configuration of the mxapi command.
type Config struct {
	// HomeserverURL is the base URL of the homeserver (e.g., "https://matrix.example.org").
	HomeserverURL string `yaml:"homeserver_url"`

	// AccessToken is sent to endpoints that require authentication.
	AccessToken string `yaml:"access_token"`

	// AccessTokenFile names a file holding the access token. It is read
	// when AccessToken is empty.
	AccessTokenFile string `yaml:"access_token_file"`

	// AlwaysAuthenticate sends the token to every endpoint.
	AlwaysAuthenticate bool `yaml:"always_authenticate"`

	// RateLimitRetries is how many times a rate-limited call is retried.
	RateLimitRetries int `yaml:"rate_limit_retries"`

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel is one of debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// FilterFile is a JSONC sync filter applied when sync is called
	// without an explicit filter.
	FilterFile string `yaml:"filter_file"`
}

// DefaultTimeout is used when the configuration sets no timeout.
const DefaultTimeout = 30 * time.Second

// DefaultPath returns the per-user configuration file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mxapi", "config.yaml"), nil
}

// Load reads a configuration from a YAML file. Relative file names inside
// the configuration are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.AccessTokenFile, &cfg.FilterFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return cfg, nil
}

// Parse decodes a YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HomeserverURL == "" {
		return errors.New("homeserver_url is required")
	}
	u, err := url.Parse(c.HomeserverURL)
	if err != nil {
		return fmt.Errorf("homeserver_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("homeserver_url: unsupported scheme %q", u.Scheme)
	}
	if c.AccessToken != "" && c.AccessTokenFile != "" {
		return errors.New("access_token and access_token_file are mutually exclusive")
	}
	if c.RateLimitRetries < 0 {
		return errors.New("rate_limit_retries must not be negative")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Token returns the access token, reading AccessTokenFile if needed.
func (c *Config) Token() (string, error) {
	if c.AccessToken != "" || c.AccessTokenFile == "" {
		return c.AccessToken, nil
	}
	data, err := os.ReadFile(c.AccessTokenFile)
	if err != nil {
		return "", fmt.Errorf("reading access token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ParseFilter strips JSONC comments and trailing commas from data, then
// decodes it as a sync filter definition.
func ParseFilter(data []byte) (r0.Filter, error) {
	var def r0.FilterDefinition
	if err := json.Unmarshal(jsonc.ToJSON(data), &def); err != nil {
		return r0.Filter{}, fmt.Errorf("parsing filter: %w", err)
	}
	return r0.FilterFromDefinition(def), nil
}

// ReadFilterFile reads and parses a JSONC filter file.
func ReadFilterFile(path string) (r0.Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return r0.Filter{}, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := ParseFilter(data)
	if err != nil {
		return r0.Filter{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
