// Package config loads client settings from an optional YAML file and the
// environment. Environment variables override the file; the file overrides
// the defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTTL bounds cached list results and unconfirmed optimistic writes.
const DefaultTTL = 60 * time.Second

// DefaultSubject is the token subject used when none is configured.
const DefaultSubject = "optisync-client"

// Environment variables read by Load.
const (
	EnvTTL         = "OPTISYNC_TTL"
	EnvRemote      = "OPTISYNC_REMOTE"
	EnvDatabase    = "OPTISYNC_DB"
	EnvTokenSecret = "OPTISYNC_TOKEN_SECRET"
)

// Config holds client settings.
type Config struct {
	// TTL is shared by the optimistic registry and the list cache.
	TTL time.Duration `yaml:"ttl"`

	// RemoteURL is the base URL of the collection API.
	RemoteURL string `yaml:"remote_url"`

	// Database is the path of the SQLite mirror. Empty disables the mirror.
	Database string `yaml:"database"`

	// TokenSecret signs bearer tokens. Empty sends no Authorization header.
	TokenSecret string `yaml:"token_secret"`

	// Subject is the sub claim of issued tokens.
	Subject string `yaml:"subject"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		TTL:     DefaultTTL,
		Subject: DefaultSubject,
	}
}

// Load returns the defaults overlaid with the file at path (if path is not
// empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error
	if c.TTL <= 0 {
		errs = append(errs, fmt.Errorf("ttl must be positive, got %s", c.TTL))
	}
	if c.TokenSecret != "" && c.Subject == "" {
		errs = append(errs, errors.New("subject is required when token_secret is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// decode overlays YAML data on c, rejecting unknown fields.
func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(c)
}

// applyEnv overlays the environment on c. lookup is os.LookupEnv outside
// tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvTTL); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTTL, err)
		}
		c.TTL = ttl
	}
	if v, ok := lookup(EnvRemote); ok && v != "" {
		c.RemoteURL = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup(EnvTokenSecret); ok && v != "" {
		c.TokenSecret = v
	}
	return nil
}
