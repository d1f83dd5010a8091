// Package config provides configuration loading and management for the
// delivery date service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geekuality/posti-delivery-dates/internal/notify"
	"github.com/geekuality/posti-delivery-dates/internal/poll"
	"github.com/geekuality/posti-delivery-dates/internal/posti"
	"github.com/geekuality/posti-delivery-dates/internal/telemetry"
	"github.com/geekuality/posti-delivery-dates/internal/validators"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Codes are postal codes registered at startup. Codes registered later
	// through the API are persisted in the state directory instead.
	Codes []CodeConfig `yaml:"codes,omitempty"`

	// Source configures the upstream delivery schedule endpoint
	Source *SourceConfig `yaml:"source,omitempty"`

	// Polling configures the fetch scheduling intervals
	Polling *PollingConfig `yaml:"polling,omitempty"`

	// State configures snapshot persistence
	State *StateConfig `yaml:"state,omitempty"`

	// Notifications configures snapshot change publishing
	Notifications *notify.Config `yaml:"notifications,omitempty"`

	// Telemetry configures OpenTelemetry export
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// CodeConfig defines a single preconfigured postal code
type CodeConfig struct {
	PostalCode string `yaml:"postalCode"`
}

// SourceConfig defines the upstream endpoint settings
type SourceConfig struct {
	// URL is the endpoint template. The literal placeholder {postalCode}
	// is replaced with the escaped postal code on each fetch.
	URL string `yaml:"url,omitempty"`

	// Timeout bounds each fetch attempt (e.g., "10s")
	Timeout string `yaml:"timeout,omitempty"`
}

// PollingConfig defines the scheduling intervals
type PollingConfig struct {
	// Interval is the steady-state poll period (e.g., "12h")
	Interval string `yaml:"interval,omitempty"`

	// InitialOffsetMax bounds the one-time randomized startup offset
	InitialOffsetMax string `yaml:"initialOffsetMax,omitempty"`

	// JitterMax bounds the per-cycle steady-state jitter
	JitterMax string `yaml:"jitterMax,omitempty"`

	// RetryInterval is the fixed wait after a failed fetch.
	// Must be shorter than Interval.
	RetryInterval string `yaml:"retryInterval,omitempty"`
}

// StateConfig defines snapshot persistence settings
type StateConfig struct {
	// Dir is the directory holding per-code snapshot and status files
	Dir string `yaml:"dir"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetSourceURL returns the configured endpoint template or the default
func (c *Config) GetSourceURL() string {
	if c.Source == nil || c.Source.URL == "" {
		return posti.DefaultURLTemplate
	}
	return c.Source.URL
}

// GetSourceTimeout returns the configured fetch timeout or the default
func (c *Config) GetSourceTimeout() time.Duration {
	if c.Source == nil || c.Source.Timeout == "" {
		return posti.DefaultTimeout
	}
	// validate() already checked this parses
	d, _ := time.ParseDuration(c.Source.Timeout)
	return d
}

// GetStateDir returns the configured state directory or the default
func (c *Config) GetStateDir() string {
	if c.State == nil || c.State.Dir == "" {
		return "/var/lib/postid"
	}
	return c.State.Dir
}

// GetIntervals builds the scheduling intervals from the configuration,
// falling back to the defaults for any unset field.
func (c *Config) GetIntervals() poll.Intervals {
	iv := poll.DefaultIntervals()
	if c.Polling == nil {
		return iv
	}
	// validate() already checked these parse
	if c.Polling.Interval != "" {
		iv.Base, _ = time.ParseDuration(c.Polling.Interval)
	}
	if c.Polling.InitialOffsetMax != "" {
		iv.InitialOffsetMax, _ = time.ParseDuration(c.Polling.InitialOffsetMax)
	}
	if c.Polling.JitterMax != "" {
		iv.JitterMax, _ = time.ParseDuration(c.Polling.JitterMax)
	}
	if c.Polling.RetryInterval != "" {
		iv.Retry, _ = time.ParseDuration(c.Polling.RetryInterval)
	}
	return iv
}

// GetNotifications returns the notification configuration, never nil
func (c *Config) GetNotifications() *notify.Config {
	if c.Notifications == nil {
		return &notify.Config{}
	}
	return c.Notifications
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	seen := make(map[string]bool)
	for i, code := range c.Codes {
		if _, err := validators.ValidatePostalCode(code.PostalCode); err != nil {
			return fmt.Errorf("codes[%d]: %w", i, err)
		}
		if seen[code.PostalCode] {
			return fmt.Errorf("codes[%d]: duplicate postal code '%s'", i, code.PostalCode)
		}
		seen[code.PostalCode] = true
	}

	if err := validateSource(c.Source); err != nil {
		return err
	}

	if err := validatePolling(c.Polling); err != nil {
		return err
	}

	if err := c.GetIntervals().Validate(); err != nil {
		return fmt.Errorf("polling: %w", err)
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

// validateSource validates the upstream source configuration
func validateSource(src *SourceConfig) error {
	if src == nil {
		return nil
	}
	if src.Timeout != "" {
		if _, err := time.ParseDuration(src.Timeout); err != nil {
			return fmt.Errorf("source.timeout must be a valid duration (e.g., '10s'): %w", err)
		}
	}
	return nil
}

// validatePolling validates that the interval fields parse as durations.
// The relations between them are checked by Intervals.Validate.
func validatePolling(p *PollingConfig) error {
	if p == nil {
		return nil
	}
	fields := []struct {
		name  string
		value string
	}{
		{"polling.interval", p.Interval},
		{"polling.initialOffsetMax", p.InitialOffsetMax},
		{"polling.jitterMax", p.JitterMax},
		{"polling.retryInterval", p.RetryInterval},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if _, err := time.ParseDuration(f.value); err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", f.name, err)
		}
	}
	return nil
}
