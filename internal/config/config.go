// Package config handles TOML configuration for Warden.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
)

// Supported provider names.
const (
	ProviderAWS = "aws"
	ProviderGCP = "gcp"
)

// Config is the root configuration structure.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Filter   FilterConfig   `toml:"filter"`
	Mutelist MutelistConfig `toml:"mutelist"`
	Store    StoreConfig    `toml:"store"`
	Server   ServerConfig   `toml:"server"`
	OTEL     OTELConfig     `toml:"otel"`
	Log      LogConfig      `toml:"log"`
}

// ProviderConfig selects the cloud to scan.
type ProviderConfig struct {
	Name    string   `toml:"name"`
	Regions []string `toml:"regions"`
	Profile string   `toml:"profile"`
	Project string   `toml:"project"`
}

// ScannerConfig holds execution settings.
type ScannerConfig struct {
	Concurrency int    `toml:"concurrency"`
	TimeoutStr  string `toml:"timeout"`
	Timeout     time.Duration
	IntervalStr string `toml:"interval"`
	Interval    time.Duration
	OneShot     bool `toml:"one_shot"`
}

// FilterConfig selects checks. Exclusions win over inclusions.
type FilterConfig struct {
	Checks            []string `toml:"checks"`
	ExcludeChecks     []string `toml:"exclude_checks"`
	Services          []string `toml:"services"`
	ExcludeServices   []string `toml:"exclude_services"`
	Severities        []string `toml:"severities"`
	ExcludeSeverities []string `toml:"exclude_severities"`
	Tags              []string `toml:"tags"`
	ExcludeTags       []string `toml:"exclude_tags"`
}

// MutelistConfig points at a Rego mutelist policy.
type MutelistConfig struct {
	Policy string `toml:"policy"`
}

// StoreConfig holds report history settings. An empty path disables history.
type StoreConfig struct {
	Path   string `toml:"path"`
	Retain int    `toml:"retain"`
}

// ServerConfig holds the daemon HTTP listener.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	CAFile      string        `toml:"ca_file"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = parseDurations(cfg)
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = ProviderAWS
	}
	if cfg.Scanner.Concurrency == 0 {
		cfg.Scanner.Concurrency = 8
	}
	if cfg.Scanner.TimeoutStr == "" {
		cfg.Scanner.TimeoutStr = "0s"
	}
	if cfg.Scanner.IntervalStr == "" {
		cfg.Scanner.IntervalStr = "1h"
	}
	if cfg.Store.Retain == 0 {
		cfg.Store.Retain = 100
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":9464"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "warden"
	}
	if cfg.OTEL.Traces.Enabled && cfg.OTEL.Traces.SampleRate == 0 {
		cfg.OTEL.Traces.SampleRate = 1.0
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func parseDurations(cfg *Config) error {
	timeout, err := time.ParseDuration(cfg.Scanner.TimeoutStr)
	if err != nil {
		return fmt.Errorf("parse timeout %q: %w", cfg.Scanner.TimeoutStr, err)
	}
	cfg.Scanner.Timeout = timeout

	interval, err := time.ParseDuration(cfg.Scanner.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse interval %q: %w", cfg.Scanner.IntervalStr, err)
	}
	cfg.Scanner.Interval = interval
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderAWS:
	case ProviderGCP:
		if c.Provider.Project == "" {
			return fmt.Errorf("provider: gcp requires a project")
		}
	default:
		return fmt.Errorf("provider: unknown name %q (want aws or gcp)", c.Provider.Name)
	}
	return c.ValidateSettings()
}

// ValidateSettings checks everything except the provider section. Scans of a
// recorded inventory never reach a provider.
func (c *Config) ValidateSettings() error {
	if c.Scanner.Concurrency < 1 {
		return fmt.Errorf("scanner: concurrency must be at least 1 (got %d)", c.Scanner.Concurrency)
	}
	if c.Scanner.Timeout < 0 {
		return fmt.Errorf("scanner: timeout must not be negative")
	}
	if !c.Scanner.OneShot && c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner: interval must be positive")
	}
	if c.Store.Retain < 1 {
		return fmt.Errorf("store: retain must be at least 1 (got %d)", c.Store.Retain)
	}
	if _, err := c.Filter.CheckFilter(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	if c.OTEL.Insecure && c.OTEL.CAFile != "" {
		return fmt.Errorf("otel: insecure and ca_file are mutually exclusive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log: format must be console or json (got %q)", c.Log.Format)
	}
	return nil
}

// CheckFilter converts the filter section into a check selection filter.
func (f FilterConfig) CheckFilter() (check.Filter, error) {
	include, err := parseSeverities(f.Severities)
	if err != nil {
		return check.Filter{}, err
	}
	exclude, err := parseSeverities(f.ExcludeSeverities)
	if err != nil {
		return check.Filter{}, err
	}
	return check.Filter{
		IncludeChecks:     f.Checks,
		ExcludeChecks:     f.ExcludeChecks,
		IncludeServices:   f.Services,
		ExcludeServices:   f.ExcludeServices,
		IncludeSeverities: include,
		ExcludeSeverities: exclude,
		IncludeTags:       f.Tags,
		ExcludeTags:       f.ExcludeTags,
	}, nil
}

func parseSeverities(raw []string) ([]finding.Severity, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]finding.Severity, 0, len(raw))
	for _, s := range raw {
		sev, err := finding.ParseSeverity(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sev)
	}
	return out, nil
}
