// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Maestro components.
//
// Configuration is loaded from a single file specified by:
//   - MAESTRO_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Generator provider values.
const (
	// ProviderOpenAI calls an OpenAI-compatible chat completions API.
	ProviderOpenAI = "openai"
	// ProviderScripted produces deterministic offline output with no
	// network access. Used for development and tests.
	ProviderScripted = "scripted"
)

// Config is the master configuration for the Maestro campaign service.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Socket is the Unix socket path the campaign service listens on.
	// Default: /run/maestro/campaign.sock
	Socket string `yaml:"socket"`

	// Listen is the HTTP listen address (host:port). Empty disables the
	// HTTP listener; the Unix socket is always served.
	// Default: 127.0.0.1:8700
	Listen string `yaml:"listen"`

	// StateDB is the SQLite database path holding campaign state.
	StateDB string `yaml:"state_db"`

	// PolicyFile is the path to the compliance policy file (JSONC).
	// Empty uses the built-in default policy.
	PolicyFile string `yaml:"policy_file"`

	// SegmentCatalog is the path to the audience segment catalog (YAML).
	// Empty uses the built-in catalog.
	SegmentCatalog string `yaml:"segment_catalog"`

	// StageTimeout bounds a single pipeline stage attempt, written as a
	// Go duration string.
	// Default: 60s
	StageTimeout string `yaml:"stage_timeout"`

	// Generator configures the content generation provider.
	Generator GeneratorConfig `yaml:"generator"`

	// Scorer configures the safety scorer used by compliance review.
	Scorer ScorerConfig `yaml:"scorer"`

	// Experiment configures statistical defaults for experiment setup.
	Experiment ExperimentConfig `yaml:"experiment"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Socket         string            `yaml:"socket,omitempty"`
	Listen         string            `yaml:"listen,omitempty"`
	StateDB        string            `yaml:"state_db,omitempty"`
	PolicyFile     string            `yaml:"policy_file,omitempty"`
	SegmentCatalog string            `yaml:"segment_catalog,omitempty"`
	StageTimeout   string            `yaml:"stage_timeout,omitempty"`
	Generator      *GeneratorConfig  `yaml:"generator,omitempty"`
	Scorer         *ScorerConfig     `yaml:"scorer,omitempty"`
	Experiment     *ExperimentConfig `yaml:"experiment,omitempty"`
}

// GeneratorConfig configures the LLM provider driving the pipeline stages.
type GeneratorConfig struct {
	// Provider selects the implementation.
	// Values: "openai" (chat completions API), "scripted" (deterministic, offline)
	// Default: scripted (development), openai (production)
	Provider string `yaml:"provider"`

	// BaseURL is the API base URL for the openai provider.
	// Default: https://api.openai.com/v1
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token for the openai provider. Secrets are
	// written as ${VAR} references and expanded from the environment,
	// so the file itself never holds credentials.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier requested from the provider.
	// Default: gpt-4o
	Model string `yaml:"model"`

	// RequestsPerMinute rate-limits provider calls.
	// Default: 60
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// ScorerConfig configures the safety scorer consulted during compliance review.
type ScorerConfig struct {
	// Endpoint is the HTTP scoring endpoint. Empty uses the built-in
	// lexicon scorer.
	Endpoint string `yaml:"endpoint"`

	// APIKey is the bearer token for the scoring endpoint.
	APIKey string `yaml:"api_key"`
}

// ExperimentConfig configures statistical defaults for experiment setup.
type ExperimentConfig struct {
	// ConfidenceLevel for significance analysis, in (0, 1).
	// Default: 0.95
	ConfidenceLevel float64 `yaml:"confidence_level"`

	// Power is the target statistical power for sample size planning, in (0, 1).
	// Default: 0.8
	Power float64 `yaml:"power"`

	// MinimumSampleSize is the floor applied to computed per-variant
	// sample sizes.
	// Default: 1000
	MinimumSampleSize int `yaml:"minimum_sample_size"`

	// Tails selects a one- or two-tailed test. Values: 1, 2.
	// Default: 2
	Tails int `yaml:"tails"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "maestro")

	return &Config{
		Environment:  Development,
		Socket:       "/run/maestro/campaign.sock",
		Listen:       "127.0.0.1:8700",
		StateDB:      filepath.Join(defaultRoot, "campaigns.db"),
		StageTimeout: "60s",
		Generator: GeneratorConfig{
			Provider:          ProviderScripted,
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o",
			RequestsPerMinute: 60,
		},
		Experiment: ExperimentConfig{
			ConfidenceLevel:   0.95,
			Power:             0.8,
			MinimumSampleSize: 1000,
			Tails:             2,
		},
	}
}

// Load loads configuration from the MAESTRO_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if MAESTRO_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("MAESTRO_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("MAESTRO_CONFIG environment variable not set; " +
			"set it to the path of your maestro.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do
// not override config values - this ensures deterministic, auditable
// configuration. The only environment access is explicit ${VAR} references
// written in the file itself, used for secrets and path portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${VAR} and ${VAR:-default} references in paths and secrets.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: the scripted generator never serves
		// production traffic.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Generator: &GeneratorConfig{
					Provider: ProviderOpenAI,
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Socket != "" {
		c.Socket = overrides.Socket
	}
	if overrides.Listen != "" {
		c.Listen = overrides.Listen
	}
	if overrides.StateDB != "" {
		c.StateDB = overrides.StateDB
	}
	if overrides.PolicyFile != "" {
		c.PolicyFile = overrides.PolicyFile
	}
	if overrides.SegmentCatalog != "" {
		c.SegmentCatalog = overrides.SegmentCatalog
	}
	if overrides.StageTimeout != "" {
		c.StageTimeout = overrides.StageTimeout
	}

	if overrides.Generator != nil {
		if overrides.Generator.Provider != "" {
			c.Generator.Provider = overrides.Generator.Provider
		}
		if overrides.Generator.BaseURL != "" {
			c.Generator.BaseURL = overrides.Generator.BaseURL
		}
		if overrides.Generator.APIKey != "" {
			c.Generator.APIKey = overrides.Generator.APIKey
		}
		if overrides.Generator.Model != "" {
			c.Generator.Model = overrides.Generator.Model
		}
		if overrides.Generator.RequestsPerMinute > 0 {
			c.Generator.RequestsPerMinute = overrides.Generator.RequestsPerMinute
		}
	}

	if overrides.Scorer != nil {
		if overrides.Scorer.Endpoint != "" {
			c.Scorer.Endpoint = overrides.Scorer.Endpoint
		}
		if overrides.Scorer.APIKey != "" {
			c.Scorer.APIKey = overrides.Scorer.APIKey
		}
	}

	if overrides.Experiment != nil {
		if overrides.Experiment.ConfidenceLevel > 0 {
			c.Experiment.ConfidenceLevel = overrides.Experiment.ConfidenceLevel
		}
		if overrides.Experiment.Power > 0 {
			c.Experiment.Power = overrides.Experiment.Power
		}
		if overrides.Experiment.MinimumSampleSize > 0 {
			c.Experiment.MinimumSampleSize = overrides.Experiment.MinimumSampleSize
		}
		if overrides.Experiment.Tails > 0 {
			c.Experiment.Tails = overrides.Experiment.Tails
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path,
// address, and secret fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Socket = expandVars(c.Socket, vars)
	c.Listen = expandVars(c.Listen, vars)
	c.StateDB = expandVars(c.StateDB, vars)
	c.PolicyFile = expandVars(c.PolicyFile, vars)
	c.SegmentCatalog = expandVars(c.SegmentCatalog, vars)
	c.Generator.BaseURL = expandVars(c.Generator.BaseURL, vars)
	c.Generator.APIKey = expandVars(c.Generator.APIKey, vars)
	c.Scorer.Endpoint = expandVars(c.Scorer.Endpoint, vars)
	c.Scorer.APIKey = expandVars(c.Scorer.APIKey, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	if c.StateDB == "" {
		errs = append(errs, fmt.Errorf("state_db is required"))
	}

	if d, err := time.ParseDuration(c.StageTimeout); err != nil {
		errs = append(errs, fmt.Errorf("stage_timeout: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("stage_timeout must be positive, got %s", c.StageTimeout))
	}

	providers := []string{ProviderOpenAI, ProviderScripted}
	if !slices.Contains(providers, c.Generator.Provider) {
		errs = append(errs, fmt.Errorf("generator.provider must be one of: %v", providers))
	}
	if c.Generator.Provider == ProviderOpenAI {
		if c.Generator.BaseURL == "" {
			errs = append(errs, fmt.Errorf("generator.base_url is required for the openai provider"))
		}
		if c.Generator.Model == "" {
			errs = append(errs, fmt.Errorf("generator.model is required for the openai provider"))
		}
	}
	if c.Generator.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("generator.requests_per_minute must be positive, got %d", c.Generator.RequestsPerMinute))
	}

	if c.Experiment.ConfidenceLevel <= 0 || c.Experiment.ConfidenceLevel >= 1 {
		errs = append(errs, fmt.Errorf("experiment.confidence_level must be in (0, 1), got %g", c.Experiment.ConfidenceLevel))
	}
	if c.Experiment.Power <= 0 || c.Experiment.Power >= 1 {
		errs = append(errs, fmt.Errorf("experiment.power must be in (0, 1), got %g", c.Experiment.Power))
	}
	if c.Experiment.MinimumSampleSize < 0 {
		errs = append(errs, fmt.Errorf("experiment.minimum_sample_size must not be negative, got %d", c.Experiment.MinimumSampleSize))
	}
	if c.Experiment.Tails != 1 && c.Experiment.Tails != 2 {
		errs = append(errs, fmt.Errorf("experiment.tails must be 1 or 2, got %d", c.Experiment.Tails))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StageTimeoutDuration returns StageTimeout parsed as a duration.
// Validate rejects values that do not parse, so after a successful
// Validate the error is always nil.
func (c *Config) StageTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.StageTimeout)
}

// EnsureDirs creates the directories holding the socket and the state
// database if they don't exist.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		filepath.Dir(c.Socket),
		filepath.Dir(c.StateDB),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	return nil
}
