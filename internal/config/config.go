// Package config loads runtime limits and logging settings from the
// environment.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/rulekernel/internal/turnflow"
)

// Config holds the settings shared by every command.
type Config struct {
	// MaxTriggerDepth bounds trigger cascades; deeper events are truncated.
	MaxTriggerDepth int `env:"RULEKERNEL_MAX_TRIGGER_DEPTH" envDefault:"8"`

	// EffectBudget bounds effect applications per operation.
	EffectBudget int `env:"RULEKERNEL_EFFECT_BUDGET" envDefault:"10000"`

	// MaxQueryResults bounds the size of any query result.
	MaxQueryResults int `env:"RULEKERNEL_MAX_QUERY_RESULTS" envDefault:"10000"`

	// MaxSteps bounds the steps of one run.
	MaxSteps int `env:"RULEKERNEL_MAX_STEPS" envDefault:"10000"`

	LogLevel  string `env:"RULEKERNEL_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"RULEKERNEL_LOG_FORMAT" envDefault:"console"`

	// DB is the run database path. Empty disables recording.
	DB string `env:"RULEKERNEL_DB"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration of an empty environment.
func Default() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Validate rejects non-positive limits and unknown log settings.
func (c Config) Validate() error {
	var errs []error
	for _, limit := range []struct {
		name  string
		value int
	}{
		{"max trigger depth", c.MaxTriggerDepth},
		{"effect budget", c.EffectBudget},
		{"max query results", c.MaxQueryResults},
		{"max steps", c.MaxSteps},
	} {
		if limit.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", limit.name, limit.value))
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// MachineOptions returns the turn machine options for the configured limits.
func (c Config) MachineOptions() []turnflow.Option {
	return []turnflow.Option{
		turnflow.WithMaxTriggerDepth(c.MaxTriggerDepth),
		turnflow.WithEffectBudget(c.EffectBudget),
		turnflow.WithMaxQueryResults(c.MaxQueryResults),
	}
}
