// Package config loads and validates the nursern.yml configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level nursern.yml configuration.
type Config struct {
	Version      string             `yaml:"version"`
	Instance     string             `yaml:"instance"` // Namespace for Redis keys; multiple instances may share a server
	Redis        RedisConfig        `yaml:"redis"`
	Audit        AuditConfig        `yaml:"audit,omitempty"`
	Breaker      BreakerConfig      `yaml:"breaker,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
}

// RedisConfig specifies the context store connection.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// AuditConfig specifies the audit trail location and rotation threshold.
type AuditConfig struct {
	Dir          string `yaml:"dir,omitempty"`            // Empty disables auditing
	MaxSizeBytes int64  `yaml:"max_size_bytes,omitempty"` // 0 = audit package default
}

// BreakerConfig specifies the per-collaborator circuit guards.
type BreakerConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold,omitempty"` // Consecutive failures before opening (0 = default)
	CoolDownSeconds  int    `yaml:"cool_down_seconds,omitempty"` // Open duration before the half-open probe (0 = default)
}

// OrchestratorConfig specifies worker pool and parallel execution behavior.
type OrchestratorConfig struct {
	PoolSize               int64 `yaml:"pool_size,omitempty"`                // Concurrent collaborator calls (0 = default)
	ParallelTimeoutSeconds int   `yaml:"parallel_timeout_seconds,omitempty"` // Bounded wait for execute-parallel (0 = default)
}

// PipelineConfig specifies phase collaborators and the retry budget.
type PipelineConfig struct {
	// MaxRetries is how many refined re-attempts a phase gets after its gate
	// fails before the pipeline fails (default 1).
	MaxRetries *int `yaml:"max_retries,omitempty"`

	// Agents names the collaborator responsible for each phase.
	// All five are required.
	Agents PhaseAgents `yaml:"agents"`
}

// PhaseAgents maps each pipeline phase to its collaborator name.
type PhaseAgents struct {
	Planning   string `yaml:"planning"`
	Search     string `yaml:"search"`
	Validation string `yaml:"validation"`
	Synthesis  string `yaml:"synthesis"`
	Analysis   string `yaml:"analysis"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate performs strict validation and applies defaults.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = "default"
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}

	if c.Breaker.CoolDownSeconds < 0 {
		return fmt.Errorf("breaker.cool_down_seconds must be >= 0, got %d", c.Breaker.CoolDownSeconds)
	}

	if c.Orchestrator.PoolSize < 0 {
		return fmt.Errorf("orchestrator.pool_size must be >= 0, got %d", c.Orchestrator.PoolSize)
	}
	if c.Orchestrator.ParallelTimeoutSeconds < 0 {
		return fmt.Errorf("orchestrator.parallel_timeout_seconds must be >= 0, got %d", c.Orchestrator.ParallelTimeoutSeconds)
	}

	// Apply default retry budget if missing.
	if c.Pipeline.MaxRetries == nil {
		defaultRetries := 1
		c.Pipeline.MaxRetries = &defaultRetries
	}
	if *c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be >= 0, got %d", *c.Pipeline.MaxRetries)
	}

	if err := c.Pipeline.Agents.Validate(); err != nil {
		return err
	}

	return nil
}

// Validate checks that every phase has a collaborator assigned.
func (a *PhaseAgents) Validate() error {
	phases := map[string]string{
		"planning":   a.Planning,
		"search":     a.Search,
		"validation": a.Validation,
		"synthesis":  a.Synthesis,
		"analysis":   a.Analysis,
	}
	for phase, agent := range phases {
		if agent == "" {
			return fmt.Errorf("pipeline.agents.%s is required", phase)
		}
	}
	return nil
}

// BreakerCoolDown returns the configured cool-down as a duration.
func (c *Config) BreakerCoolDown() time.Duration {
	return time.Duration(c.Breaker.CoolDownSeconds) * time.Second
}

// ParallelTimeout returns the configured parallel wait as a duration.
func (c *Config) ParallelTimeout() time.Duration {
	return time.Duration(c.Orchestrator.ParallelTimeoutSeconds) * time.Second
}
