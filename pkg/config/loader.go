package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// providers are the accepted llm.provider values.
var providers = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

// Initialize loads, merges, and validates configuration from the YAML file
// at path. This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the file
//  2. Expand ${VAR} environment references
//  3. Parse YAML
//  4. Merge user values over built-in defaults
//  5. Validate the result
func Initialize(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized",
		"config_path", path,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"worker_count", cfg.Queue.WorkerCount,
		"max_concurrent_runs", cfg.Queue.MaxConcurrentRuns)

	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	// Expand ${VAR} references before parsing so secrets stay out of the file.
	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	// Merge user-provided values into defaults (non-zero values override).
	cfg := Default()
	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks required fields, enum values, and numeric sanity.
// Returned errors are *FieldError values wrapping the package sentinels.
func (c *Config) Validate() error {
	if !providers[c.LLM.Provider] {
		return invalidField("llm", "provider", fmt.Sprintf("%q (want openai or anthropic)", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		return missingField("llm", "model")
	}
	if c.LLM.APIKey == "" {
		return missingField("llm", "api_key")
	}
	if c.LLM.MaxTokens <= 0 {
		return invalidField("llm", "max_tokens", "must be positive")
	}
	if c.Search.BaseURL == "" {
		return missingField("search", "base_url")
	}
	if c.Chart.BaseURL == "" {
		return missingField("chart", "base_url")
	}

	for _, d := range []struct {
		section, field string
		value          int64
	}{
		{"llm", "timeout", int64(c.LLM.Timeout)},
		{"search", "timeout", int64(c.Search.Timeout)},
		{"chart", "timeout", int64(c.Chart.Timeout)},
		{"queue", "poll_interval", int64(c.Queue.PollInterval)},
		{"queue", "run_timeout", int64(c.Queue.RunTimeout)},
		{"queue", "heartbeat_interval", int64(c.Queue.HeartbeatInterval)},
		{"queue", "orphan_detection_interval", int64(c.Queue.OrphanDetectionInterval)},
		{"queue", "orphan_threshold", int64(c.Queue.OrphanThreshold)},
		{"delivery", "heartbeat_interval", int64(c.Delivery.HeartbeatInterval)},
		{"limits", "planner_timeout", int64(c.Limits.PlannerTimeout)},
	} {
		if d.value <= 0 {
			return invalidField(d.section, d.field, "must be positive")
		}
	}

	if c.Queue.WorkerCount < 1 {
		return invalidField("queue", "worker_count", "must be at least 1")
	}
	if c.Queue.MaxConcurrentRuns < 1 {
		return invalidField("queue", "max_concurrent_runs", "must be at least 1")
	}
	if c.Delivery.CatchupLimit < 1 {
		return invalidField("delivery", "catchup_limit", "must be at least 1")
	}
	if c.Delivery.SubscriberBuffer < 1 {
		return invalidField("delivery", "subscriber_buffer", "must be at least 1")
	}
	if c.Limits.MaxGoalBytes < 1 {
		return invalidField("limits", "max_goal_bytes", "must be at least 1")
	}
	if c.Limits.MaxFileBytes < 1 {
		return invalidField("limits", "max_file_bytes", "must be at least 1")
	}
	if c.Limits.MaxToolCalls < 1 {
		return invalidField("limits", "max_tool_calls", "must be at least 1")
	}

	return nil
}
