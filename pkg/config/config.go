// Package config loads and validates the scribe runtime configuration.
//
// Configuration has two layers:
//   - Environment variables for infrastructure (database, HTTP port, the
//     path to the YAML file itself). See pkg/database for the DB contract.
//   - A YAML file (scribe.yaml) for domain settings: capability endpoints,
//     queue tuning, delivery tuning, request limits. Values may reference
//     environment variables with ${VAR} syntax so secrets never live in
//     the file.
//
// User-provided YAML is merged over built-in defaults; unset fields keep
// their defaults. Validation runs after the merge and rejects unknown enum
// values and missing required endpoints.
package config

import "time"

// Config is the root runtime configuration, ready for use after Initialize.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Chart    ChartConfig    `yaml:"chart"`
	Queue    QueueConfig    `yaml:"queue"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// LLMConfig selects and authenticates the LLM provider used for planning,
// synthesis, and section drafting.
type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`

	// Model is the provider-specific model identifier. Required.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. Required; use ${VAR}
	// expansion rather than a literal value.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint (proxies, gateways).
	BaseURL string `yaml:"base_url"`

	// MaxTokens caps completion length per call.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the default sampling temperature; individual calls
	// may override it.
	Temperature float32 `yaml:"temperature"`

	// Timeout is the hard per-call deadline for LLM requests.
	Timeout time.Duration `yaml:"timeout"`
}

// SearchConfig points at the web-search service.
type SearchConfig struct {
	// BaseURL is the search API endpoint. Required.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `yaml:"api_key"`

	// MaxResults is the number of raw hits requested per query.
	MaxResults int `yaml:"max_results"`

	// Timeout is the hard per-call deadline for search requests.
	Timeout time.Duration `yaml:"timeout"`
}

// ChartConfig points at the chart-rendering service.
type ChartConfig struct {
	// BaseURL is the chart renderer endpoint. Required.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `yaml:"api_key"`

	// Timeout is the hard per-call deadline for render requests.
	Timeout time.Duration `yaml:"timeout"`
}

// QueueConfig controls how queued runs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes runs.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentRuns is the global soft cap of concurrent runs across
	// ALL replicas/pods. Enforced by a database COUNT(*) check.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// PollInterval is the base interval for checking queued runs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// RunTimeout is the run-level deadline. Expiry is equivalent to
	// cancellation.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active runs to
	// complete during shutdown. Should match RunTimeout.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often a worker bumps last_heartbeat_at on
	// its active run.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often to scan for orphaned runs.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a run can go without a heartbeat before
	// it is considered orphaned.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DeliveryConfig tunes the SSE delivery surface.
type DeliveryConfig struct {
	// CatchupLimit is the max activities replayed from the store on
	// subscribe; older history is summarized by an overflow marker.
	CatchupLimit int `yaml:"catchup_limit"`

	// SubscriberBuffer is the per-subscriber frame buffer. A subscriber
	// that falls this far behind is dropped with a stream.degraded frame.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// HeartbeatInterval is the SSE keepalive cadence.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LimitsConfig bounds request payloads and planner work.
type LimitsConfig struct {
	// MaxGoalBytes caps the goal text of a run request.
	MaxGoalBytes int `yaml:"max_goal_bytes"`

	// MaxFileBytes caps the total decoded size of uploaded files per run.
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// MaxToolCalls is the hard cap on plan length.
	MaxToolCalls int `yaml:"max_tool_calls"`

	// PlannerTimeout is the planner's deadline, tighter than the run
	// deadline so a stuck planner still leaves room for fallback execution.
	PlannerTimeout time.Duration `yaml:"planner_timeout"`
}

// Default returns the built-in configuration. Endpoint and credential
// fields are intentionally empty: they must come from scribe.yaml.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   4096,
			Temperature: 0.2,
			Timeout:     120 * time.Second,
		},
		Search: SearchConfig{
			MaxResults: 8,
			Timeout:    30 * time.Second,
		},
		Chart: ChartConfig{
			Timeout: 60 * time.Second,
		},
		Queue: QueueConfig{
			WorkerCount:             5,
			MaxConcurrentRuns:       5,
			PollInterval:            1 * time.Second,
			PollIntervalJitter:      500 * time.Millisecond,
			RunTimeout:              15 * time.Minute,
			GracefulShutdownTimeout: 15 * time.Minute,
			HeartbeatInterval:       30 * time.Second,
			OrphanDetectionInterval: 5 * time.Minute,
			OrphanThreshold:         5 * time.Minute,
		},
		Delivery: DeliveryConfig{
			CatchupLimit:      200,
			SubscriberBuffer:  256,
			HeartbeatInterval: 15 * time.Second,
		},
		Limits: LimitsConfig{
			MaxGoalBytes:   1024,
			MaxFileBytes:   2 << 20,
			MaxToolCalls:   40,
			PlannerTimeout: 90 * time.Second,
		},
	}
}
