// Package llm provides the language model capability used by the planner,
// the executor tools, and the mode compilers. It translates a small
// provider-neutral request shape into OpenAI chat completions or Anthropic
// messages and classifies every failure as a capability error.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a prompt conversation.
type Message struct {
	Role    Role
	Content string
}

// Request describes a single synthesis call.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// ExpectJSON asks the provider for a JSON object response where the API
	// supports it; the returned text is fence-stripped either way.
	ExpectJSON bool
}

// TokenUsage reports prompt/completion token counts when the provider
// supplies them.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Completion is the provider-neutral result of a synthesis call.
type Completion struct {
	Text  string
	Usage TokenUsage
}

// Client is the synthesis capability surface the agent depends on.
type Client interface {
	Ask(ctx context.Context, req Request) (*Completion, error)
}

// Config selects and parameterizes a provider-backed client. Every Ask
// carries a per-call deadline of Timeout; a tighter deadline already on the
// incoming context wins. The provider adapters add no timeout of their own.
type Config struct {
	Provider    string // "openai" or "anthropic"
	Model       string
	APIKey      string
	BaseURL     string // optional override, openai only
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultMaxTokens   = 4096
	defaultCallTimeout = 120 * time.Second
)

// NewClient builds a Client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}

	var (
		inner Client
		err   error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		inner, err = newOpenAIClient(cfg)
	case ProviderAnthropic:
		inner, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &deadlineClient{inner: inner, timeout: cfg.Timeout}, nil
}

// deadlineClient applies the per-call deadline around the provider adapter,
// so a single stalled call cannot consume a run's whole time budget.
type deadlineClient struct {
	inner   Client
	timeout time.Duration
}

func (c *deadlineClient) Ask(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.Ask(ctx, req)
}

// ExtractJSON strips markdown code fences and surrounding prose from model
// output, returning the outermost JSON object or array. Models fence JSON
// replies often enough that every structured parse goes through here.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
