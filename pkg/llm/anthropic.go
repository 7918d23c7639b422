package llm

import (
	"context"
	"errors"
	"net"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentic-research/scribe/pkg/capability"
)

// messagesClient captures the subset of the Anthropic SDK the adapter uses.
type messagesClient interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

type anthropicClient struct {
	msg         messagesClient
	model       string
	maxTokens   int
	temperature float64
}

func newAnthropicClient(cfg Config) (*anthropicClient, error) {
	ac := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return &anthropicClient{
		msg:         &ac.Messages,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *anthropicClient) Ask(ctx context.Context, req Request) (*Completion, error) {
	const op = "llm.ask"
	if len(req.Messages) == 0 {
		return nil, capability.Errorf(capability.KindInvalidPayload, op, "messages are required")
	}

	// Anthropic takes system prompts out of band.
	system := make([]sdk.TextBlockParam, 0, 1)
	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(messages) == 0 {
		return nil, capability.Errorf(capability.KindInvalidPayload, op, "at least one non-system message is required")
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	temperature := c.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	if temperature > 0 {
		params.Temperature = sdk.Float(temperature)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(op, ctx, err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, capability.Errorf(capability.KindParse, op, "response has no text content")
	}
	if req.ExpectJSON {
		text = ExtractJSON(text)
	}
	return &Completion{
		Text: text,
		Usage: TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func classifyAnthropicError(op string, ctx context.Context, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return capability.NewError(capability.KindUpstream5xx, op, err)
		}
		return capability.NewError(capability.KindUpstream4xx, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return capability.NewError(capability.KindTimeout, op, err)
	}
	return capability.FromContext(op, ctx, err)
}
