package llm

import (
	"context"
	"errors"
	"net"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentic-research/scribe/pkg/capability"
)

// chatClient captures the subset of the go-openai client the adapter uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

type openAIClient struct {
	chat        chatClient
	model       string
	maxTokens   int
	temperature float64
}

func newOpenAIClient(cfg Config) (*openAIClient, error) {
	var api *openai.Client
	if cfg.BaseURL != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		oc.BaseURL = cfg.BaseURL
		api = openai.NewClientWithConfig(oc)
	} else {
		api = openai.NewClient(cfg.APIKey)
	}
	return &openAIClient{
		chat:        api,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *openAIClient) Ask(ctx context.Context, req Request) (*Completion, error) {
	const op = "llm.ask"
	if len(req.Messages) == 0 {
		return nil, capability.Errorf(capability.KindInvalidPayload, op, "messages are required")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(c.temperature),
		MaxTokens:   c.maxTokens,
	}
	if req.Temperature > 0 {
		request.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}
	if req.ExpectJSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, classifyOpenAIError(op, ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, capability.Errorf(capability.KindParse, op, "response has no choices")
	}

	text := resp.Choices[0].Message.Content
	if req.ExpectJSON {
		text = ExtractJSON(text)
	}
	return &Completion{
		Text: text,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func classifyOpenAIError(op string, ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 {
			return capability.NewError(capability.KindUpstream5xx, op, err)
		}
		return capability.NewError(capability.KindUpstream4xx, op, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 {
			return capability.NewError(capability.KindUpstream5xx, op, err)
		}
		if reqErr.HTTPStatusCode >= 400 {
			return capability.NewError(capability.KindUpstream4xx, op, err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return capability.NewError(capability.KindTimeout, op, err)
	}
	return capability.FromContext(op, ctx, err)
}
