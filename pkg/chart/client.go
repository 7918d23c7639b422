// Package chart provides the chart-rendering capability: typed payloads
// shape-validated locally, rendered to images by the chart service.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentic-research/scribe/pkg/capability"
	"github.com/agentic-research/scribe/pkg/models"
)

// Artifact is one successful render.
type Artifact struct {
	Kind     models.ChartKind
	ImageURL string
}

// Client is the chart capability surface the executor depends on.
type Client interface {
	Render(ctx context.Context, kind models.ChartKind, payload Payload) (*Artifact, error)
}

// Config parameterizes the chart client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

const defaultTimeout = 60 * time.Second

type httpClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewClient builds a chart client for the configured rendering service.
func NewClient(cfg Config) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chart: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

type renderRequest struct {
	Kind    models.ChartKind `json:"kind"`
	Payload Payload          `json:"payload"`
}

type renderResponse struct {
	ImageURL string `json:"imageUrl"`
	Error    string `json:"error,omitempty"`
}

// Render validates the payload and posts it to the rendering service.
// Errors carry one of the kinds timeout, invalid_payload or
// render_error; upstream and transport failures fold into render_error
// because the caller treats them all as "this chart did not render".
func (c *httpClient) Render(ctx context.Context, kind models.ChartKind, payload Payload) (*Artifact, error) {
	const op = "chart.render"

	if err := Validate(kind, &payload); err != nil {
		return nil, capability.NewError(capability.KindInvalidPayload, op, err)
	}

	body, err := json.Marshal(renderRequest{Kind: kind, Payload: payload})
	if err != nil {
		return nil, capability.NewError(capability.KindInvalidPayload, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, capability.NewError(capability.KindRender, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cerr := capability.FromContext(op, ctx, err)
		if capability.IsTimeout(cerr) || errors.Is(cerr, context.Canceled) {
			return nil, cerr
		}
		return nil, capability.NewError(capability.KindRender, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, capability.Errorf(capability.KindRender, op,
			"chart service returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, capability.Errorf(capability.KindRender, op, "undecodable chart service response: %v", err)
	}
	if out.Error != "" {
		return nil, capability.Errorf(capability.KindRender, op, "chart service error: %s", out.Error)
	}
	if out.ImageURL == "" {
		return nil, capability.Errorf(capability.KindRender, op, "chart service response missing imageUrl")
	}

	return &Artifact{Kind: kind, ImageURL: out.ImageURL}, nil
}

// readErrorBody extracts a short error description from a non-200
// response, preferring the service's JSON error field.
func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil || len(raw) == 0 {
		return "no body"
	}
	var out renderResponse
	if json.Unmarshal(raw, &out) == nil && out.Error != "" {
		return out.Error
	}
	return strings.TrimSpace(string(raw))
}
