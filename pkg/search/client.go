// Package search provides the web-search capability: a keyword query against
// the configured search API followed by one LLM call that structures the raw
// hits into findings and sources.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentic-research/scribe/pkg/capability"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

// Result is the structured outcome of one search.
type Result struct {
	Summary  string
	Findings []models.Finding
	Sources  []models.Source
}

// Client is the search capability surface the executor depends on.
type Client interface {
	Search(ctx context.Context, query string) (*Result, error)
}

// Config parameterizes the search client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // search hop only; structuring uses the LLM deadline
	MaxResults int
}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxResults = 8
)

type webClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxResults int
	llm        llm.Client
}

// NewClient builds a search client backed by the given LLM for structuring.
func NewClient(cfg Config, llmClient llm.Client) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("search: base URL is required")
	}
	if llmClient == nil {
		return nil, fmt.Errorf("search: llm client is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &webClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		llm:        llmClient,
	}, nil
}

// rawHit is one keyword-search result as returned by the search API.
type rawHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Results []rawHit `json:"results"`
}

func (c *webClient) Search(ctx context.Context, query string) (*Result, error) {
	const op = "search.query"
	if strings.TrimSpace(query) == "" {
		return nil, capability.Errorf(capability.KindUpstream4xx, op, "query is empty")
	}

	hits, err := c.fetchHits(ctx, op, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, capability.Errorf(capability.KindUpstream4xx, op, "no results for %q", query)
	}

	return c.structureHits(ctx, op, query, hits)
}

func (c *webClient) fetchHits(ctx context.Context, op, query string) ([]rawHit, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&count=%d", c.baseURL, url.QueryEscape(query), c.maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, capability.NewError(capability.KindTransport, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, capability.FromContext(op, ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, capability.Errorf(capability.KindUpstream5xx, op, "search API returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, capability.Errorf(capability.KindUpstream4xx, op, "search API returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, capability.NewError(capability.KindParse, op, err)
	}
	if len(body.Results) > c.maxResults {
		body.Results = body.Results[:c.maxResults]
	}
	return body.Results, nil
}

// structuredOutput is the JSON shape the structuring prompt requests.
type structuredOutput struct {
	Summary  string `json:"summary"`
	Findings []struct {
		Text string `json:"text"`
		URL  string `json:"url"`
	} `json:"findings"`
	Sources []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"sources"`
}

func (c *webClient) structureHits(ctx context.Context, op, query string, hits []rawHit) (*Result, error) {
	completion, err := c.llm.Ask(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: structuringSystemPrompt},
			{Role: llm.RoleUser, Content: buildStructuringPrompt(query, hits)},
		},
		ExpectJSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("structuring search results: %w", err)
	}

	var out structuredOutput
	if err := json.Unmarshal([]byte(completion.Text), &out); err != nil {
		return nil, capability.NewError(capability.KindParse, op, err)
	}
	if len(out.Findings) == 0 {
		return nil, capability.Errorf(capability.KindParse, op, "structuring produced no findings")
	}

	result := &Result{Summary: strings.TrimSpace(out.Summary)}
	for _, f := range out.Findings {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		result.Findings = append(result.Findings, models.Finding{
			Text:      text,
			Origin:    models.OriginWebSearch,
			SourceRef: strings.TrimSpace(f.URL),
		})
	}
	if len(result.Findings) == 0 {
		return nil, capability.Errorf(capability.KindParse, op, "structuring produced no usable findings")
	}

	for _, s := range out.Sources {
		if strings.TrimSpace(s.URL) == "" {
			continue
		}
		result.Sources = append(result.Sources, models.Source{
			URL:    strings.TrimSpace(s.URL),
			Title:  strings.TrimSpace(s.Title),
			Origin: models.OriginWebSearch,
		})
	}
	// The model occasionally omits the source list; fall back to the raw hits.
	if len(result.Sources) == 0 {
		for i, h := range hits {
			if i >= 6 || h.URL == "" {
				break
			}
			result.Sources = append(result.Sources, models.Source{
				URL:    h.URL,
				Title:  h.Title,
				Origin: models.OriginWebSearch,
			})
		}
	}
	return result, nil
}

const structuringSystemPrompt = `You turn raw web search results into research findings.
Respond with a single JSON object:
{"summary": "<2-3 sentence synthesis>",
 "findings": [{"text": "<one specific, complete sentence>", "url": "<supporting result url>"}],
 "sources": [{"title": "<result title>", "url": "<canonical url>"}]}
Produce 10-15 findings grounded only in the results given. Every finding must
be a complete sentence stating one specific fact. List 3-6 sources, most
relevant first. No markdown, no commentary.`

func buildStructuringPrompt(query string, hits []rawHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search query: %s\n\nResults:\n", query)
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   %s\n", i+1, h.Title, h.URL, h.Snippet)
	}
	return b.String()
}
