package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/capability"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

type fakeLLM struct {
	text string
	err  error
	got  llm.Request
}

func (f *fakeLLM) Ask(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text}, nil
}

func searchServer(t *testing.T, hits []rawHit, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(searchResponse{Results: hits}))
	}))
}

func newTestClient(t *testing.T, baseURL string, llmClient llm.Client) Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: baseURL, APIKey: "test-key"}, llmClient)
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{}, &fakeLLM{})
	assert.ErrorContains(t, err, "base URL is required")

	_, err = NewClient(Config{BaseURL: "http://search.local"}, nil)
	assert.ErrorContains(t, err, "llm client is required")
}

func TestSearchSuccess(t *testing.T) {
	hits := []rawHit{
		{Title: "Go 1.25 released", URL: "https://go.dev/blog/go1.25", Snippet: "The release adds..."},
		{Title: "Go survey", URL: "https://go.dev/survey", Snippet: "Developers report..."},
	}
	srv := searchServer(t, hits, http.StatusOK)
	defer srv.Close()

	structured := `{
		"summary": "Go 1.25 shipped with runtime improvements.",
		"findings": [
			{"text": "Go 1.25 was released in August.", "url": "https://go.dev/blog/go1.25"},
			{"text": "The release improves GC pause times.", "url": "https://go.dev/blog/go1.25"}
		],
		"sources": [
			{"title": "Go 1.25 released", "url": "https://go.dev/blog/go1.25"}
		]
	}`
	fake := &fakeLLM{text: structured}
	c := newTestClient(t, srv.URL, fake)

	result, err := c.Search(context.Background(), "go 1.25 release")
	require.NoError(t, err)

	assert.Equal(t, "Go 1.25 shipped with runtime improvements.", result.Summary)
	require.Len(t, result.Findings, 2)
	assert.Equal(t, models.OriginWebSearch, result.Findings[0].Origin)
	assert.Equal(t, "https://go.dev/blog/go1.25", result.Findings[0].SourceRef)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Go 1.25 released", result.Sources[0].Title)

	assert.True(t, fake.got.ExpectJSON)
	require.Len(t, fake.got.Messages, 2)
	assert.Contains(t, fake.got.Messages[1].Content, "go 1.25 release")
	assert.Contains(t, fake.got.Messages[1].Content, "https://go.dev/survey")
}

func TestSearchSourceFallback(t *testing.T) {
	hits := []rawHit{
		{Title: "First", URL: "https://example.com/a", Snippet: "..."},
		{Title: "Second", URL: "https://example.com/b", Snippet: "..."},
	}
	srv := searchServer(t, hits, http.StatusOK)
	defer srv.Close()

	fake := &fakeLLM{text: `{"summary":"s","findings":[{"text":"A fact.","url":""}],"sources":[]}`}
	c := newTestClient(t, srv.URL, fake)

	result, err := c.Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "https://example.com/a", result.Sources[0].URL)
	assert.Equal(t, models.OriginWebSearch, result.Sources[0].Origin)
}

func TestSearchErrors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		c := newTestClient(t, "http://unused.local", &fakeLLM{})
		_, err := c.Search(context.Background(), "  ")
		assert.Equal(t, capability.KindUpstream4xx, capability.KindOf(err))
	})

	t.Run("server error", func(t *testing.T) {
		srv := searchServer(t, nil, http.StatusBadGateway)
		defer srv.Close()
		c := newTestClient(t, srv.URL, &fakeLLM{})
		_, err := c.Search(context.Background(), "q")
		assert.Equal(t, capability.KindUpstream5xx, capability.KindOf(err))
	})

	t.Run("rejected request", func(t *testing.T) {
		srv := searchServer(t, nil, http.StatusForbidden)
		defer srv.Close()
		c := newTestClient(t, srv.URL, &fakeLLM{})
		_, err := c.Search(context.Background(), "q")
		assert.Equal(t, capability.KindUpstream4xx, capability.KindOf(err))
	})

	t.Run("no hits", func(t *testing.T) {
		srv := searchServer(t, []rawHit{}, http.StatusOK)
		defer srv.Close()
		c := newTestClient(t, srv.URL, &fakeLLM{})
		_, err := c.Search(context.Background(), "q")
		assert.Equal(t, capability.KindUpstream4xx, capability.KindOf(err))
	})

	t.Run("unreachable host", func(t *testing.T) {
		c := newTestClient(t, "http://127.0.0.1:1", &fakeLLM{})
		_, err := c.Search(context.Background(), "q")
		assert.Equal(t, capability.KindTransport, capability.KindOf(err))
	})

	t.Run("bad structuring json", func(t *testing.T) {
		srv := searchServer(t, []rawHit{{Title: "t", URL: "https://e.com"}}, http.StatusOK)
		defer srv.Close()
		c := newTestClient(t, srv.URL, &fakeLLM{text: "not json"})
		_, err := c.Search(context.Background(), "q")
		assert.Equal(t, capability.KindParse, capability.KindOf(err))
	})

	t.Run("empty findings", func(t *testing.T) {
		srv := searchServer(t, []rawHit{{Title: "t", URL: "https://e.com"}}, http.StatusOK)
		defer srv.Close()
		c := newTestClient(t, srv.URL, &fakeLLM{text: `{"summary":"s","findings":[],"sources":[]}`})
		_, err := c.Search(context.Background(), "q")
		assert.Equal(t, capability.KindParse, capability.KindOf(err))
	})

	t.Run("llm failure passes through", func(t *testing.T) {
		srv := searchServer(t, []rawHit{{Title: "t", URL: "https://e.com"}}, http.StatusOK)
		defer srv.Close()
		llmErr := capability.NewError(capability.KindTimeout, "llm.ask", context.DeadlineExceeded)
		c := newTestClient(t, srv.URL, &fakeLLM{err: llmErr})
		_, err := c.Search(context.Background(), "q")
		assert.Equal(t, capability.KindTimeout, capability.KindOf(err))
	})
}
