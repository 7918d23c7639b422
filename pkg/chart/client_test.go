package chart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/capability"
	"github.com/agentic-research/scribe/pkg/models"
)

func renderServer(t *testing.T, resp renderResponse, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/render", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: baseURL, APIKey: "test-key"})
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorContains(t, err, "base URL is required")
}

func TestRenderSuccess(t *testing.T) {
	var got renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/render", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(renderResponse{ImageURL: "https://charts.local/img/abc.png"}))
	}))
	defer srv.Close()

	// Trailing slash on the base URL must not produce a double-slash path.
	c := newTestClient(t, srv.URL+"/")

	payload := SamplePayload(models.ChartBar)
	artifact, err := c.Render(context.Background(), models.ChartBar, payload)
	require.NoError(t, err)

	assert.Equal(t, models.ChartBar, artifact.Kind)
	assert.Equal(t, "https://charts.local/img/abc.png", artifact.ImageURL)
	assert.Equal(t, models.ChartBar, got.Kind)
	assert.Equal(t, payload.Title, got.Payload.Title)
	assert.Equal(t, payload.Categories, got.Payload.Categories)
}

func TestRenderErrors(t *testing.T) {
	t.Run("invalid payload skips the renderer", func(t *testing.T) {
		c := newTestClient(t, "http://unused.local")
		_, err := c.Render(context.Background(), models.ChartLine, Payload{})
		assert.Equal(t, capability.KindInvalidPayload, capability.KindOf(err))
		assert.ErrorContains(t, err, "categories are required")
	})

	t.Run("unknown kind", func(t *testing.T) {
		c := newTestClient(t, "http://unused.local")
		_, err := c.Render(context.Background(), models.ChartKind("venn"), Payload{})
		assert.Equal(t, capability.KindInvalidPayload, capability.KindOf(err))
	})

	t.Run("server error", func(t *testing.T) {
		srv := renderServer(t, renderResponse{}, http.StatusInternalServerError)
		defer srv.Close()
		c := newTestClient(t, srv.URL)
		_, err := c.Render(context.Background(), models.ChartPie, SamplePayload(models.ChartPie))
		assert.Equal(t, capability.KindRender, capability.KindOf(err))
	})

	t.Run("renderer reports failure", func(t *testing.T) {
		srv := renderServer(t, renderResponse{Error: "unsupported palette"}, http.StatusOK)
		defer srv.Close()
		c := newTestClient(t, srv.URL)
		_, err := c.Render(context.Background(), models.ChartPie, SamplePayload(models.ChartPie))
		assert.Equal(t, capability.KindRender, capability.KindOf(err))
		assert.ErrorContains(t, err, "unsupported palette")
	})

	t.Run("missing image url", func(t *testing.T) {
		srv := renderServer(t, renderResponse{}, http.StatusOK)
		defer srv.Close()
		c := newTestClient(t, srv.URL)
		_, err := c.Render(context.Background(), models.ChartPie, SamplePayload(models.ChartPie))
		assert.Equal(t, capability.KindRender, capability.KindOf(err))
	})

	t.Run("unreachable host folds into render error", func(t *testing.T) {
		c := newTestClient(t, "http://127.0.0.1:1")
		_, err := c.Render(context.Background(), models.ChartPie, SamplePayload(models.ChartPie))
		assert.Equal(t, capability.KindRender, capability.KindOf(err))
	})

	t.Run("deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		c := newTestClient(t, srv.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.Render(ctx, models.ChartPie, SamplePayload(models.ChartPie))
		assert.Equal(t, capability.KindTimeout, capability.KindOf(err))
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		c := newTestClient(t, srv.URL)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)
		_, err := c.Render(ctx, models.ChartPie, SamplePayload(models.ChartPie))
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
