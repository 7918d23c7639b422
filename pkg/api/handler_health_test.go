package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/queue"
)

func TestHealth_PoolStates(t *testing.T) {
	t.Run("healthy pool", func(t *testing.T) {
		s := &Server{pool: &mockPool{health: &queue.PoolHealth{IsHealthy: true}}}
		c, rec := testContext(t, http.MethodGet, "/health", "")
		s.healthHandler(c)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "healthy", resp.Checks["worker_pool"].Status)
	})

	t.Run("unhealthy pool degrades without failing the probe", func(t *testing.T) {
		s := &Server{pool: &mockPool{health: &queue.PoolHealth{
			IsHealthy: false,
			DBError:   "connection refused",
		}}}
		c, rec := testContext(t, http.MethodGet, "/health", "")
		s.healthHandler(c)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "degraded", resp.Checks["worker_pool"].Status)
		assert.Equal(t, "connection refused", resp.Checks["worker_pool"].Message)
	})

	t.Run("no pool wired", func(t *testing.T) {
		s := &Server{}
		c, rec := testContext(t, http.MethodGet, "/health", "")
		s.healthHandler(c)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.NotContains(t, resp.Checks, "worker_pool")
	})
}

func TestReady_NoDatabase(t *testing.T) {
	s := &Server{}
	c, rec := testContext(t, http.MethodGet, "/ready", "")
	s.readyHandler(c)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
}
