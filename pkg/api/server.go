// Package api implements the HTTP delivery surface: run submission and its
// mode aliases, owner-scoped reads, SSE streaming, cancel, follow-up chat,
// regenerate, and health probes.
package api

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/config"
	"github.com/agentic-research/scribe/pkg/database"
	"github.com/agentic-research/scribe/pkg/events"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/queue"
)

// RunStore is the run persistence surface the handlers consume.
// *services.RunService satisfies it.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) (*models.Run, error)
	GetRunForUser(ctx context.Context, runID, userID string) (*models.Run, error)
	ListRuns(ctx context.Context, filters models.RunFilters) ([]*models.Run, error)
	CancelQueuedRun(ctx context.Context, runID string) (*models.Run, error)
}

// ActivityStore serves the poll endpoint. *services.ActivityService
// satisfies it.
type ActivityStore interface {
	ListActivitiesSince(ctx context.Context, runID string, sinceSeq int64, limit int) ([]*models.Activity, error)
}

// ActivityPublisher appends the terminal activity the API writes itself
// when it cancels a queued run. *events.Publisher satisfies it.
type ActivityPublisher interface {
	Append(ctx context.Context, runID, kind string, payload any) (*models.Activity, error)
}

// WorkerPool is the slice of pool behavior the API needs.
// *queue.WorkerPool satisfies it.
type WorkerPool interface {
	CancelRun(runID string) bool
	Health() *queue.PoolHealth
}

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	runs       RunStore
	activities ActivityStore
	publisher  ActivityPublisher
	hub        *events.Hub
	pool       WorkerPool
	llmClient  llm.Client
	prompts    *prompt.PromptBuilder
	dbClient   *database.Client
	cfg        *config.Config

	// requireIdentity rejects requests without a proxy identity header
	// instead of falling back to the shared dev identity.
	requireIdentity bool
}

// NewServer creates the API server. SCRIBE_REQUIRE_IDENTITY=true switches
// the identity middleware from dev fallback to hard 401.
func NewServer(runs RunStore, activities ActivityStore, publisher ActivityPublisher, hub *events.Hub, pool WorkerPool, llmClient llm.Client, dbClient *database.Client, cfg *config.Config) *Server {
	return &Server{
		runs:            runs,
		activities:      activities,
		publisher:       publisher,
		hub:             hub,
		pool:            pool,
		llmClient:       llmClient,
		prompts:         prompt.NewPromptBuilder(),
		dbClient:        dbClient,
		cfg:             cfg,
		requireIdentity: os.Getenv("SCRIBE_REQUIRE_IDENTITY") == "true",
	}
}

// Routes builds the router: health probes at the root, the versioned API
// under /api/v1 behind identity resolution.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/health", s.healthHandler)
	r.GET("/ready", s.readyHandler)

	v1 := r.Group("/api/v1", s.identity())

	v1.POST("/runs", s.createRunHandler)
	// Mode aliases: same body, the path picks the mode.
	v1.POST("/research/start", s.modeAlias(models.ModeResearch))
	v1.POST("/reports/generate", s.modeAlias(models.ModeReport))
	v1.POST("/templates/generate", s.modeAlias(models.ModeTemplate))
	v1.POST("/agentic/start", s.modeAlias(models.ModeCharts))
	v1.POST("/plans/generate", s.modeAlias(models.ModePlan))

	v1.GET("/runs", s.listRunsHandler)
	v1.GET("/runs/:id", s.getRunHandler)
	v1.GET("/runs/:id/stream", s.streamRunHandler)
	v1.POST("/runs/:id/cancel", s.cancelRunHandler)
	v1.POST("/runs/:id/chat", s.chatHandler)
	v1.POST("/runs/:id/regenerate", s.regenerateHandler)

	return r
}
