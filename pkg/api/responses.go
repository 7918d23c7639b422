package api

import (
	"time"

	"github.com/agentic-research/scribe/pkg/database"
	"github.com/agentic-research/scribe/pkg/models"
)

// CreateRunResponse is returned by POST /api/v1/runs and the aliases.
type CreateRunResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// PollResponse is returned by GET /api/v1/runs/:id.
type PollResponse struct {
	Status       models.RunStatus   `json:"status"`
	Activities   []*models.Activity `json:"activities"`
	NextCursor   int64              `json:"nextCursor"`
	Terminal     bool               `json:"terminal"`
	FinalContent *string            `json:"finalContent,omitempty"`
	ErrorKind    string             `json:"errorKind,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
}

// RunSummary is one row of GET /api/v1/runs. Final content is omitted:
// dashboards only need lifecycle fields.
type RunSummary struct {
	ID          string           `json:"id"`
	Mode        models.Mode      `json:"mode"`
	Goal        string           `json:"goal"`
	Status      models.RunStatus `json:"status"`
	ErrorKind   string           `json:"errorKind,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// runSummaryFrom projects a run onto its listing row.
func runSummaryFrom(run *models.Run) RunSummary {
	return RunSummary{
		ID:          run.ID,
		Mode:        run.Mode,
		Goal:        run.Goal,
		Status:      run.Status,
		ErrorKind:   run.ErrorKind,
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// ListRunsResponse is returned by GET /api/v1/runs.
type ListRunsResponse struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// CancelResponse is returned by POST /api/v1/runs/:id/cancel.
type CancelResponse struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ChatResponse is returned by POST /api/v1/runs/:id/chat.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// RegenerateResponse is returned by POST /api/v1/runs/:id/regenerate.
type RegenerateResponse struct {
	NewRunID string `json:"newRunId"`
	Status   string `json:"status"`
}

// HealthCheck is one named probe inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	Ready    bool                   `json:"ready"`
	Database *database.HealthStatus `json:"database,omitempty"`
}
