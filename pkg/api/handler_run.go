package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/services"
)

// createRunHandler handles POST /api/v1/runs.
func (s *Server) createRunHandler(c *gin.Context) {
	s.submitRun(c, "")
}

// modeAlias returns the handler for a mode-specific submission alias.
// The path decides the mode; anything in the body loses.
func (s *Server) modeAlias(mode models.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.submitRun(c, mode)
	}
}

// submitRun validates a run request, inserts the queued row, and returns
// 202 immediately. A pool worker claims the run from the queue; nothing
// here waits on planning or execution.
func (s *Server) submitRun(c *gin.Context, forcedMode models.Mode) {
	// 1. Bind the request body
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if forcedMode != "" {
		req.Mode = string(forcedMode)
	}

	// 2. Enforce size limits before any parsing
	if limit := s.maxGoalBytes(); limit > 0 && len(req.Goal) > limit {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("goal exceeds maximum length of %d bytes", limit)})
		return
	}
	if limit := s.maxFileBytes(); limit > 0 {
		var total int64
		for _, f := range req.Files {
			total += int64(len(f.Content))
		}
		if total > limit {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("total file content exceeds limit of %d bytes", limit)})
			return
		}
	}

	// 3. Parse the mode-specific parameters
	depth, err := models.ParseDepth(req.Depth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chartTypes, err := models.NormalizeChartKinds(req.ChartTypes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var templateType models.TemplateType
	if req.TemplateType != "" {
		templateType, err = models.ParseTemplateType(req.TemplateType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if models.Mode(req.Mode) == models.ModeTemplate && templateType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "templateType is required for template runs"})
		return
	}

	files := make([]models.FileInput, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, models.FileInput{
			UploadID: f.UploadID,
			FileName: f.FileName,
			Content:  f.Content,
		})
	}

	// 4. Insert the queued row. Goal and mode validity are enforced by the
	// store and come back as ValidationErrors.
	run := &models.Run{
		UserID: caller(c),
		Mode:   models.Mode(req.Mode),
		Goal:   req.Goal,
		Params: models.RunParams{
			Depth:          depth,
			Focus:          req.Focus,
			TemplateType:   templateType,
			ChartTypes:     chartTypes,
			PlanFormat:     req.PlanFormat,
			AllowWebSearch: req.AllowWebSearch,
		},
		Files: files,
	}
	created, err := s.runs.CreateRun(c.Request.Context(), run)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	slog.Info("Run queued", "run_id", created.ID, "mode", created.Mode)

	// 5. The wire status is "running": queueing is invisible to clients.
	c.JSON(http.StatusAccepted, &CreateRunResponse{
		RunID:  created.ID,
		Status: string(models.StatusRunning),
	})
}

// getRunHandler handles GET /api/v1/runs/:id (poll).
// Returns the run status plus every activity with seq > sinceSeq; the
// caller loops with nextCursor until terminal.
func (s *Server) getRunHandler(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id is required"})
		return
	}

	var sinceSeq int64
	if v := c.Query("sinceSeq"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sinceSeq: must be a non-negative integer"})
			return
		}
		sinceSeq = parsed
	}

	run, err := s.runs.GetRunForUser(c.Request.Context(), runID, caller(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	activities, err := s.activities.ListActivitiesSince(c.Request.Context(), runID, sinceSeq, 0)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if activities == nil {
		activities = []*models.Activity{}
	}

	nextCursor := sinceSeq
	if len(activities) > 0 {
		nextCursor = activities[len(activities)-1].Seq
	}

	resp := &PollResponse{
		Status:     run.Status,
		Activities: activities,
		NextCursor: nextCursor,
		Terminal:   run.Status.IsTerminal(),
	}
	if run.Status == models.StatusCompleted {
		resp.FinalContent = run.FinalContent
	}
	if run.Status == models.StatusFailed {
		resp.ErrorKind = run.ErrorKind
		resp.ErrorMessage = run.ErrorMessage
	}

	c.JSON(http.StatusOK, resp)
}

// listRunsHandler handles GET /api/v1/runs.
// Owner-scoped, newest first. Invalid status/mode filters are rejected;
// malformed limit/offset fall back to the store defaults.
func (s *Server) listRunsHandler(c *gin.Context) {
	filters := models.RunFilters{UserID: caller(c)}

	if v := c.Query("status"); v != "" {
		switch status := models.RunStatus(v); status {
		case models.StatusQueued, models.StatusRunning, models.StatusCompleted,
			models.StatusFailed, models.StatusCancelled:
			filters.Status = status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + v})
			return
		}
	}
	if v := c.Query("mode"); v != "" {
		mode, err := models.ParseMode(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filters.Mode = mode
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filters.Offset = n
		}
	}

	runs, err := s.runs.ListRuns(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummaryFrom(run))
	}

	c.JSON(http.StatusOK, &ListRunsResponse{Runs: summaries, Count: len(summaries)})
}

// cancelRunHandler handles POST /api/v1/runs/:id/cancel.
//
// Queued runs transition straight to cancelled here, with the terminal
// activity appended by the API. Running runs get their pool context
// cancelled; the owning manager observes the cancel and writes the
// terminal state. Terminal runs are a conflict.
func (s *Server) cancelRunHandler(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id is required"})
		return
	}

	run, err := s.runs.GetRunForUser(c.Request.Context(), runID, caller(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	switch run.Status {
	case models.StatusQueued:
		_, err := s.runs.CancelQueuedRun(c.Request.Context(), runID)
		switch {
		case errors.Is(err, services.ErrInvalidTransition):
			// A worker claimed the run between the read and the guarded
			// update. Cancel it like any running run.
			s.cancelThroughPool(runID)
		case err != nil:
			respondServiceError(c, err)
			return
		default:
			s.appendCancelActivity(runID)
		}
	case models.StatusRunning:
		s.cancelThroughPool(runID)
	default:
		respondServiceError(c, fmt.Errorf("%w: %s to %s",
			services.ErrInvalidTransition, run.Status, models.StatusCancelled))
		return
	}

	c.JSON(http.StatusAccepted, &CancelResponse{
		RunID:   runID,
		Status:  string(models.StatusCancelled),
		Message: "run cancellation requested",
	})
}

// cancelThroughPool cancels the run's pool context on this pod. A run
// claimed by another pod is not registered here and keeps going until its
// own deadline.
func (s *Server) cancelThroughPool(runID string) {
	if s.pool == nil {
		return
	}
	if !s.pool.CancelRun(runID) {
		slog.Warn("Run not registered on this pod, cancel lands at the run deadline", "run_id", runID)
	}
}

// appendCancelActivity writes the terminal activity for a queued run
// cancelled by the API. Uses a fresh context: the terminal marker must
// land even when the client has already disconnected.
func (s *Server) appendCancelActivity(runID string) {
	if _, err := s.publisher.Append(context.Background(), runID, models.ActivityRunCancelled, struct{}{}); err != nil {
		slog.Error("Failed to append cancel activity", "run_id", runID, "error", err)
	}
}

// maxGoalBytes returns the configured goal size limit, 0 when unset.
func (s *Server) maxGoalBytes() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.Limits.MaxGoalBytes
}

// maxFileBytes returns the configured total file content limit, 0 when unset.
func (s *Server) maxFileBytes() int64 {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.Limits.MaxFileBytes
}
