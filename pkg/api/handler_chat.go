package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

// maxQuestionLength caps follow-up questions and regenerate feedback.
const maxQuestionLength = 100_000

// regenerateContextBytes caps how much of the original output is folded
// into a regenerated goal.
const regenerateContextBytes = 2000

// chatHandler handles POST /api/v1/runs/:id/chat.
// One synchronous LLM call over the completed run's final content.
// Nothing about the exchange is persisted.
func (s *Server) chatHandler(c *gin.Context) {
	// 1. Validate run ID
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id is required"})
		return
	}

	// 2. Bind and validate the question
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	if len(req.Question) > maxQuestionLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("question exceeds maximum length of %d characters", maxQuestionLength)})
		return
	}

	// 3. Load the run, owner-scoped; follow-ups need the final content
	run, err := s.runs.GetRunForUser(c.Request.Context(), runID, caller(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if run.Status != models.StatusCompleted || run.FinalContent == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "follow-up questions are only available for completed runs"})
		return
	}

	// 4. One synchronous completion, bounded by the LLM call deadline
	ctx, cancel := s.llmContext(c.Request.Context())
	defer cancel()

	messages := s.prompts.BuildChatMessages(run, *run.FinalContent, req.Question)
	completion, err := s.llmClient.Ask(ctx, llm.Request{Messages: messages})
	if err != nil {
		slog.Error("Follow-up completion failed", "run_id", runID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer the question"})
		return
	}

	c.JSON(http.StatusOK, &ChatResponse{Answer: completion.Text})
}

// regenerateHandler handles POST /api/v1/runs/:id/regenerate.
// Folds the caller's feedback and a slice of the original output into a
// new goal and enqueues it as a fresh run inheriting the original's mode
// and parameters.
func (s *Server) regenerateHandler(c *gin.Context) {
	// 1. Validate run ID
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id is required"})
		return
	}

	// 2. Bind and validate the feedback
	var req RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback is required"})
		return
	}
	if len(req.Feedback) > maxQuestionLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("feedback exceeds maximum length of %d characters", maxQuestionLength)})
		return
	}

	// 3. Load the run, owner-scoped; regeneration needs the final content
	run, err := s.runs.GetRunForUser(c.Request.Context(), runID, caller(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if run.Status != models.StatusCompleted || run.FinalContent == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "regeneration is only available for completed runs"})
		return
	}

	// 4. Synthesize the new goal from the old output
	content := *run.FinalContent
	if len(content) > regenerateContextBytes {
		content = strings.ToValidUTF8(content[:regenerateContextBytes], "")
	}
	goal := fmt.Sprintf("%s. Additional feedback: %s. Original output context: %s",
		run.Goal, req.Feedback, content)

	// 5. Enqueue the new run with the inherited parameters
	newRun := &models.Run{
		UserID:   run.UserID,
		OrgID:    run.OrgID,
		Mode:     run.Mode,
		Goal:     goal,
		Params:   run.Params,
		Files:    run.Files,
		Metadata: models.RunMetadata{RegeneratedFrom: run.ID},
	}
	created, err := s.runs.CreateRun(c.Request.Context(), newRun)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	slog.Info("Run regenerated", "run_id", created.ID, "regenerated_from", run.ID)

	c.JSON(http.StatusAccepted, &RegenerateResponse{
		NewRunID: created.ID,
		Status:   string(models.StatusRunning),
	})
}

// llmContext bounds a synchronous completion with the configured LLM call
// deadline regardless of how the injected client was built.
func (s *Server) llmContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg != nil && s.cfg.LLM.Timeout > 0 {
		return context.WithTimeout(parent, s.cfg.LLM.Timeout)
	}
	return context.WithCancel(parent)
}
