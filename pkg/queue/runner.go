package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agentic-research/scribe/pkg/agent/executor"
	"github.com/agentic-research/scribe/pkg/agent/planner"
	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/sanitize"
	"github.com/agentic-research/scribe/pkg/services"
)

// RunStore is the subset of the run service the manager writes through.
type RunStore interface {
	SetPlan(ctx context.Context, runID string, plan *models.Plan) error
	SetFinalContent(ctx context.Context, runID, content string, artifacts map[models.ChartKind]models.ChartArtifact, counts models.ExecutionCounts) error
	UpdateStatus(ctx context.Context, runID string, to models.RunStatus, errorKind, errorMessage string) (*models.Run, error)
}

// Planner produces a validated plan for a run.
type Planner interface {
	Plan(ctx context.Context, run *models.Run) planner.Result
}

// PlanExecutor walks a plan step by step and returns the compiled outcome.
type PlanExecutor interface {
	Execute(ctx context.Context, run *models.Run, plan *models.Plan) (*executor.Outcome, error)
}

// Manager drives a claimed run from run.init to its terminal activity:
// plan, record the planning thought, execute, store the final content,
// then write the terminal status and the terminal activity. It is the
// only component that writes terminal statuses for running runs, which
// keeps the one-terminal-activity guarantee in a single place.
type Manager struct {
	runs     RunStore
	recorder ActivityRecorder
	planner  Planner
	executor PlanExecutor
}

// NewManager creates a run manager.
func NewManager(runs RunStore, recorder ActivityRecorder, pl Planner, ex PlanExecutor) *Manager {
	return &Manager{
		runs:     runs,
		recorder: recorder,
		planner:  pl,
		executor: ex,
	}
}

// Execute processes a single claimed run to completion. It always returns
// a non-nil result; the worker only logs it.
func (m *Manager) Execute(ctx context.Context, run *models.Run) *ExecutionResult {
	log := slog.With("run_id", run.ID, "mode", run.Mode)

	// 1. run.init opens the activity log
	_, err := m.recorder.Append(ctx, run.ID, models.ActivityRunInit, models.RunInitPayload{
		Mode:            run.Mode,
		Goal:            run.Goal,
		Depth:           run.Params.Depth,
		RequestedCharts: run.Params.ChartTypes,
		TemplateType:    run.Params.TemplateType,
	})
	if err != nil {
		return m.finishFailed(run, "internal", err)
	}

	// 2. Plan. Planning never fails outright — a rejected or malformed
	// proposal falls back to the deterministic plan.
	planRes := m.planner.Plan(ctx, run)
	if ctx.Err() != nil {
		return m.finishCancelled(ctx, run)
	}
	if planRes.FellBack {
		log.Warn("Planner proposal rejected, using fallback plan", "reason", planRes.Reason)
	}
	if planRes.Plan == nil {
		return m.finishFailed(run, "planner_failed", errors.New("planner returned no plan"))
	}
	plan := planRes.Plan

	// 3. Surface the plan understanding as the first thought
	_, err = m.recorder.Append(ctx, run.ID, models.ActivityThinking, models.ThinkingPayload{
		Thought:     plan.Understanding.Summary(),
		ThoughtType: models.ThoughtPlanning,
	})
	if err != nil {
		return m.finishFailed(run, "internal", err)
	}

	// 4. Persist the plan before executing it
	if err := m.runs.SetPlan(ctx, run.ID, plan); err != nil {
		return m.finishFailed(run, "internal", err)
	}

	// 5. Execute the plan
	outcome, err := m.executor.Execute(ctx, run, plan)
	if err != nil {
		if ctx.Err() != nil {
			return m.finishCancelled(ctx, run)
		}
		if errors.Is(err, executor.ErrCompileFailed) {
			return m.finishFailed(run, "compile_failed", err)
		}
		return m.finishFailed(run, "internal", err)
	}

	// 6. Store the final content before the status flips: a completed run
	// must never be observable without its content.
	err = m.runs.SetFinalContent(ctx, run.ID, outcome.FinalContent, outcome.ChartArtifacts, outcome.Counts)
	if err != nil {
		return m.finishFailed(run, "internal", err)
	}

	return m.finishCompleted(run, outcome)
}

// finishCompleted writes the completed status and the run.completed
// activity.
func (m *Manager) finishCompleted(run *models.Run, outcome *executor.Outcome) *ExecutionResult {
	metadata := run.Metadata
	metadata.ExecutionCounts = &outcome.Counts

	if m.setTerminalStatus(run, models.StatusCompleted, "", "") {
		m.appendTerminal(run.ID, models.ActivityRunCompleted, models.RunCompletedPayload{
			FinalContent: outcome.FinalContent,
			Counts:       outcome.Counts,
			Metadata:     metadata,
		})
	}

	slog.Info("Run completed",
		"run_id", run.ID,
		"findings", outcome.Counts.Findings,
		"sources", outcome.Counts.Sources,
		"charts", outcome.Counts.Charts)
	return &ExecutionResult{Status: models.StatusCompleted}
}

// finishFailed writes the failed status and the run.failed activity. The
// message is scrubbed before it is persisted or echoed to clients.
func (m *Manager) finishFailed(run *models.Run, errorKind string, cause error) *ExecutionResult {
	message := sanitize.Error(cause)
	slog.Error("Run failed", "run_id", run.ID, "error_kind", errorKind, "error", cause)

	if m.setTerminalStatus(run, models.StatusFailed, errorKind, message) {
		m.appendTerminal(run.ID, models.ActivityRunFailed, models.RunFailedPayload{
			ErrorKind: errorKind,
			Message:   message,
		})
	}
	return &ExecutionResult{Status: models.StatusFailed, Err: cause}
}

// finishCancelled writes the cancelled status and the run.cancelled
// activity. Deadline expiry lands here too: an expired run is recorded as
// cancelled, not failed.
func (m *Manager) finishCancelled(ctx context.Context, run *models.Run) *ExecutionResult {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		slog.Warn("Run deadline exceeded", "run_id", run.ID)
	} else {
		slog.Info("Run cancelled", "run_id", run.ID)
	}

	if m.setTerminalStatus(run, models.StatusCancelled, "", "") {
		m.appendTerminal(run.ID, models.ActivityRunCancelled, struct{}{})
	}
	return &ExecutionResult{Status: models.StatusCancelled, Err: ctx.Err()}
}

// setTerminalStatus flips the run to a terminal status. It reports false
// when another writer got there first, in which case the terminal
// activity must not be appended again. The run service uses its own
// write context, so an expired run context cannot block the write.
func (m *Manager) setTerminalStatus(run *models.Run, to models.RunStatus, errorKind, errorMessage string) bool {
	_, err := m.runs.UpdateStatus(context.Background(), run.ID, to, errorKind, errorMessage)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			slog.Warn("Run already terminal, skipping terminal activity", "run_id", run.ID, "status", to)
			return false
		}
		slog.Error("Failed to update terminal status", "run_id", run.ID, "status", to, "error", err)
		return false
	}
	return true
}

// appendTerminal appends the terminal activity with a background context:
// the run context is typically already cancelled or expired by the time a
// terminal activity is written.
func (m *Manager) appendTerminal(runID, kind string, payload any) {
	if _, err := m.recorder.Append(context.Background(), runID, kind, payload); err != nil {
		slog.Error("Failed to append terminal activity", "run_id", runID, "kind", kind, "error", err)
	}
}
