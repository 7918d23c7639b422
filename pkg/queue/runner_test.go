package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/agent/executor"
	"github.com/agentic-research/scribe/pkg/agent/planner"
	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/sanitize"
	"github.com/agentic-research/scribe/pkg/services"
)

type recordedActivity struct {
	kind    string
	payload any
}

type mockRecorder struct {
	activities []recordedActivity
	failOn     string
	seq        int64
}

func (m *mockRecorder) Append(ctx context.Context, runID, kind string, payload any) (*models.Activity, error) {
	if m.failOn != "" && kind == m.failOn {
		return nil, fmt.Errorf("insert activity: connection refused")
	}
	m.seq++
	m.activities = append(m.activities, recordedActivity{kind: kind, payload: payload})
	return &models.Activity{RunID: runID, Seq: m.seq, Kind: kind}, nil
}

func (m *mockRecorder) kinds() []string {
	out := make([]string, 0, len(m.activities))
	for _, a := range m.activities {
		out = append(out, a.kind)
	}
	return out
}

type statusChange struct {
	status       models.RunStatus
	errorKind    string
	errorMessage string
}

type mockRunStore struct {
	plans           map[string]*models.Plan
	statusChanges   []statusChange
	finalContent    string
	finalCounts     models.ExecutionCounts
	setFinalCalled  bool
	setPlanErr      error
	setFinalErr     error
	updateStatusErr error
}

func (m *mockRunStore) SetPlan(ctx context.Context, runID string, plan *models.Plan) error {
	if m.setPlanErr != nil {
		return m.setPlanErr
	}
	if m.plans == nil {
		m.plans = make(map[string]*models.Plan)
	}
	m.plans[runID] = plan
	return nil
}

func (m *mockRunStore) SetFinalContent(ctx context.Context, runID, content string, artifacts map[models.ChartKind]models.ChartArtifact, counts models.ExecutionCounts) error {
	if m.setFinalErr != nil {
		return m.setFinalErr
	}
	m.setFinalCalled = true
	m.finalContent = content
	m.finalCounts = counts
	return nil
}

func (m *mockRunStore) UpdateStatus(ctx context.Context, runID string, to models.RunStatus, errorKind, errorMessage string) (*models.Run, error) {
	if m.updateStatusErr != nil {
		return nil, m.updateStatusErr
	}
	m.statusChanges = append(m.statusChanges, statusChange{status: to, errorKind: errorKind, errorMessage: errorMessage})
	return &models.Run{ID: runID, Status: to}, nil
}

type mockPlanner struct {
	result planner.Result
	called bool
}

func (m *mockPlanner) Plan(ctx context.Context, run *models.Run) planner.Result {
	m.called = true
	return m.result
}

type mockPlanExecutor struct {
	outcome   *executor.Outcome
	err       error
	onExecute func(ctx context.Context)
	gotPlan   *models.Plan
}

func (m *mockPlanExecutor) Execute(ctx context.Context, run *models.Run, plan *models.Plan) (*executor.Outcome, error) {
	m.gotPlan = plan
	if m.onExecute != nil {
		m.onExecute(ctx)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func managerRun() *models.Run {
	return &models.Run{
		ID:     "run-1",
		UserID: "alice@example.com",
		Mode:   models.ModeReport,
		Goal:   "Competitive landscape of the EV charging market",
		Status: models.StatusRunning,
		Params: models.RunParams{
			Depth:      models.DepthShort,
			ChartTypes: []models.ChartKind{models.ChartBar},
		},
	}
}

func managerPlan() *models.Plan {
	return &models.Plan{
		Understanding: models.Understanding{
			CoreSubject: "EV charging market",
			UserGoal:    "map the competitive landscape",
		},
		ToolCalls: []models.ToolCall{
			{Tool: models.ToolSearchWeb},
			{Tool: models.ToolCompile},
		},
	}
}

func managerOutcome() *executor.Outcome {
	return &executor.Outcome{
		FinalContent: "## Executive Summary\nGrowth is concentrated in fast charging.\n",
		Counts:       models.ExecutionCounts{Findings: 4, Sources: 2, Charts: 1},
	}
}

func TestManagerExecute_CompletedFlow(t *testing.T) {
	store := &mockRunStore{}
	rec := &mockRecorder{}
	plan := managerPlan()
	pl := &mockPlanner{result: planner.Result{Plan: plan}}
	ex := &mockPlanExecutor{outcome: managerOutcome()}
	m := NewManager(store, rec, pl, ex)

	result := m.Execute(context.Background(), managerRun())

	require.NotNil(t, result)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.NoError(t, result.Err)

	require.Equal(t, []string{
		models.ActivityRunInit,
		models.ActivityThinking,
		models.ActivityRunCompleted,
	}, rec.kinds())

	init := rec.activities[0].payload.(models.RunInitPayload)
	assert.Equal(t, models.ModeReport, init.Mode)
	assert.Equal(t, "Competitive landscape of the EV charging market", init.Goal)
	assert.Equal(t, models.DepthShort, init.Depth)
	assert.Equal(t, []models.ChartKind{models.ChartBar}, init.RequestedCharts)

	thinking := rec.activities[1].payload.(models.ThinkingPayload)
	assert.Equal(t, "EV charging market: map the competitive landscape", thinking.Thought)
	assert.Equal(t, models.ThoughtPlanning, thinking.ThoughtType)

	completed := rec.activities[2].payload.(models.RunCompletedPayload)
	assert.Equal(t, "## Executive Summary\nGrowth is concentrated in fast charging.\n", completed.FinalContent)
	assert.Equal(t, models.ExecutionCounts{Findings: 4, Sources: 2, Charts: 1}, completed.Counts)
	require.NotNil(t, completed.Metadata.ExecutionCounts)
	assert.Equal(t, 4, completed.Metadata.ExecutionCounts.Findings)

	// Plan persisted before execution, content stored before the flip
	assert.Same(t, plan, store.plans["run-1"])
	assert.Same(t, plan, ex.gotPlan)
	assert.True(t, store.setFinalCalled)
	assert.Equal(t, completed.FinalContent, store.finalContent)

	require.Len(t, store.statusChanges, 1)
	assert.Equal(t, models.StatusCompleted, store.statusChanges[0].status)
	assert.Empty(t, store.statusChanges[0].errorKind)
}

func TestManagerExecute_PlannerFellBackStillCompletes(t *testing.T) {
	store := &mockRunStore{}
	rec := &mockRecorder{}
	pl := &mockPlanner{result: planner.Result{
		Plan:     managerPlan(),
		FellBack: true,
		Reason:   `unknown tool "browse_website"`,
	}}
	ex := &mockPlanExecutor{outcome: managerOutcome()}
	m := NewManager(store, rec, pl, ex)

	result := m.Execute(context.Background(), managerRun())

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Contains(t, rec.kinds(), models.ActivityRunCompleted)
}

func TestManagerExecute_CompileFailureMarksRunFailed(t *testing.T) {
	store := &mockRunStore{}
	rec := &mockRecorder{}
	pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}
	ex := &mockPlanExecutor{err: fmt.Errorf("%w: drafting Overview: empty completion", executor.ErrCompileFailed)}
	m := NewManager(store, rec, pl, ex)

	result := m.Execute(context.Background(), managerRun())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, executor.ErrCompileFailed)

	require.Len(t, store.statusChanges, 1)
	assert.Equal(t, models.StatusFailed, store.statusChanges[0].status)
	assert.Equal(t, "compile_failed", store.statusChanges[0].errorKind)

	kinds := rec.kinds()
	require.Equal(t, models.ActivityRunFailed, kinds[len(kinds)-1])
	failed := rec.activities[len(rec.activities)-1].payload.(models.RunFailedPayload)
	assert.Equal(t, "compile_failed", failed.ErrorKind)
	assert.Contains(t, failed.Message, "compile failed")
	assert.False(t, store.setFinalCalled)
}

func TestManagerExecute_ExecutorFailureMarksRunFailed(t *testing.T) {
	store := &mockRunStore{}
	rec := &mockRecorder{}
	pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}
	ex := &mockPlanExecutor{err: errors.New("recording tool.call: connection refused")}
	m := NewManager(store, rec, pl, ex)

	result := m.Execute(context.Background(), managerRun())

	assert.Equal(t, models.StatusFailed, result.Status)
	require.Len(t, store.statusChanges, 1)
	assert.Equal(t, "internal", store.statusChanges[0].errorKind)

	failed := rec.activities[len(rec.activities)-1].payload.(models.RunFailedPayload)
	assert.Equal(t, "internal", failed.ErrorKind)
	assert.Contains(t, failed.Message, "connection refused")
}

func TestManagerExecute_Cancellation(t *testing.T) {
	t.Run("cancelled mid-execution", func(t *testing.T) {
		store := &mockRunStore{}
		rec := &mockRecorder{}
		pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}

		ctx, cancel := context.WithCancel(context.Background())
		ex := &mockPlanExecutor{
			onExecute: func(context.Context) { cancel() },
			err:       context.Canceled,
		}
		m := NewManager(store, rec, pl, ex)

		result := m.Execute(ctx, managerRun())

		assert.Equal(t, models.StatusCancelled, result.Status)
		assert.ErrorIs(t, result.Err, context.Canceled)

		require.Equal(t, []string{
			models.ActivityRunInit,
			models.ActivityThinking,
			models.ActivityRunCancelled,
		}, rec.kinds())

		require.Len(t, store.statusChanges, 1)
		assert.Equal(t, models.StatusCancelled, store.statusChanges[0].status)
		assert.Empty(t, store.statusChanges[0].errorKind)
	})

	t.Run("deadline expired", func(t *testing.T) {
		store := &mockRunStore{}
		rec := &mockRecorder{}
		pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}
		ex := &mockPlanExecutor{outcome: managerOutcome()}
		m := NewManager(store, rec, pl, ex)

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		result := m.Execute(ctx, managerRun())

		assert.Equal(t, models.StatusCancelled, result.Status)
		assert.ErrorIs(t, result.Err, context.DeadlineExceeded)

		// Short-circuits right after planning: no thinking, no execution
		require.Equal(t, []string{
			models.ActivityRunInit,
			models.ActivityRunCancelled,
		}, rec.kinds())
		assert.Nil(t, ex.gotPlan)
	})
}

func TestManagerExecute_RunInitAppendFailure(t *testing.T) {
	store := &mockRunStore{}
	rec := &mockRecorder{failOn: models.ActivityRunInit}
	pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}
	ex := &mockPlanExecutor{outcome: managerOutcome()}
	m := NewManager(store, rec, pl, ex)

	result := m.Execute(context.Background(), managerRun())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.False(t, pl.called, "planner should not run when run.init cannot be recorded")
	assert.Empty(t, store.plans)

	require.Len(t, store.statusChanges, 1)
	assert.Equal(t, "internal", store.statusChanges[0].errorKind)
	require.Equal(t, []string{models.ActivityRunFailed}, rec.kinds())
}

func TestManagerExecute_TerminalRaceSkipsActivity(t *testing.T) {
	// Another writer (orphan sweep) already terminalized the run: the
	// status update is rejected and no second terminal activity appears.
	store := &mockRunStore{updateStatusErr: services.ErrInvalidTransition}
	rec := &mockRecorder{}
	pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}
	ex := &mockPlanExecutor{outcome: managerOutcome()}
	m := NewManager(store, rec, pl, ex)

	result := m.Execute(context.Background(), managerRun())

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, []string{
		models.ActivityRunInit,
		models.ActivityThinking,
	}, rec.kinds())
}

func TestManagerExecute_SetFinalContentFailure(t *testing.T) {
	store := &mockRunStore{setFinalErr: errors.New("pq: connection reset")}
	rec := &mockRecorder{}
	pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}
	ex := &mockPlanExecutor{outcome: managerOutcome()}
	m := NewManager(store, rec, pl, ex)

	result := m.Execute(context.Background(), managerRun())

	assert.Equal(t, models.StatusFailed, result.Status)
	require.Len(t, store.statusChanges, 1)
	assert.Equal(t, models.StatusFailed, store.statusChanges[0].status)
	assert.Equal(t, "internal", store.statusChanges[0].errorKind)
}

func TestManagerExecute_ScrubsFailureMessage(t *testing.T) {
	store := &mockRunStore{}
	rec := &mockRecorder{}
	pl := &mockPlanner{result: planner.Result{Plan: managerPlan()}}
	ex := &mockPlanExecutor{err: errors.New("upstream rejected request: Bearer tok4fj29dkz expired")}
	m := NewManager(store, rec, pl, ex)

	m.Execute(context.Background(), managerRun())

	failed := rec.activities[len(rec.activities)-1].payload.(models.RunFailedPayload)
	assert.Contains(t, failed.Message, sanitize.Redacted)
	assert.NotContains(t, failed.Message, "tok4fj29dkz")

	require.Len(t, store.statusChanges, 1)
	assert.NotContains(t, store.statusChanges[0].errorMessage, "tok4fj29dkz")
}
