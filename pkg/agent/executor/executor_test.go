package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/agent/compiler"
	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/capability"
	"github.com/agentic-research/scribe/pkg/chart"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/search"
)

type mockResponse struct {
	text string
	err  error
}

type mockLLMClient struct {
	responses []mockResponse
	callCount int
	requests  []llm.Request
}

func (m *mockLLMClient) Ask(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	m.requests = append(m.requests, req)
	if m.callCount >= len(m.responses) {
		return nil, fmt.Errorf("unexpected LLM call %d", m.callCount)
	}
	resp := m.responses[m.callCount]
	m.callCount++
	if resp.err != nil {
		return nil, resp.err
	}
	return &llm.Completion{Text: resp.text}, nil
}

type searchReply struct {
	result *search.Result
	err    error
}

type mockSearchClient struct {
	replies   []searchReply
	queries   []string
	onSearch  func(ctx context.Context)
	callCount int
}

func (m *mockSearchClient) Search(ctx context.Context, query string) (*search.Result, error) {
	m.queries = append(m.queries, query)
	if m.onSearch != nil {
		m.onSearch(ctx)
	}
	if m.callCount >= len(m.replies) {
		return nil, fmt.Errorf("unexpected search call %d", m.callCount)
	}
	reply := m.replies[m.callCount]
	m.callCount++
	if reply.err != nil {
		return nil, reply.err
	}
	return reply.result, nil
}

type renderCall struct {
	kind    models.ChartKind
	payload chart.Payload
}

type mockChartClient struct {
	err   error
	calls []renderCall
}

func (m *mockChartClient) Render(ctx context.Context, kind models.ChartKind, payload chart.Payload) (*chart.Artifact, error) {
	m.calls = append(m.calls, renderCall{kind: kind, payload: payload})
	if m.err != nil {
		return nil, m.err
	}
	return &chart.Artifact{
		Kind:     kind,
		ImageURL: "https://charts.example.com/" + string(kind) + ".png",
	}, nil
}

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

func newTestExecutor(llmMock *mockLLMClient, searchMock *mockSearchClient, chartMock *mockChartClient, rec *mockRecorder) *Executor {
	prompts := prompt.NewPromptBuilder()
	return New(Deps{
		LLM:      llmMock,
		Search:   searchMock,
		Charts:   chartMock,
		Compiler: compiler.New(llmMock, prompts),
		Prompts:  prompts,
		Recorder: rec,
	})
}

func reportRun() *models.Run {
	return &models.Run{
		ID:   "run-report-1",
		Mode: models.ModeReport,
		Goal: "Competitive landscape of the EV charging market",
		Params: models.RunParams{
			Depth:      models.DepthShort,
			ChartTypes: []models.ChartKind{models.ChartBar},
		},
	}
}

const validBarPayload = `{"title": "Public Chargers", "categories": ["Germany", "UK"], "series": [{"name": "Thousands", "values": [120, 75]}]}`

func searchResult() *search.Result {
	return &search.Result{
		Summary: "The market is consolidating around fast charging.",
		Findings: []models.Finding{
			{Text: "Fast chargers made up 30 percent of new installs in 2025.", Origin: models.OriginWebSearch},
			{Text: "Germany leads Europe with 120 thousand public chargers.", Origin: models.OriginWebSearch},
		},
		Sources: []models.Source{
			{URL: "https://evnews.example.com/market", Title: "EV Market Watch", Origin: models.OriginWebSearch},
			{URL: "https://gridreport.example.com/2025", Title: "Grid Report", Origin: models.OriginWebSearch},
		},
	}
}

func TestExecute_ReportPlan(t *testing.T) {
	llmMock := &mockLLMClient{responses: []mockResponse{
		{text: validBarPayload},
		{text: "The EV charging market is growing rapidly across Europe."},
		{text: "Expect continued consolidation through 2027."},
	}}
	searchMock := &mockSearchClient{replies: []searchReply{{result: searchResult()}}}
	chartMock := &mockChartClient{}
	rec := &mockRecorder{}
	exec := newTestExecutor(llmMock, searchMock, chartMock, rec)

	run := reportRun()
	plan := &models.Plan{
		Understanding: models.Understanding{CoreSubject: "EV charging", UserGoal: run.Goal},
		ToolCalls: []models.ToolCall{
			{Tool: models.ToolSearchWeb, Parameters: map[string]any{"query": "EV charging market size"}},
			{Tool: models.ToolGenerateChart, Parameters: map[string]any{"chartKind": "bar", "title": "Chargers by Region"}},
			{Tool: models.ToolDraftSection, Parameters: map[string]any{"sectionName": "Executive Summary"}},
			{Tool: models.ToolDraftSection, Parameters: map[string]any{"sectionName": "Outlook"}},
			{Tool: models.ToolCompile, Parameters: map[string]any{}},
		},
	}

	outcome, err := exec.Execute(context.Background(), run, plan)
	require.NoError(t, err)

	require.Equal(t, []string{
		models.ActivityToolCall, models.ActivityToolResult, models.ActivityRunProgress,
		models.ActivityToolCall, models.ActivityToolResult, models.ActivityRunProgress,
		models.ActivityToolCall, models.ActivitySectionDrafted, models.ActivityToolResult, models.ActivityRunProgress,
		models.ActivityToolCall, models.ActivitySectionDrafted, models.ActivityToolResult, models.ActivityRunProgress,
		models.ActivityThinking, models.ActivityToolCall, models.ActivityToolResult, models.ActivityRunProgress,
	}, rec.kinds())

	first, ok := rec.activities[0].payload.(models.ToolCallPayload)
	require.True(t, ok)
	assert.Equal(t, models.ToolSearchWeb, first.Tool)
	assert.Equal(t, "EV charging market size", first.Parameters["query"])

	progress, ok := rec.activities[2].payload.(models.RunProgressPayload)
	require.True(t, ok)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 5, progress.Total)

	drafted, ok := rec.activities[7].payload.(models.SectionDraftedPayload)
	require.True(t, ok)
	assert.Equal(t, "Executive Summary", drafted.SectionName)
	assert.Positive(t, drafted.CharCount)

	thinking, ok := rec.activities[14].payload.(models.ThinkingPayload)
	require.True(t, ok)
	assert.Equal(t, models.ThoughtFinalReview, thinking.ThoughtType)

	compiled, ok := rec.activities[16].payload.(models.ToolResultPayload)
	require.True(t, ok)
	assert.Equal(t, "finalContent", compiled.ArtifactKey)

	last, ok := rec.activities[17].payload.(models.RunProgressPayload)
	require.True(t, ok)
	assert.Equal(t, 5, last.Completed)
	assert.Equal(t, 5, last.Total)

	require.True(t, strings.HasPrefix(outcome.FinalContent, "## Executive Summary\n"))
	assert.Contains(t, outcome.FinalContent, "## Visualizations")
	assert.Contains(t, outcome.FinalContent, "![Chargers by Region - bar chart](https://charts.example.com/bar.png)")
	require.Contains(t, outcome.ChartArtifacts, models.ChartBar)
	assert.Equal(t, "Chargers by Region", outcome.ChartArtifacts[models.ChartBar].Title)
	assert.Equal(t, models.ExecutionCounts{Findings: 2, Sources: 2, Charts: 1}, outcome.Counts)
}

func TestExecute_ResearchCompileRecordsDraftedSections(t *testing.T) {
	llmMock := &mockLLMClient{responses: []mockResponse{
		{text: "The market has matured considerably."},
		{text: "- Capacity doubled since 2020."},
		{text: "Growth is driven by policy support."},
		{text: "Invest in grid interconnection."},
	}}
	searchMock := &mockSearchClient{replies: []searchReply{{result: searchResult()}}}
	rec := &mockRecorder{}
	exec := newTestExecutor(llmMock, searchMock, &mockChartClient{}, rec)

	run := &models.Run{
		ID:     "run-research-1",
		Mode:   models.ModeResearch,
		Goal:   "State of the European offshore wind market",
		Params: models.RunParams{Depth: models.DepthMedium},
	}
	plan := &models.Plan{
		Understanding: models.Understanding{CoreSubject: "offshore wind", UserGoal: run.Goal},
		ToolCalls: []models.ToolCall{
			{Tool: models.ToolSearchWeb, Parameters: map[string]any{"query": "European offshore wind"}},
			{Tool: models.ToolCompile, Parameters: map[string]any{}},
		},
	}

	outcome, err := exec.Execute(context.Background(), run, plan)
	require.NoError(t, err)

	require.Equal(t, []string{
		models.ActivityToolCall, models.ActivityToolResult, models.ActivityRunProgress,
		models.ActivityThinking, models.ActivityToolCall,
		models.ActivitySectionDrafted, models.ActivitySectionDrafted, models.ActivitySectionDrafted, models.ActivitySectionDrafted,
		models.ActivityToolResult, models.ActivityRunProgress,
	}, rec.kinds())

	wantSections := []string{"Overview", "Key Findings", "Analysis", "Recommendations"}
	for i, want := range wantSections {
		drafted, ok := rec.activities[5+i].payload.(models.SectionDraftedPayload)
		require.True(t, ok)
		assert.Equal(t, want, drafted.SectionName)
	}

	assert.Contains(t, outcome.FinalContent, "## Sources")
}

func TestExecute_ToolFailureContinuesRun(t *testing.T) {
	llmMock := &mockLLMClient{responses: []mockResponse{
		{text: "First paragraph of the synthesis.\n\nSecond paragraph naming no sources."},
	}}
	searchMock := &mockSearchClient{replies: []searchReply{
		{err: capability.Errorf(capability.KindTimeout, "search.query", "deadline exceeded after 30s")},
	}}
	rec := &mockRecorder{}
	exec := newTestExecutor(llmMock, searchMock, &mockChartClient{}, rec)

	run := &models.Run{
		ID:     "run-brief-1",
		Mode:   models.ModeResearch,
		Goal:   "Quick look at battery recycling",
		Params: models.RunParams{Depth: models.DepthBrief},
	}
	plan := &models.Plan{
		Understanding: models.Understanding{CoreSubject: "battery recycling", UserGoal: run.Goal},
		ToolCalls: []models.ToolCall{
			{Tool: models.ToolSearchWeb, Parameters: map[string]any{"query": "battery recycling"}},
			{Tool: models.ToolCompile, Parameters: map[string]any{}},
		},
	}

	outcome, err := exec.Execute(context.Background(), run, plan)
	require.NoError(t, err)

	require.Equal(t, []string{
		models.ActivityToolCall, models.ActivityToolError, models.ActivityRunProgress,
		models.ActivityThinking, models.ActivityToolCall, models.ActivityToolResult, models.ActivityRunProgress,
	}, rec.kinds())

	toolErr, ok := rec.activities[1].payload.(models.ToolErrorPayload)
	require.True(t, ok)
	assert.Equal(t, models.ToolSearchWeb, toolErr.Tool)
	assert.Equal(t, "tool_timeout", toolErr.ErrorKind)
	assert.Contains(t, toolErr.Message, "deadline exceeded")

	assert.NotEmpty(t, outcome.FinalContent)
	assert.Equal(t, 0, outcome.Counts.Findings)
}

func TestExecute_CompileFailureIsFatal(t *testing.T) {
	llmMock := &mockLLMClient{responses: []mockResponse{
		{err: fmt.Errorf("model overloaded")},
		{err: fmt.Errorf("model overloaded")},
	}}
	rec := &mockRecorder{}
	exec := newTestExecutor(llmMock, &mockSearchClient{}, &mockChartClient{}, rec)

	run := &models.Run{
		ID:     "run-research-2",
		Mode:   models.ModeResearch,
		Goal:   "State of the European offshore wind market",
		Params: models.RunParams{Depth: models.DepthMedium},
	}
	plan := &models.Plan{
		Understanding: models.Understanding{CoreSubject: "offshore wind", UserGoal: run.Goal},
		ToolCalls: []models.ToolCall{
			{Tool: models.ToolCompile, Parameters: map[string]any{}},
		},
	}

	_, err := exec.Execute(context.Background(), run, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile failed")

	require.Equal(t, []string{
		models.ActivityThinking, models.ActivityToolCall, models.ActivityToolError,
	}, rec.kinds())

	toolErr, ok := rec.activities[2].payload.(models.ToolErrorPayload)
	require.True(t, ok)
	assert.Equal(t, models.ToolCompile, toolErr.Tool)
	assert.Equal(t, "internal", toolErr.ErrorKind)
	assert.Contains(t, toolErr.Message, "Overview")
}

func TestExecute_CancellationStopsAtStepBoundary(t *testing.T) {
	run := reportRun()
	plan := &models.Plan{
		Understanding: models.Understanding{CoreSubject: "EV charging", UserGoal: run.Goal},
		ToolCalls: []models.ToolCall{
			{Tool: models.ToolSearchWeb, Parameters: map[string]any{"query": "EV charging"}},
			{Tool: models.ToolCompile, Parameters: map[string]any{}},
		},
	}

	t.Run("before execution", func(t *testing.T) {
		rec := &mockRecorder{}
		exec := newTestExecutor(&mockLLMClient{}, &mockSearchClient{}, &mockChartClient{}, rec)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := exec.Execute(ctx, run, plan)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, rec.activities)
	})

	t.Run("during a step", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		searchMock := &mockSearchClient{
			replies:  []searchReply{{err: context.Canceled}},
			onSearch: func(context.Context) { cancel() },
		}
		rec := &mockRecorder{}
		exec := newTestExecutor(&mockLLMClient{}, searchMock, &mockChartClient{}, rec)

		_, err := exec.Execute(ctx, run, plan)
		require.ErrorIs(t, err, context.Canceled)

		// The aborted step leaves its tool.call behind and nothing else.
		require.Equal(t, []string{models.ActivityToolCall}, rec.kinds())
	})
}

func TestExecute_RecorderFailureIsFatal(t *testing.T) {
	searchMock := &mockSearchClient{replies: []searchReply{{result: searchResult()}}}
	rec := &mockRecorder{failOn: models.ActivityToolCall}
	exec := newTestExecutor(&mockLLMClient{}, searchMock, &mockChartClient{}, rec)

	run := reportRun()
	plan := &models.Plan{
		Understanding: models.Understanding{CoreSubject: "EV charging", UserGoal: run.Goal},
		ToolCalls: []models.ToolCall{
			{Tool: models.ToolSearchWeb, Parameters: map[string]any{"query": "EV charging"}},
			{Tool: models.ToolCompile, Parameters: map[string]any{}},
		},
	}

	_, err := exec.Execute(context.Background(), run, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording tool.call")
	assert.Empty(t, rec.activities)
}
