// Package executor walks a validated plan step by step, dispatching each
// tool call against the capability clients and recording every step in the
// run's activity log. Tool failures are recorded and execution continues;
// compile failures and store failures abort the run. Execution is strictly
// sequential in plan order.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/scribe/pkg/agent/compiler"
	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/capability"
	"github.com/agentic-research/scribe/pkg/chart"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/sanitize"
	"github.com/agentic-research/scribe/pkg/search"
)

// ErrCompileFailed marks a fatal compile-step failure. Everything else a
// tool can throw is recorded and skipped.
var ErrCompileFailed = errors.New("compile failed")

// Recorder appends activities to a run's log. *events.Publisher satisfies it.
type Recorder interface {
	Append(ctx context.Context, runID, kind string, payload any) (*models.Activity, error)
}

// Compiler is the compile stage the executor hands off to. It also owns
// the section-drafting retry policy used by draft_section steps.
type Compiler interface {
	Compile(ctx context.Context, in compiler.Input) (string, error)
	DraftSection(ctx context.Context, req prompt.SectionRequest) (string, error)
}

// Deps are the collaborators an Executor needs.
type Deps struct {
	LLM      llm.Client
	Search   search.Client
	Charts   chart.Client
	Compiler Compiler
	Prompts  *prompt.PromptBuilder
	Recorder Recorder
}

// Executor runs plans. Stateless across runs; per-run state lives in a
// runState owned by each Execute call.
type Executor struct {
	llmClient llm.Client
	searchCl  search.Client
	chartCl   chart.Client
	compiler  Compiler
	prompts   *prompt.PromptBuilder
	recorder  Recorder
}

func New(deps Deps) *Executor {
	return &Executor{
		llmClient: deps.LLM,
		searchCl:  deps.Search,
		chartCl:   deps.Charts,
		compiler:  deps.Compiler,
		prompts:   deps.Prompts,
		recorder:  deps.Recorder,
	}
}

// Outcome is what a completed plan leaves behind for the run row.
type Outcome struct {
	FinalContent   string
	ChartArtifacts map[models.ChartKind]models.ChartArtifact
	Counts         models.ExecutionCounts
}

// stepResult is the successful outcome of one dispatched tool call.
type stepResult struct {
	summary     string
	counts      *models.ToolResultCounts
	artifactKey string
	drafted     *models.SectionDraftedPayload
}

// Execute runs every tool call of the plan in order. Cancellation is
// checked at each step boundary: no new call is issued once the context is
// done, and the context error propagates to the caller.
func (e *Executor) Execute(ctx context.Context, run *models.Run, plan *models.Plan) (*Outcome, error) {
	st := newRunState(run, plan)
	total := len(plan.ToolCalls)

	for i, tc := range plan.ToolCalls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if tc.Tool == models.ToolCompile {
			if err := e.record(ctx, run.ID, models.ActivityThinking, models.ThinkingPayload{
				Thought:     "Reviewing the gathered material before assembling the final output.",
				ThoughtType: models.ThoughtFinalReview,
			}); err != nil {
				return nil, err
			}
		}

		if err := e.record(ctx, run.ID, models.ActivityToolCall, models.ToolCallPayload{
			Tool:       tc.Tool,
			Parameters: tc.Parameters,
			Reasoning:  tc.Reasoning,
		}); err != nil {
			return nil, err
		}

		res, stepErr := e.dispatch(ctx, st, tc)
		switch {
		case stepErr != nil && ctx.Err() != nil:
			// The step aborted because the run was cancelled or timed out.
			return nil, ctx.Err()

		case stepErr != nil:
			if err := e.record(ctx, run.ID, models.ActivityToolError, models.ToolErrorPayload{
				Tool:      tc.Tool,
				ErrorKind: toolErrorKind(stepErr),
				Message:   sanitize.Error(stepErr),
			}); err != nil {
				return nil, err
			}
			if tc.Tool == models.ToolCompile {
				return nil, fmt.Errorf("%w: %w", ErrCompileFailed, stepErr)
			}

		default:
			if res.drafted != nil {
				if err := e.record(ctx, run.ID, models.ActivitySectionDrafted, *res.drafted); err != nil {
					return nil, err
				}
			}
			if err := e.record(ctx, run.ID, models.ActivityToolResult, models.ToolResultPayload{
				Tool:        tc.Tool,
				Summary:     res.summary,
				Counts:      res.counts,
				ArtifactKey: res.artifactKey,
			}); err != nil {
				return nil, err
			}
		}

		if err := e.record(ctx, run.ID, models.ActivityRunProgress, models.RunProgressPayload{
			Completed: i + 1,
			Total:     total,
		}); err != nil {
			return nil, err
		}
	}

	return &Outcome{
		FinalContent:   st.finalContent,
		ChartArtifacts: st.artifacts,
		Counts: models.ExecutionCounts{
			Findings: len(st.findings),
			Sources:  len(st.sources),
			Charts:   len(st.artifacts),
		},
	}, nil
}

func (e *Executor) dispatch(ctx context.Context, st *runState, tc models.ToolCall) (*stepResult, error) {
	switch tc.Tool {
	case models.ToolAnalyzeDocuments:
		return e.analyzeDocuments(ctx, st)
	case models.ToolSearchWeb:
		return e.searchWeb(ctx, st, tc)
	case models.ToolGenerateChart:
		return e.generateChart(ctx, st, tc)
	case models.ToolDraftSection:
		return e.draftSection(ctx, st, tc)
	case models.ToolCompile:
		return e.compile(ctx, st)
	}
	return nil, fmt.Errorf("unknown tool %q", tc.Tool)
}

func (e *Executor) record(ctx context.Context, runID, kind string, payload any) error {
	if _, err := e.recorder.Append(ctx, runID, kind, payload); err != nil {
		return fmt.Errorf("recording %s: %w", kind, err)
	}
	return nil
}

// toolErrorKind maps a step failure onto the tool error taxonomy exposed
// in tool.error activities.
func toolErrorKind(err error) string {
	switch capability.KindOf(err) {
	case capability.KindTimeout:
		return "tool_timeout"
	case capability.KindTransport:
		return "tool_transport"
	case capability.KindUpstream4xx, capability.KindUpstream5xx, capability.KindParse,
		capability.KindInvalidPayload, capability.KindRender:
		return "tool_upstream"
	}
	return "internal"
}

// runState accumulates everything a run gathers while its plan executes.
type runState struct {
	run          *models.Run
	plan         *models.Plan
	findings     []models.Finding
	sources      []models.Source
	sourceKeys   map[string]bool
	sections     map[string]string
	sectionOrder []string
	artifacts    map[models.ChartKind]models.ChartArtifact
	failures     map[models.ChartKind]string
	finalContent string
}

func newRunState(run *models.Run, plan *models.Plan) *runState {
	return &runState{
		run:        run,
		plan:       plan,
		sourceKeys: make(map[string]bool),
		sections:   make(map[string]string),
		artifacts:  make(map[models.ChartKind]models.ChartArtifact),
		failures:   make(map[models.ChartKind]string),
	}
}

// addSource appends a source unless its canonical key was already seen.
func (st *runState) addSource(s models.Source) bool {
	key := s.CanonicalKey()
	if key == "" || st.sourceKeys[key] {
		return false
	}
	st.sourceKeys[key] = true
	st.sources = append(st.sources, s)
	return true
}

// peersOf lists every other section name the plan drafts.
func (st *runState) peersOf(name string) []string {
	var peers []string
	for _, tc := range st.plan.ToolCalls {
		if tc.Tool != models.ToolDraftSection {
			continue
		}
		if n := tc.StringParam("sectionName"); n != "" && n != name {
			peers = append(peers, n)
		}
	}
	return peers
}
