// Package planner turns a run request into a validated tool plan. A single
// LLM call proposes the plan; parsing, normalization and per-mode guardrails
// decide whether to accept it. Anything wrong with the proposal (timeout,
// unusable JSON, guardrail violation) is replaced by a deterministic
// per-mode fallback plan, so planning never fails a run.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

const (
	defaultDeadline     = 90 * time.Second
	defaultMaxToolCalls = 40
)

// Config parameterizes the planner.
type Config struct {
	// Deadline bounds the single planning LLM call. The deadline is
	// deliberately tighter than the run deadline so a stuck planner still
	// leaves room for fallback execution.
	Deadline time.Duration

	// MaxToolCalls is the hard cap on plan length.
	MaxToolCalls int
}

// Planner produces tool plans. Stateless apart from its collaborators —
// safe for concurrent use across runs.
type Planner struct {
	client   llm.Client
	prompts  *prompt.PromptBuilder
	deadline time.Duration
	maxCalls int
}

// New creates a planner. Zero config fields fall back to the defaults
// (90s deadline, 40 tool calls).
func New(client llm.Client, prompts *prompt.PromptBuilder, cfg Config) *Planner {
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = defaultMaxToolCalls
	}
	return &Planner{
		client:   client,
		prompts:  prompts,
		deadline: cfg.Deadline,
		maxCalls: cfg.MaxToolCalls,
	}
}

// Result is the outcome of planning. FellBack reports that the
// deterministic fallback replaced the LLM proposal; Reason says why.
type Result struct {
	Plan     *models.Plan
	FellBack bool
	Reason   string
}

// Plan produces the execution plan for a run. It never fails: every
// planning problem degrades to the fallback plan for the run's mode.
func (p *Planner) Plan(ctx context.Context, run *models.Run) Result {
	plan, err := p.propose(ctx, run)
	if err != nil {
		return Result{Plan: FallbackPlan(run), FellBack: true, Reason: err.Error()}
	}
	return Result{Plan: plan}
}

// propose runs the LLM call and accepts its plan only if it parses,
// normalizes and passes the mode guardrails.
func (p *Planner) propose(ctx context.Context, run *models.Run) (*models.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	completion, err := p.client.Ask(ctx, llm.Request{
		Messages:   p.prompts.BuildPlannerMessages(run),
		ExpectJSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("planner call failed: %w", err)
	}

	plan, err := parsePlan(completion.Text)
	if err != nil {
		return nil, err
	}

	normalizePlan(plan, run)

	if err := validatePlan(plan, run, p.maxCalls); err != nil {
		return nil, err
	}
	return plan, nil
}

// rawToolCall mirrors models.ToolCall with an unvalidated tool name.
type rawToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Reasoning  string         `json:"reasoning"`
	DependsOn  []int          `json:"dependsOn"`
}

type rawPlan struct {
	Understanding models.Understanding `json:"understanding"`
	ToolCalls     []rawToolCall        `json:"toolCalls"`
}

// parsePlan decodes the LLM response into a plan. Unknown tool names are
// rejected here so the guardrails only ever see the closed set.
func parsePlan(text string) (*models.Plan, error) {
	var raw rawPlan
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("planner output is not a valid plan: %w", err)
	}

	plan := &models.Plan{
		Understanding: raw.Understanding,
		ToolCalls:     make([]models.ToolCall, 0, len(raw.ToolCalls)),
	}
	for i, rc := range raw.ToolCalls {
		tool, err := models.ParseToolName(rc.Tool)
		if err != nil {
			return nil, fmt.Errorf("tool call %d: %w", i+1, err)
		}
		plan.ToolCalls = append(plan.ToolCalls, models.ToolCall{
			Tool:       tool,
			Parameters: rc.Parameters,
			Reasoning:  strings.TrimSpace(rc.Reasoning),
			DependsOn:  rc.DependsOn,
		})
	}
	return plan, nil
}

// normalizePlan folds parameter spellings to their canonical forms before
// validation: chart kinds through the alias table, section names to the
// casing of the mode's canonical section list, queries trimmed.
func normalizePlan(plan *models.Plan, run *models.Run) {
	canonical := canonicalSectionNames(run)

	for i := range plan.ToolCalls {
		tc := &plan.ToolCalls[i]
		if tc.Parameters == nil {
			tc.Parameters = map[string]any{}
		}
		switch tc.Tool {
		case models.ToolGenerateChart:
			if kind, err := models.NormalizeChartKind(tc.StringParam("chartKind")); err == nil {
				tc.Parameters["chartKind"] = string(kind)
			}
		case models.ToolDraftSection:
			name := strings.TrimSpace(tc.StringParam("sectionName"))
			for _, c := range canonical {
				if strings.EqualFold(name, c) {
					name = c
					break
				}
			}
			tc.Parameters["sectionName"] = name
		case models.ToolSearchWeb:
			tc.Parameters["query"] = strings.TrimSpace(tc.StringParam("query"))
		}
	}
}

// canonicalSectionNames returns the section names whose casing is fixed by
// the mode. Report sections are planner-proposed, but Executive Summary is
// special-cased by the compiler and folds to its canonical spelling.
func canonicalSectionNames(run *models.Run) []string {
	switch run.Mode {
	case models.ModeTemplate:
		return models.TemplateSections(run.Params.TemplateType)
	case models.ModePlan:
		return models.PlanSections
	case models.ModeReport:
		return []string{"Executive Summary"}
	}
	return nil
}
