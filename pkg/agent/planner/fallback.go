package planner

import (
	"strings"

	"github.com/agentic-research/scribe/pkg/models"
)

// reportFallbackSections is the deterministic section pool for report-mode
// fallbacks. The first Depth.ReportSectionCount() entries are drafted, so
// Executive Summary is always present and first.
var reportFallbackSections = []string{
	"Executive Summary",
	"Key Findings",
	"Analysis",
	"Recommendations",
	"Background",
	"Risks",
	"Opportunities",
	"Outlook",
	"Market Context",
	"Conclusion",
}

// FallbackPlan builds the deterministic plan for a run's mode: the minimum
// tool calls consistent with the request. It always passes the guardrails
// and it never fails.
func FallbackPlan(run *models.Run) *models.Plan {
	plan := &models.Plan{
		Understanding: models.Understanding{
			CoreSubject: firstWords(run.Goal, 12),
			UserGoal:    run.Goal,
		},
	}

	appendAnalyze := func() {
		if len(run.Files) == 0 {
			return
		}
		plan.ToolCalls = append(plan.ToolCalls, models.ToolCall{
			Tool:      models.ToolAnalyzeDocuments,
			Reasoning: "Extract facts from the uploaded documents.",
		})
	}
	appendSearch := func() {
		plan.ToolCalls = append(plan.ToolCalls, models.ToolCall{
			Tool:       models.ToolSearchWeb,
			Parameters: map[string]any{"query": firstWords(run.Goal, 12)},
			Reasoning:  "Gather evidence for the goal.",
		})
	}
	appendCharts := func() {
		for _, kind := range run.Params.ChartTypes {
			plan.ToolCalls = append(plan.ToolCalls, models.ToolCall{
				Tool:       models.ToolGenerateChart,
				Parameters: map[string]any{"chartKind": string(kind)},
				Reasoning:  "Render the requested " + string(kind) + " chart.",
			})
		}
	}
	appendDrafts := func(sections []string) {
		for _, name := range sections {
			plan.ToolCalls = append(plan.ToolCalls, models.ToolCall{
				Tool:       models.ToolDraftSection,
				Parameters: map[string]any{"sectionName": name},
				Reasoning:  "Draft the " + name + " section.",
			})
		}
	}

	switch run.Mode {
	case models.ModeResearch:
		appendAnalyze()
		appendSearch()
	case models.ModeReport:
		appendSearch()
		appendCharts()
		appendDrafts(reportFallbackSections[:run.Params.Depth.ReportSectionCount()])
	case models.ModeTemplate:
		appendSearch()
		appendDrafts(models.TemplateSections(run.Params.TemplateType))
	case models.ModeCharts:
		if len(run.Files) > 0 {
			appendAnalyze()
		} else {
			appendSearch()
		}
		appendCharts()
	case models.ModePlan:
		appendSearch()
		appendDrafts(models.PlanSections)
	}

	plan.ToolCalls = append(plan.ToolCalls, models.ToolCall{
		Tool:      models.ToolCompile,
		Reasoning: "Assemble the final output.",
	})
	return plan
}

// firstWords returns the first n whitespace-separated words of s.
func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
