package planner

import (
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/models"
)

// validatePlan enforces the structural rules and the per-mode guardrails.
// A nil return means the plan is safe to hand to the executor as-is.
func validatePlan(plan *models.Plan, run *models.Run, maxCalls int) error {
	if strings.TrimSpace(plan.Understanding.CoreSubject) == "" &&
		strings.TrimSpace(plan.Understanding.UserGoal) == "" {
		return fmt.Errorf("plan understanding is empty")
	}

	n := len(plan.ToolCalls)
	if n < 1 || n > maxCalls {
		return fmt.Errorf("plan has %d tool calls, want between 1 and %d", n, maxCalls)
	}
	if plan.CountTool(models.ToolCompile) != 1 {
		return fmt.Errorf("plan must contain exactly one compile call")
	}
	if plan.ToolCalls[n-1].Tool != models.ToolCompile {
		return fmt.Errorf("compile must be the last tool call")
	}

	if err := checkAllowedTools(plan, run); err != nil {
		return err
	}

	switch run.Mode {
	case models.ModeResearch:
		return validateResearch(plan, run)
	case models.ModeReport:
		return validateReport(plan, run)
	case models.ModeTemplate:
		return validateTemplate(plan, run)
	case models.ModeCharts:
		return validateCharts(plan, run)
	case models.ModePlan:
		return validatePlanMode(plan)
	}
	return fmt.Errorf("unknown mode %q", run.Mode)
}

// checkAllowedTools rejects any tool the mode does not offer. The allowed
// sets mirror prompt.ToolsForMode, so an accepted plan only ever uses tools
// the planner was shown.
func checkAllowedTools(plan *models.Plan, run *models.Run) error {
	allowed := map[models.ToolName]bool{
		models.ToolSearchWeb: true,
		models.ToolCompile:   true,
	}
	switch run.Mode {
	case models.ModeResearch:
		allowed[models.ToolAnalyzeDocuments] = true
	case models.ModeReport:
		allowed[models.ToolGenerateChart] = true
		allowed[models.ToolDraftSection] = true
	case models.ModeTemplate, models.ModePlan:
		allowed[models.ToolDraftSection] = true
	case models.ModeCharts:
		allowed[models.ToolAnalyzeDocuments] = true
		allowed[models.ToolGenerateChart] = true
	}

	for _, tc := range plan.ToolCalls {
		if !allowed[tc.Tool] {
			return fmt.Errorf("tool %s is not available in %s mode", tc.Tool, run.Mode)
		}
	}
	return nil
}

func validateResearch(plan *models.Plan, run *models.Run) error {
	if err := checkSearchBudget(plan, run.Params.Depth.SearchBudget()); err != nil {
		return err
	}
	return checkAnalyze(plan, run)
}

func validateReport(plan *models.Plan, run *models.Run) error {
	if err := checkSearchBudget(plan, 2); err != nil {
		return err
	}
	if err := checkChartCalls(plan, run); err != nil {
		return err
	}

	names, err := draftSectionNames(plan)
	if err != nil {
		return err
	}
	if len(names) < 2 || len(names) > 10 {
		return fmt.Errorf("report plan has %d draft_section calls, want between 2 and 10", len(names))
	}
	seen := make(map[string]bool, len(names))
	hasSummary := false
	for _, name := range names {
		if seen[name] {
			return fmt.Errorf("section %q is drafted twice", name)
		}
		seen[name] = true
		if name == "Executive Summary" {
			hasSummary = true
		}
		if strings.EqualFold(name, "Visualizations") {
			return fmt.Errorf("the Visualizations section is appended automatically and must not be drafted")
		}
	}
	if !hasSummary {
		return fmt.Errorf("report plan must draft an %q section", "Executive Summary")
	}
	return nil
}

func validateTemplate(plan *models.Plan, run *models.Run) error {
	budget := 1
	if run.Params.AllowWebSearch {
		budget = run.Params.Depth.SearchBudget()
	}
	if err := checkSearchBudget(plan, budget); err != nil {
		return err
	}
	return checkExactSections(plan, models.TemplateSections(run.Params.TemplateType))
}

func validateCharts(plan *models.Plan, run *models.Run) error {
	if err := checkSearchBudget(plan, 1); err != nil {
		return err
	}
	if err := checkAnalyze(plan, run); err != nil {
		return err
	}
	return checkChartCalls(plan, run)
}

func validatePlanMode(plan *models.Plan) error {
	if err := checkSearchBudget(plan, 2); err != nil {
		return err
	}
	return checkExactSections(plan, models.PlanSections)
}

func checkSearchBudget(plan *models.Plan, budget int) error {
	if n := plan.CountTool(models.ToolSearchWeb); n > budget {
		return fmt.Errorf("plan has %d search_web calls, budget is %d", n, budget)
	}
	return nil
}

// checkAnalyze allows at most one analyze_documents call, and only when the
// run actually has files to analyze.
func checkAnalyze(plan *models.Plan, run *models.Run) error {
	n := plan.CountTool(models.ToolAnalyzeDocuments)
	if n > 1 {
		return fmt.Errorf("plan has %d analyze_documents calls, at most 1 is allowed", n)
	}
	if n == 1 && len(run.Files) == 0 {
		return fmt.Errorf("analyze_documents planned but the run has no files")
	}
	return nil
}

// checkChartCalls requires exactly one generate_chart per requested kind,
// and no kind that was not requested.
func checkChartCalls(plan *models.Plan, run *models.Run) error {
	counts := make(map[models.ChartKind]int, len(run.Params.ChartTypes))
	for _, k := range run.Params.ChartTypes {
		counts[k] = 0
	}

	for _, tc := range plan.ToolCalls {
		if tc.Tool != models.ToolGenerateChart {
			continue
		}
		kind, err := models.NormalizeChartKind(tc.StringParam("chartKind"))
		if err != nil {
			return fmt.Errorf("generate_chart: %w", err)
		}
		if _, requested := counts[kind]; !requested {
			return fmt.Errorf("chart kind %q was not requested", kind)
		}
		counts[kind]++
	}

	for _, k := range run.Params.ChartTypes {
		if counts[k] != 1 {
			return fmt.Errorf("chart kind %q must be planned exactly once, planned %d times", k, counts[k])
		}
	}
	return nil
}

// checkExactSections requires exactly one draft_section call per wanted
// section name, with no extras. Order is not enforced: the compiler emits
// sections in catalog order regardless of drafting order.
func checkExactSections(plan *models.Plan, want []string) error {
	names, err := draftSectionNames(plan)
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(names))
	for _, name := range names {
		counts[name]++
	}
	for _, w := range want {
		switch counts[w] {
		case 1:
			delete(counts, w)
		case 0:
			return fmt.Errorf("section %q is missing from the plan", w)
		default:
			return fmt.Errorf("section %q is drafted %d times", w, counts[w])
		}
	}
	for name := range counts {
		return fmt.Errorf("section %q is not part of this document", name)
	}
	return nil
}

// draftSectionNames collects the sectionName of every draft_section call,
// rejecting calls without one.
func draftSectionNames(plan *models.Plan) ([]string, error) {
	var names []string
	for _, tc := range plan.ToolCalls {
		if tc.Tool != models.ToolDraftSection {
			continue
		}
		name := tc.StringParam("sectionName")
		if name == "" {
			return nil, fmt.Errorf("draft_section requires a sectionName parameter")
		}
		names = append(names, name)
	}
	return names, nil
}
