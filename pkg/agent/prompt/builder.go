package prompt

import (
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

// plannerDocumentBudget caps how much uploaded content the planner sees.
// Documents are planning context here; analyze_documents reads them in full.
const plannerDocumentBudget = 8 * 1024

// PromptBuilder builds all prompt text for the planner, the executor tools,
// and the mode compilers. Stateless — all state comes from parameters.
// Thread-safe — no mutable state.
type PromptBuilder struct{}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildPlannerMessages builds the single planning conversation for a run.
func (b *PromptBuilder) BuildPlannerMessages(run *models.Run) []llm.Message {
	systemContent := plannerRole + "\n\n" + plannerFormatInstructions

	var sb strings.Builder
	sb.WriteString("Plan the tool calls for the request below.\n\n")
	sb.WriteString("Available tools:\n\n")
	sb.WriteString(FormatToolDescriptions(ToolsForMode(run)))
	sb.WriteString("\n\n")

	sb.WriteString(FormatRequestSection(run))
	sb.WriteString("\n")

	if len(run.Files) > 0 {
		sb.WriteString(FormatDocumentExcerpt(run.Files, plannerDocumentBudget))
		sb.WriteString("\n")
	}

	sb.WriteString("## Planning constraints\n\n")
	sb.WriteString(planningConstraints(run))
	sb.WriteString("\n\n")
	sb.WriteString(plannerTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemContent},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// planningConstraints renders the mode-specific budget bullets. The planner
// validation enforces the same limits; stating them up front keeps most
// plans out of the fallback path.
func planningConstraints(run *models.Run) string {
	var rules []string
	switch run.Mode {
	case models.ModeResearch:
		rules = append(rules,
			fmt.Sprintf("Use at most %d search_web call(s).", run.Params.Depth.SearchBudget()))
		if len(run.Files) > 0 {
			rules = append(rules, "Plan analyze_documents at most once.")
		}
	case models.ModeReport:
		rules = append(rules,
			"Use at most 2 search_web calls.",
			fmt.Sprintf("Plan exactly %d draft_section calls with distinct names, the first named \"Executive Summary\".",
				run.Params.Depth.ReportSectionCount()),
			"Do not draft a \"Visualizations\" section: it is appended automatically.")
		if len(run.Params.ChartTypes) > 0 {
			rules = append(rules,
				fmt.Sprintf("Plan exactly one generate_chart call per requested kind: %s.",
					joinChartKinds(run.Params.ChartTypes)))
		}
	case models.ModeTemplate:
		rules = append(rules,
			fmt.Sprintf("Plan exactly one draft_section call per template section, in this order: %s.",
				strings.Join(models.TemplateSections(run.Params.TemplateType), ", ")))
		if run.Params.AllowWebSearch {
			rules = append(rules,
				fmt.Sprintf("Use at most %d search_web call(s).", run.Params.Depth.SearchBudget()))
		} else {
			rules = append(rules, "Use at most 1 search_web call.")
		}
	case models.ModeCharts:
		rules = append(rules,
			fmt.Sprintf("Plan exactly one generate_chart call per requested kind: %s.",
				joinChartKinds(run.Params.ChartTypes)),
			"Optionally one search_web call to gather data first.")
		if len(run.Files) > 0 {
			rules = append(rules, "Optionally one analyze_documents call.")
		}
	case models.ModePlan:
		rules = append(rules,
			fmt.Sprintf("Plan exactly one draft_section call per plan section, in this order: %s.",
				strings.Join(models.PlanSections, ", ")),
			"Use at most 2 search_web calls.")
	}
	rules = append(rules, "Finish with exactly one compile call.")

	var sb strings.Builder
	for i, r := range rules {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(r)
	}
	return sb.String()
}

// BuildAnalysisMessages builds the document-extraction conversation for
// analyze_documents. Documents are passed in full.
func (b *PromptBuilder) BuildAnalysisMessages(run *models.Run) []llm.Message {
	systemContent := fmt.Sprintf(extractionSystemTemplate, extractionFocus(run.Mode))

	var sb strings.Builder
	sb.WriteString("**Goal:** ")
	sb.WriteString(run.Goal)
	sb.WriteString("\n")
	if run.Params.Focus != "" {
		sb.WriteString("**Focus:** ")
		sb.WriteString(run.Params.Focus)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(FormatDocumentsSection(run.Files))
	sb.WriteString("\n")
	sb.WriteString(extractionTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemContent},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// extractionFocus returns the mode-specific slant of document analysis.
func extractionFocus(mode models.Mode) string {
	switch mode {
	case models.ModeReport:
		return "facts, figures and comparisons that support a business report"
	case models.ModeTemplate:
		return "material that fills the sections of a structured business document"
	case models.ModeCharts:
		return "quantitative data: series, categories, counts and values suitable for charts"
	case models.ModePlan:
		return "objectives, constraints, dates, resources and risks relevant to planning"
	default:
		return "facts, figures and claims relevant to the research goal"
	}
}

// BuildChartPayloadMessages builds the conversation that turns findings
// into one typed chart payload.
func (b *PromptBuilder) BuildChartPayloadMessages(kind models.ChartKind, goal string, findings []models.Finding) []llm.Message {
	systemContent := fmt.Sprintf(chartPayloadSystemTemplate, kind, chartPayloadShape(kind))

	var sb strings.Builder
	sb.WriteString("**Goal:** ")
	sb.WriteString(goal)
	sb.WriteString("\n\n")
	sb.WriteString(FormatFindingsSection(findings))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf(chartPayloadTask, kind))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemContent},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// chartPayloadShape returns the example JSON the model must match for a
// chart kind. Shapes mirror the payload union the render client validates.
func chartPayloadShape(kind models.ChartKind) string {
	switch kind {
	case models.ChartLine, models.ChartBar, models.ChartArea:
		return `{"title": "...", "categories": ["Q1", "Q2", "Q3"], "series": [{"name": "Revenue", "values": [10, 12, 15]}]}`
	case models.ChartStackedBar:
		return `{"title": "...", "categories": ["Q1", "Q2"], "series": [{"name": "North", "values": [10, 12]}, {"name": "South", "values": [7, 9]}]}
(at least two series)`
	case models.ChartPie, models.ChartFunnel:
		return `{"title": "...", "items": [{"name": "Segment A", "value": 42}, {"name": "Segment B", "value": 31}]}`
	case models.ChartScatter:
		return `{"title": "...", "points": [{"x": 1.2, "y": 3.4}, {"x": 2.1, "y": 4.4}]}`
	case models.ChartBubble:
		return `{"title": "...", "points": [{"x": 1.2, "y": 3.4, "size": 12}, {"x": 2.1, "y": 4.4, "size": 7}]}`
	case models.ChartHeatmap:
		return `{"title": "...", "xLabels": ["Mon", "Tue"], "yLabels": ["Week 1", "Week 2"], "values": [[3, 5], [2, 8]]}
(one row of values per yLabel, one column per xLabel)`
	case models.ChartRadar:
		return `{"title": "...", "indicators": [{"name": "Speed", "max": 10}, {"name": "Cost", "max": 10}, {"name": "Quality", "max": 10}], "series": [{"name": "Option A", "values": [7, 5, 9]}]}
(at least three indicators; one value per indicator)`
	case models.ChartSankey, models.ChartFlow:
		return `{"title": "...", "nodes": [{"name": "Source A"}, {"name": "Stage B"}, {"name": "Outcome C"}], "links": [{"source": "Source A", "target": "Stage B", "value": 5}, {"source": "Stage B", "target": "Outcome C", "value": 3}]}
(links only between listed nodes, no self-links, positive values)`
	case models.ChartSunburst, models.ChartTreemap:
		return `{"title": "...", "tree": [{"name": "Root", "children": [{"name": "Leaf A", "value": 4}, {"name": "Leaf B", "value": 2}]}]}
(leaves carry positive values; branches carry children)`
	case models.ChartCandlestick:
		return `{"title": "...", "categories": ["2026-01-05", "2026-01-06"], "candles": [{"open": 10, "high": 12, "low": 9, "close": 11}, {"open": 11, "high": 13, "low": 10, "close": 12}]}
(one candle per category; high >= open/close >= low)`
	case models.ChartGantt:
		return `{"title": "...", "tasks": [{"name": "Build", "start": "2026-01-05", "end": "2026-02-27"}]}
(ISO dates, end not before start)`
	case models.ChartThemeRiver:
		return `{"title": "...", "river": [{"date": "2026-01", "value": 3, "series": "Stream A"}, {"date": "2026-02", "value": 5, "series": "Stream A"}]}`
	case models.ChartWordCloud:
		return `{"title": "...", "words": [{"text": "growth", "weight": 8}, {"text": "efficiency", "weight": 5}]}`
	default:
		return `{"title": "...", "categories": ["A", "B"], "series": [{"name": "Values", "values": [1, 2]}]}`
	}
}

// BuildChatMessages builds the one-shot Q&A conversation over a completed
// run's final content. Nothing about the exchange is persisted.
func (b *PromptBuilder) BuildChatMessages(run *models.Run, finalContent, question string) []llm.Message {
	noun := artifactNoun(run.Mode, run.Params.TemplateType)
	systemContent := fmt.Sprintf(chatSystemTemplate, noun, noun, noun)

	var sb strings.Builder
	sb.WriteString("**Original goal:** ")
	sb.WriteString(run.Goal)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("## Completed %s\n\n", noun))
	sb.WriteString(finalContent)
	sb.WriteString(fmt.Sprintf(`
%s
🎯 CURRENT TASK
%s

**Question:** %s

Answer the question based on the completed content above.
`, separator, separator, question))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemContent},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// artifactNoun names the run's output for Q&A prompts.
func artifactNoun(mode models.Mode, templateType models.TemplateType) string {
	switch mode {
	case models.ModeReport:
		return "report"
	case models.ModeTemplate:
		if templateType != "" {
			return models.TemplateName(templateType)
		}
		return "document"
	case models.ModeCharts:
		return "chart set"
	case models.ModePlan:
		return "plan"
	default:
		return "research brief"
	}
}
