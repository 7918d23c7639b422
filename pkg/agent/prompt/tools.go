package prompt

import (
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/models"
)

// ToolDefinition describes one executor tool for prompt injection.
type ToolDefinition struct {
	Name        models.ToolName
	Description string
	Parameters  []ParameterDefinition
}

// ParameterDefinition describes one tool parameter.
type ParameterDefinition struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Choices     []string
}

// ToolsForMode returns the tool definitions a plan for this run may use.
// The list is mode-filtered so the planner never sees tools its guardrails
// would reject, and generate_chart's chartKind choices are pinned to the
// run's requested kinds.
func ToolsForMode(run *models.Run) []ToolDefinition {
	var tools []ToolDefinition

	appendAnalyze := func() {
		if len(run.Files) == 0 {
			return
		}
		tools = append(tools, ToolDefinition{
			Name:        models.ToolAnalyzeDocuments,
			Description: "Extracts facts from the uploaded documents. Use at most once.",
		})
	}
	appendSearch := func() {
		tools = append(tools, ToolDefinition{
			Name:        models.ToolSearchWeb,
			Description: "Runs one web search and structures the results into findings.",
			Parameters: []ParameterDefinition{
				{Name: "query", Type: "string", Required: true,
					Description: "Specific keyword query, not a question."},
			},
		})
	}
	appendChart := func() {
		if len(run.Params.ChartTypes) == 0 {
			return
		}
		choices := make([]string, len(run.Params.ChartTypes))
		for i, k := range run.Params.ChartTypes {
			choices[i] = string(k)
		}
		tools = append(tools, ToolDefinition{
			Name:        models.ToolGenerateChart,
			Description: "Renders one chart from the gathered findings.",
			Parameters: []ParameterDefinition{
				{Name: "chartKind", Type: "string", Required: true, Choices: choices,
					Description: "The kind of chart to render."},
				{Name: "title", Type: "string",
					Description: "Short chart title."},
			},
		})
	}
	appendDraft := func() {
		tools = append(tools, ToolDefinition{
			Name:        models.ToolDraftSection,
			Description: "Writes one named section of the final document.",
			Parameters: []ParameterDefinition{
				{Name: "sectionName", Type: "string", Required: true,
					Description: "The section to draft."},
			},
		})
	}

	switch run.Mode {
	case models.ModeResearch:
		appendAnalyze()
		appendSearch()
	case models.ModeReport:
		appendSearch()
		appendChart()
		appendDraft()
	case models.ModeTemplate:
		appendSearch()
		appendDraft()
	case models.ModeCharts:
		appendAnalyze()
		appendSearch()
		appendChart()
	case models.ModePlan:
		appendSearch()
		appendDraft()
	}

	tools = append(tools, ToolDefinition{
		Name:        models.ToolCompile,
		Description: "Assembles the final artifact. Exactly one compile call, always last.",
	})
	return tools
}

// FormatToolDescriptions formats tool definitions for planner prompt
// injection, with parameter details for LLM guidance.
func FormatToolDescriptions(tools []ToolDefinition) string {
	if len(tools) == 0 {
		return "No tools available."
	}

	var sb strings.Builder
	for i, tool := range tools {
		sb.WriteString(fmt.Sprintf("%d. **%s**: %s\n", i+1, tool.Name, tool.Description))

		if len(tool.Parameters) == 0 {
			sb.WriteString("    **Parameters**: None\n")
		} else {
			sb.WriteString("    **Parameters**:\n")
			for _, p := range tool.Parameters {
				sb.WriteString("    - ")
				sb.WriteString(formatParameter(p))
				sb.WriteString("\n")
			}
		}

		// Blank line between tools (not after last)
		if i < len(tools)-1 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func formatParameter(p ParameterDefinition) string {
	reqLabel := "optional"
	if p.Required {
		reqLabel = "required"
	}
	typeSuffix := ""
	if p.Type != "" {
		typeSuffix = ", " + p.Type
	}

	var parts []string
	parts = append(parts, p.Name, fmt.Sprintf(" (%s%s)", reqLabel, typeSuffix))
	if p.Description != "" {
		parts = append(parts, ": "+p.Description)
	}
	if len(p.Choices) > 0 {
		vals := make([]string, 0, len(p.Choices))
		for _, c := range p.Choices {
			vals = append(vals, fmt.Sprintf("%q", c))
		}
		parts = append(parts, " [choices: "+strings.Join(vals, ", ")+"]")
	}
	return strings.Join(parts, "")
}
