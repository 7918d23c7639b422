package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

func newResearchRun() *models.Run {
	return &models.Run{
		ID:     "run-1",
		UserID: "user-1",
		Mode:   models.ModeResearch,
		Goal:   "quantum computing milestones 2024",
		Params: models.RunParams{Depth: models.DepthMedium, Focus: "hardware progress"},
	}
}

func TestBuildPlannerMessages_MessageCount(t *testing.T) {
	builder := NewPromptBuilder()

	messages := builder.BuildPlannerMessages(newResearchRun())

	require.Len(t, messages, 2, "Should have system + user message")
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.RoleUser, messages[1].Role)
}

func TestBuildPlannerMessages_SystemMessageContent(t *testing.T) {
	builder := NewPromptBuilder()

	messages := builder.BuildPlannerMessages(newResearchRun())
	systemMsg := messages[0].Content

	assert.Contains(t, systemMsg, "planning stage")
	assert.Contains(t, systemMsg, `"understanding"`)
	assert.Contains(t, systemMsg, `"toolCalls"`)
	assert.Contains(t, systemMsg, "Between 1 and 40 tool calls")
	assert.Contains(t, systemMsg, "JSON object only")
}

func TestBuildPlannerMessages_UserMessageContent(t *testing.T) {
	builder := NewPromptBuilder()

	messages := builder.BuildPlannerMessages(newResearchRun())
	userMsg := messages[1].Content

	assert.Contains(t, userMsg, "Available tools")
	assert.Contains(t, userMsg, "search_web")
	assert.Contains(t, userMsg, "compile")
	assert.Contains(t, userMsg, "quantum computing milestones 2024")
	assert.Contains(t, userMsg, "hardware progress")
	assert.Contains(t, userMsg, "Planning constraints")
	assert.Contains(t, userMsg, "at most 2 search_web call(s)")
}

func TestBuildPlannerMessages_ResearchHidesDraftingTools(t *testing.T) {
	builder := NewPromptBuilder()

	messages := builder.BuildPlannerMessages(newResearchRun())
	userMsg := messages[1].Content

	assert.NotContains(t, userMsg, "draft_section")
	assert.NotContains(t, userMsg, "generate_chart")
	// No files on this run, so document analysis is not offered either.
	assert.NotContains(t, userMsg, "analyze_documents")
	assert.NotContains(t, userMsg, "## Documents")
}

func TestBuildPlannerMessages_FilesExcerpt(t *testing.T) {
	builder := NewPromptBuilder()
	run := newResearchRun()
	run.Files = []models.FileInput{
		{UploadID: "u1", FileName: "notes.pdf", Content: "IBM unveiled a 1121-qubit processor."},
	}

	messages := builder.BuildPlannerMessages(run)
	userMsg := messages[1].Content

	assert.Contains(t, userMsg, "analyze_documents")
	assert.Contains(t, userMsg, "### notes.pdf")
	assert.Contains(t, userMsg, "1121-qubit")
	assert.Contains(t, userMsg, "analyze_documents at most once")
}

func TestBuildPlannerMessages_ReportConstraints(t *testing.T) {
	builder := NewPromptBuilder()
	run := &models.Run{
		Mode: models.ModeReport,
		Goal: "Q4 2024 sales",
		Params: models.RunParams{
			Depth:      models.DepthMedium,
			ChartTypes: []models.ChartKind{models.ChartBar, models.ChartLine},
		},
	}

	messages := builder.BuildPlannerMessages(run)
	userMsg := messages[1].Content

	assert.Contains(t, userMsg, "exactly 5 draft_section calls")
	assert.Contains(t, userMsg, `"Executive Summary"`)
	assert.Contains(t, userMsg, "one generate_chart call per requested kind: bar, line")
	assert.Contains(t, userMsg, `[choices: "bar", "line"]`)
	assert.Contains(t, userMsg, "Visualizations")
}

func TestBuildPlannerMessages_TemplateConstraints(t *testing.T) {
	builder := NewPromptBuilder()
	run := &models.Run{
		Mode: models.ModeTemplate,
		Goal: "Tesla 2024",
		Params: models.RunParams{
			Depth:        models.DepthMedium,
			TemplateType: models.TemplateSWOTAnalysis,
		},
	}

	messages := builder.BuildPlannerMessages(run)
	userMsg := messages[1].Content

	assert.Contains(t, userMsg, "SWOT Analysis")
	assert.Contains(t, userMsg, "Overview, Strengths, Weaknesses, Opportunities, Threats, Strategic Recommendations")
	assert.Contains(t, userMsg, "at most 1 search_web call")
}

func TestBuildPlannerMessages_TemplateSearchOptIn(t *testing.T) {
	builder := NewPromptBuilder()
	run := &models.Run{
		Mode: models.ModeTemplate,
		Goal: "Tesla 2024",
		Params: models.RunParams{
			Depth:          models.DepthLong,
			TemplateType:   models.TemplateSWOTAnalysis,
			AllowWebSearch: true,
		},
	}

	messages := builder.BuildPlannerMessages(run)

	assert.Contains(t, messages[1].Content, "at most 3 search_web call(s)")
}

func TestBuildPlannerMessages_PlanConstraints(t *testing.T) {
	builder := NewPromptBuilder()
	run := &models.Run{
		Mode:   models.ModePlan,
		Goal:   "launch a coffee subscription service",
		Params: models.RunParams{Depth: models.DepthMedium},
	}

	messages := builder.BuildPlannerMessages(run)
	userMsg := messages[1].Content

	assert.Contains(t, userMsg, "Executive Summary, Goals, Timeline, Resources, Risks, Recommendations, Conclusion")
	assert.Contains(t, userMsg, "at most 2 search_web calls")
}

func TestBuildAnalysisMessages_Content(t *testing.T) {
	builder := NewPromptBuilder()
	run := newResearchRun()
	run.Files = []models.FileInput{
		{FileName: "a.txt", Content: "Alpha releases quarterly."},
		{FileName: "b.txt", Content: "Beta ships monthly."},
	}

	messages := builder.BuildAnalysisMessages(run)
	require.Len(t, messages, 2)

	assert.Contains(t, messages[0].Content, "extracting facts")
	assert.Contains(t, messages[0].Content, "relevant to the research goal")

	userMsg := messages[1].Content
	assert.Contains(t, userMsg, "### a.txt")
	assert.Contains(t, userMsg, "### b.txt")
	assert.Contains(t, userMsg, "---")
	assert.Contains(t, userMsg, "Alpha releases quarterly.")
	assert.Contains(t, userMsg, "one fact per line")
}

func TestBuildAnalysisMessages_ModeFocus(t *testing.T) {
	builder := NewPromptBuilder()
	run := newResearchRun()
	run.Mode = models.ModeCharts
	run.Files = []models.FileInput{{FileName: "data.csv", Content: "x,y"}}

	messages := builder.BuildAnalysisMessages(run)

	assert.Contains(t, messages[0].Content, "suitable for charts")
}

func TestBuildChartPayloadMessages_Content(t *testing.T) {
	builder := NewPromptBuilder()
	findings := []models.Finding{
		{Text: "Revenue grew 12% in Q4.", Origin: models.OriginWebSearch},
	}

	messages := builder.BuildChartPayloadMessages(models.ChartRadar, "compare options", findings)
	require.Len(t, messages, 2)

	systemMsg := messages[0].Content
	assert.Contains(t, systemMsg, "radar chart")
	assert.Contains(t, systemMsg, `"indicators"`)
	assert.Contains(t, systemMsg, "at least three indicators")
	assert.Contains(t, systemMsg, "JSON object only")

	userMsg := messages[1].Content
	assert.Contains(t, userMsg, "Revenue grew 12% in Q4.")
	assert.Contains(t, userMsg, "radar chart payload")
}

func TestChartPayloadShape_CoversAllKinds(t *testing.T) {
	for _, kind := range models.AllChartKinds {
		shape := chartPayloadShape(kind)
		assert.Contains(t, shape, `"title"`, "kind %s", kind)
		assert.True(t, strings.HasPrefix(shape, "{"), "kind %s", kind)
	}
}

func TestBuildChatMessages_Content(t *testing.T) {
	builder := NewPromptBuilder()
	run := newResearchRun()

	messages := builder.BuildChatMessages(run, "# Brief\n\nQuantum hardware matured.", "Which vendor leads?")
	require.Len(t, messages, 2)

	assert.Contains(t, messages[0].Content, "research brief")
	assert.Contains(t, messages[0].Content, "never fabricate")

	userMsg := messages[1].Content
	assert.Contains(t, userMsg, "Quantum hardware matured.")
	assert.Contains(t, userMsg, "CURRENT TASK")
	assert.Contains(t, userMsg, "Which vendor leads?")
}

func TestBuildChatMessages_TemplateNoun(t *testing.T) {
	builder := NewPromptBuilder()
	run := &models.Run{
		Mode:   models.ModeTemplate,
		Goal:   "Tesla 2024",
		Params: models.RunParams{TemplateType: models.TemplateSWOTAnalysis},
	}

	messages := builder.BuildChatMessages(run, "content", "question")

	assert.Contains(t, messages[0].Content, "SWOT Analysis")
}
