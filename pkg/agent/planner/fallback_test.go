package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/models"
)

func TestFallbackPlan_PassesGuardrailsForEveryMode(t *testing.T) {
	runs := []*models.Run{
		researchRun(),
		reportRun(models.ChartBar, models.ChartHeatmap),
		templateRun(false),
		templateRun(true),
		{
			Mode: models.ModeCharts,
			Goal: "visualize adoption",
			Params: models.RunParams{
				Depth:      models.DepthShort,
				ChartTypes: []models.ChartKind{models.ChartLine},
			},
		},
		{
			Mode:   models.ModePlan,
			Goal:   "open a second office in Brno",
			Params: models.RunParams{Depth: models.DepthComprehensive},
		},
	}

	for _, run := range runs {
		plan := FallbackPlan(run)
		assert.NoError(t, validatePlan(plan, run, defaultMaxToolCalls), "mode %s", run.Mode)
	}
}

func TestFallbackPlan_Research(t *testing.T) {
	run := researchRun()

	plan := FallbackPlan(run)

	require.Len(t, plan.ToolCalls, 2)
	assert.Equal(t, models.ToolSearchWeb, plan.ToolCalls[0].Tool)
	assert.Equal(t, "state of the European offshore wind market", plan.ToolCalls[0].StringParam("query"))
	assert.Equal(t, models.ToolCompile, plan.ToolCalls[1].Tool)
	assert.Equal(t, run.Goal, plan.Understanding.UserGoal)
}

func TestFallbackPlan_ResearchWithFiles(t *testing.T) {
	run := researchRun()
	run.Files = []models.FileInput{{FileName: "notes.txt", Content: "x"}}

	plan := FallbackPlan(run)

	require.Len(t, plan.ToolCalls, 3)
	assert.Equal(t, models.ToolAnalyzeDocuments, plan.ToolCalls[0].Tool)
	assert.Equal(t, models.ToolSearchWeb, plan.ToolCalls[1].Tool)
	assert.Equal(t, models.ToolCompile, plan.ToolCalls[2].Tool)
}

func TestFallbackPlan_ReportSectionsPerDepth(t *testing.T) {
	for depth, want := range map[models.Depth]int{
		models.DepthBrief:         2,
		models.DepthShort:         3,
		models.DepthMedium:        5,
		models.DepthLong:          7,
		models.DepthComprehensive: 9,
	} {
		run := reportRun(models.ChartBar)
		run.Params.Depth = depth

		plan := FallbackPlan(run)

		assert.Equal(t, want, plan.CountTool(models.ToolDraftSection), "depth %s", depth)
		assert.Equal(t, "Executive Summary",
			firstDraftName(plan), "depth %s drafts Executive Summary first", depth)
		assert.Equal(t, 1, plan.CountTool(models.ToolGenerateChart), "depth %s", depth)
	}
}

func TestFallbackPlan_ChartsPrefersDocumentsOverSearch(t *testing.T) {
	run := &models.Run{
		Mode: models.ModeCharts,
		Goal: "visualize adoption",
		Params: models.RunParams{
			Depth:      models.DepthShort,
			ChartTypes: []models.ChartKind{models.ChartLine, models.ChartPie},
		},
	}

	plan := FallbackPlan(run)
	assert.Equal(t, models.ToolSearchWeb, plan.ToolCalls[0].Tool)
	assert.Equal(t, 2, plan.CountTool(models.ToolGenerateChart))

	run.Files = []models.FileInput{{FileName: "metrics.csv", Content: "x"}}
	plan = FallbackPlan(run)
	assert.Equal(t, models.ToolAnalyzeDocuments, plan.ToolCalls[0].Tool)
	assert.Equal(t, 0, plan.CountTool(models.ToolSearchWeb))
}

func TestFallbackPlan_TemplateDraftsCatalogSections(t *testing.T) {
	run := templateRun(false)

	plan := FallbackPlan(run)

	var drafted []string
	for _, tc := range plan.ToolCalls {
		if tc.Tool == models.ToolDraftSection {
			drafted = append(drafted, tc.StringParam("sectionName"))
		}
	}
	assert.Equal(t, models.TemplateSections(models.TemplateSWOTAnalysis), drafted)
}

func TestFirstWords(t *testing.T) {
	assert.Equal(t, "a b c", firstWords("a b c", 12))
	assert.Equal(t, "a b", firstWords("  a   b   c  ", 2))
	assert.Equal(t, "", firstWords("", 5))
}

func firstDraftName(plan *models.Plan) string {
	for _, tc := range plan.ToolCalls {
		if tc.Tool == models.ToolDraftSection {
			return tc.StringParam("sectionName")
		}
	}
	return ""
}
