package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentic-research/scribe/pkg/agent/compiler"
	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/capability"
	"github.com/agentic-research/scribe/pkg/chart"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

// analyzeDocuments asks the LLM to extract one finding per line from the
// uploaded documents and credits each file as a source.
func (e *Executor) analyzeDocuments(ctx context.Context, st *runState) (*stepResult, error) {
	completion, err := e.llmClient.Ask(ctx, llm.Request{
		Messages: e.prompts.BuildAnalysisMessages(st.run),
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing documents: %w", err)
	}

	added := 0
	for _, line := range strings.Split(completion.Text, "\n") {
		text := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•\t "))
		if len(strings.Fields(text)) < 3 {
			continue
		}
		st.findings = append(st.findings, models.Finding{
			Text:   text,
			Origin: models.OriginDocument,
		})
		added++
	}

	credited := 0
	for _, f := range st.run.Files {
		if st.addSource(models.Source{FileName: f.FileName, Origin: models.OriginDocument}) {
			credited++
		}
	}

	return &stepResult{
		summary: fmt.Sprintf("Extracted %d findings from %d documents.", added, len(st.run.Files)),
		counts:  &models.ToolResultCounts{Findings: added, Sources: credited},
	}, nil
}

// searchWeb runs one search and folds its findings and deduplicated
// sources into the run state. Searches are never retried.
func (e *Executor) searchWeb(ctx context.Context, st *runState, tc models.ToolCall) (*stepResult, error) {
	query := strings.TrimSpace(tc.StringParam("query"))
	if query == "" {
		query = st.run.Goal
	}

	result, err := e.searchCl.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	st.findings = append(st.findings, result.Findings...)
	added := 0
	for _, s := range result.Sources {
		if st.addSource(s) {
			added++
		}
	}

	return &stepResult{
		summary: fmt.Sprintf("Search %q returned %d findings from %d sources.", query, len(result.Findings), len(result.Sources)),
		counts:  &models.ToolResultCounts{Findings: len(result.Findings), Sources: added},
	}, nil
}

// generateChart builds a payload from the findings and renders it. When
// the LLM cannot produce a valid payload the sample payload for the kind
// is rendered instead, so a reachable chart service always yields a chart.
func (e *Executor) generateChart(ctx context.Context, st *runState, tc models.ToolCall) (*stepResult, error) {
	kind, err := models.NormalizeChartKind(tc.StringParam("chartKind"))
	if err != nil {
		return nil, capability.NewError(capability.KindInvalidPayload, "chart.render", err)
	}

	payload := e.chartPayload(ctx, st, kind, strings.TrimSpace(tc.StringParam("title")))
	artifact, err := e.chartCl.Render(ctx, kind, payload)
	if err != nil {
		if ctx.Err() == nil {
			st.failures[kind] = chartFailureReason(err)
		}
		return nil, err
	}

	st.artifacts[kind] = models.ChartArtifact{
		URL:    artifact.ImageURL,
		Title:  payload.Title,
		Status: "succeeded",
	}
	return &stepResult{
		summary:     fmt.Sprintf("Rendered %s chart %q.", kind, payload.Title),
		artifactKey: string(kind),
	}, nil
}

// chartPayload asks the LLM for a payload grounded in the findings and
// validates it for the kind. Any failure falls back to the sample payload.
func (e *Executor) chartPayload(ctx context.Context, st *runState, kind models.ChartKind, title string) chart.Payload {
	payload, err := e.proposePayload(ctx, st, kind)
	if err != nil {
		slog.Warn("Chart payload generation failed, rendering sample data",
			"run_id", st.run.ID,
			"chart_kind", kind,
			"error", err)
		payload = chart.SamplePayload(kind)
	}
	if title != "" {
		payload.Title = title
	}
	return payload
}

func (e *Executor) proposePayload(ctx context.Context, st *runState, kind models.ChartKind) (chart.Payload, error) {
	completion, err := e.llmClient.Ask(ctx, llm.Request{
		Messages:   e.prompts.BuildChartPayloadMessages(kind, st.run.Goal, st.findings),
		ExpectJSON: true,
	})
	if err != nil {
		return chart.Payload{}, err
	}

	var payload chart.Payload
	if err := json.Unmarshal([]byte(llm.ExtractJSON(completion.Text)), &payload); err != nil {
		return chart.Payload{}, fmt.Errorf("chart payload is not valid JSON: %w", err)
	}
	if err := chart.Validate(kind, &payload); err != nil {
		return chart.Payload{}, err
	}
	return payload, nil
}

// chartFailureReason folds a render failure into the closed reason set
// surfaced in the final document.
func chartFailureReason(err error) string {
	switch capability.KindOf(err) {
	case capability.KindTimeout:
		return "timeout"
	case capability.KindInvalidPayload:
		return "invalid_payload"
	}
	return "render_error"
}

// draftSection drafts one named section over the full findings corpus.
// Retry policy lives in the compiler's DraftSection.
func (e *Executor) draftSection(ctx context.Context, st *runState, tc models.ToolCall) (*stepResult, error) {
	name := strings.TrimSpace(tc.StringParam("sectionName"))
	if name == "" {
		return nil, fmt.Errorf("draft_section requires a sectionName parameter")
	}

	body, err := e.compiler.DraftSection(ctx, prompt.SectionRequest{
		Mode:         st.run.Mode,
		TemplateType: st.run.Params.TemplateType,
		SectionName:  name,
		Goal:         st.run.Goal,
		Focus:        st.run.Params.Focus,
		Findings:     st.findings,
		Sources:      st.sources,
		PeerSections: st.peersOf(name),
	})
	if err != nil {
		return nil, fmt.Errorf("drafting %s: %w", name, err)
	}

	if _, ok := st.sections[name]; !ok {
		st.sectionOrder = append(st.sectionOrder, name)
	}
	st.sections[name] = body

	chars := len([]rune(body))
	return &stepResult{
		summary: fmt.Sprintf("Drafted the %s section (%d characters).", name, chars),
		drafted: &models.SectionDraftedPayload{SectionName: name, CharCount: chars},
	}, nil
}

// compile hands everything gathered so far to the compiler. Sections the
// compiler drafts itself (research mode) are surfaced through OnSection.
func (e *Executor) compile(ctx context.Context, st *runState) (*stepResult, error) {
	final, err := e.compiler.Compile(ctx, compiler.Input{
		Run:            st.run,
		Findings:       st.findings,
		Sources:        st.sources,
		Sections:       st.sections,
		SectionOrder:   st.sectionOrder,
		ChartArtifacts: st.artifacts,
		ChartFailures:  st.failures,
		OnSection: func(name, body string) {
			payload := models.SectionDraftedPayload{SectionName: name, CharCount: len([]rune(body))}
			if _, err := e.recorder.Append(ctx, st.run.ID, models.ActivitySectionDrafted, payload); err != nil {
				slog.Error("Failed to record drafted section",
					"run_id", st.run.ID,
					"section", name,
					"error", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	st.finalContent = final
	return &stepResult{
		summary:     fmt.Sprintf("Assembled the final document (%d characters).", len([]rune(final))),
		artifactKey: "finalContent",
	}, nil
}
