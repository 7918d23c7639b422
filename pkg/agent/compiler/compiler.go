// Package compiler assembles a run's accumulated material into the final
// markdown document. Each mode has its own assembly; research mode also
// drafts its sections here because its plans never contain draft_section
// calls. A compile failure is fatal for the run.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

// Input carries everything one compile needs. Findings and Sources are the
// executor's full accumulated corpus and are always passed whole to every
// drafting call. Sections holds the bodies produced by draft_section steps,
// keyed by section name, with SectionOrder preserving drafting order.
type Input struct {
	Run            *models.Run
	Findings       []models.Finding
	Sources        []models.Source
	Sections       map[string]string
	SectionOrder   []string
	ChartArtifacts map[models.ChartKind]models.ChartArtifact
	ChartFailures  map[models.ChartKind]string

	// OnSection observes every section the compiler drafts itself, so the
	// caller can record section.drafted activities for them.
	OnSection func(sectionName, body string)
}

// Compiler assembles final documents. Stateless apart from its
// collaborators — safe for concurrent use across runs.
type Compiler struct {
	client  llm.Client
	prompts *prompt.PromptBuilder
}

func New(client llm.Client, prompts *prompt.PromptBuilder) *Compiler {
	return &Compiler{client: client, prompts: prompts}
}

// Compile produces the final markdown for the run's mode.
func (c *Compiler) Compile(ctx context.Context, in Input) (string, error) {
	switch in.Run.Mode {
	case models.ModeResearch:
		return c.compileResearch(ctx, in)
	case models.ModeReport:
		return compileReport(in), nil
	case models.ModeTemplate:
		return compileTemplate(in), nil
	case models.ModeCharts:
		return compileCharts(in), nil
	case models.ModePlan:
		return compilePlan(in), nil
	}
	return "", fmt.Errorf("unknown mode %q", in.Run.Mode)
}

// DraftSection produces one section body with the standard retry policy:
// a failed or empty draft is retried once with the compact prompt before
// the error is returned. Cancellation is never retried.
func (c *Compiler) DraftSection(ctx context.Context, req prompt.SectionRequest) (string, error) {
	req.Compact = false
	body, err := c.askSection(ctx, req)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return "", err
	}

	req.Compact = true
	body, retryErr := c.askSection(ctx, req)
	if retryErr != nil {
		return "", fmt.Errorf("draft failed after retry: %w", retryErr)
	}
	return body, nil
}

func (c *Compiler) askSection(ctx context.Context, req prompt.SectionRequest) (string, error) {
	completion, err := c.client.Ask(ctx, llm.Request{
		Messages: c.prompts.BuildSectionMessages(req),
	})
	if err != nil {
		return "", err
	}
	body := strings.TrimSpace(completion.Text)
	if body == "" {
		return "", fmt.Errorf("empty section draft")
	}
	return body, nil
}

// assemble joins markdown blocks into the final document with a single
// trailing newline.
func assemble(blocks []string) string {
	return strings.Join(blocks, "\n\n") + "\n"
}

func sectionBlock(name, body string) string {
	return "## " + name + "\n\n" + strings.TrimSpace(body)
}

// omittedSection marks a fixed-catalog section whose draft failed twice.
const omittedSection = "_This section could not be generated._"
