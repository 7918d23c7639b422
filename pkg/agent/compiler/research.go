package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

// researchSections is the fixed drafting order of a research brief. The
// Sources section is assembled, not drafted.
var researchSections = []string{"Overview", "Key Findings", "Analysis", "Recommendations"}

func (c *Compiler) compileResearch(ctx context.Context, in Input) (string, error) {
	if in.Run.Params.Depth == models.DepthBrief {
		return c.compileResearchBrief(ctx, in)
	}

	blocks := make([]string, 0, len(researchSections)+1)
	for _, name := range researchSections {
		body, err := c.DraftSection(ctx, prompt.SectionRequest{
			Mode:         models.ModeResearch,
			SectionName:  name,
			Goal:         in.Run.Goal,
			Focus:        in.Run.Params.Focus,
			Findings:     in.Findings,
			Sources:      in.Sources,
			PeerSections: peersOf(researchSections, name),
		})
		if err != nil {
			return "", fmt.Errorf("drafting %s: %w", name, err)
		}
		if in.OnSection != nil {
			in.OnSection(name, body)
		}
		blocks = append(blocks, sectionBlock(name, body))
	}

	blocks = append(blocks, strings.TrimSpace(prompt.FormatSourcesSection(in.Sources)))
	return assemble(blocks), nil
}

// compileResearchBrief collapses the four drafted sections into a
// two-paragraph synthesis followed by the sources list. The synthesis call
// is retried once; a second failure fails the compile.
func (c *Compiler) compileResearchBrief(ctx context.Context, in Input) (string, error) {
	messages := c.prompts.BuildBriefSynthesisMessages(in.Run.Goal, in.Run.Params.Focus, in.Findings, in.Sources)

	synthesis, err := c.ask(ctx, messages)
	if err != nil && ctx.Err() == nil {
		synthesis, err = c.ask(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("brief synthesis: %w", err)
	}

	blocks := []string{
		synthesis,
		strings.TrimSpace(prompt.FormatSourcesSection(in.Sources)),
	}
	return assemble(blocks), nil
}

func (c *Compiler) ask(ctx context.Context, messages []llm.Message) (string, error) {
	completion, err := c.client.Ask(ctx, llm.Request{Messages: messages})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

// peersOf returns every name in all except name.
func peersOf(all []string, name string) []string {
	peers := make([]string, 0, len(all)-1)
	for _, s := range all {
		if s != name {
			peers = append(peers, s)
		}
	}
	return peers
}
