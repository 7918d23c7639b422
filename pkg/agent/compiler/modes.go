package compiler

import (
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/models"
)

// compileReport assembles the drafted sections with Executive Summary
// always first, then auto-appends a Visualizations section holding the
// successful chart images, one sub-heading per kind in request order.
func compileReport(in Input) string {
	var blocks []string
	for _, name := range reportSectionOrder(in.SectionOrder) {
		body, ok := in.Sections[name]
		if !ok {
			continue
		}
		blocks = append(blocks, sectionBlock(name, body))
	}

	if vis := visualizationsBlock(in); vis != "" {
		blocks = append(blocks, vis)
	}
	return assemble(blocks)
}

// reportSectionOrder moves Executive Summary to the front, keeping the
// drafting order of everything else.
func reportSectionOrder(order []string) []string {
	out := make([]string, 0, len(order))
	for _, name := range order {
		if name == "Executive Summary" {
			out = append(out, name)
		}
	}
	for _, name := range order {
		if name != "Executive Summary" {
			out = append(out, name)
		}
	}
	return out
}

func visualizationsBlock(in Input) string {
	block := ""
	for _, kind := range in.Run.Params.ChartTypes {
		artifact, ok := in.ChartArtifacts[kind]
		if !ok {
			continue
		}
		block += "\n\n### " + displayKind(kind) + "\n\n" + imageLine(kind, artifact)
	}
	if block == "" {
		return ""
	}
	return "## Visualizations" + block
}

// compileTemplate emits the template title and its catalog sections in
// catalog order regardless of drafting order. A section whose draft failed
// keeps its heading with an omission marker so the structure stays intact.
func compileTemplate(in Input) string {
	t := in.Run.Params.TemplateType
	blocks := []string{"# " + models.TemplateName(t)}
	for _, name := range models.TemplateSections(t) {
		body, ok := in.Sections[name]
		if !ok {
			body = omittedSection
		}
		blocks = append(blocks, sectionBlock(name, body))
	}
	return assemble(blocks)
}

// compileCharts emits images only, one per line, in request order. Failed
// kinds stay visible inline with their reason.
func compileCharts(in Input) string {
	var lines []string
	for _, kind := range in.Run.Params.ChartTypes {
		if artifact, ok := in.ChartArtifacts[kind]; ok {
			lines = append(lines, imageLine(kind, artifact))
			continue
		}
		reason, ok := in.ChartFailures[kind]
		if !ok {
			reason = "not generated"
		}
		lines = append(lines, fmt.Sprintf("**%s:** chart generation failed (%s)", kind, reason))
	}
	return assemble(lines)
}

// compilePlan emits the canonical plan sections in canonical order.
func compilePlan(in Input) string {
	blocks := make([]string, 0, len(models.PlanSections))
	for _, name := range models.PlanSections {
		body, ok := in.Sections[name]
		if !ok {
			body = omittedSection
		}
		blocks = append(blocks, sectionBlock(name, body))
	}
	return assemble(blocks)
}

func imageLine(kind models.ChartKind, artifact models.ChartArtifact) string {
	title := artifact.Title
	if title == "" {
		title = displayKind(kind)
	}
	return fmt.Sprintf("![%s - %s chart](%s)", title, kind, artifact.URL)
}

// displayKind renders a chart kind for headings.
func displayKind(kind models.ChartKind) string {
	switch kind {
	case models.ChartStackedBar:
		return "Stacked Bar"
	case models.ChartThemeRiver:
		return "Theme River"
	case models.ChartWordCloud:
		return "Word Cloud"
	case models.ChartCandlestick:
		return "Candlestick"
	}
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
