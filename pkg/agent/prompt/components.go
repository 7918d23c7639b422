package prompt

import (
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/models"
)

// FormatFindingsSection renders the accumulated findings, numbered and
// tagged with their origin. The entire corpus is rendered every time;
// drafting calls always see all of it.
func FormatFindingsSection(findings []models.Finding) string {
	if len(findings) == 0 {
		return "## Findings\nNo findings were gathered.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Findings\n\n")
	for i, f := range findings {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s", i+1, f.Origin, f.Text))
		if f.SourceRef != "" {
			sb.WriteString(" (source: ")
			sb.WriteString(f.SourceRef)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatSourcesSection renders the collected sources as a numbered list.
func FormatSourcesSection(sources []models.Source) string {
	if len(sources) == 0 {
		return "## Sources\nNo sources were collected.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Sources\n\n")
	for i, s := range sources {
		sb.WriteString(fmt.Sprintf("%d. ", i+1))
		if s.Title != "" {
			sb.WriteString(s.Title)
			sb.WriteString(" — ")
		}
		sb.WriteString(s.Label())
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatDocumentsSection concatenates the uploaded documents in full,
// each labeled with its file name and separated by a horizontal rule.
func FormatDocumentsSection(files []models.FileInput) string {
	if len(files) == 0 {
		return "## Documents\nNo documents provided.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Documents\n\n")
	for i, f := range files {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString("### ")
		sb.WriteString(f.FileName)
		sb.WriteString("\n\n")
		if strings.TrimSpace(f.Content) == "" {
			sb.WriteString("_No usable content._")
			continue
		}
		sb.WriteString(f.Content)
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatDocumentExcerpt renders the documents like FormatDocumentsSection
// but caps the combined content at maxBytes, cutting at the limit with a
// truncation note. Used where documents are context, not the subject.
func FormatDocumentExcerpt(files []models.FileInput, maxBytes int) string {
	if len(files) == 0 {
		return "## Documents\nNo documents provided.\n"
	}

	remaining := maxBytes
	var sb strings.Builder
	sb.WriteString("## Documents\n\n")
	for i, f := range files {
		if remaining <= 0 {
			sb.WriteString("\n\n[remaining documents omitted]\n")
			return sb.String()
		}
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString("### ")
		sb.WriteString(f.FileName)
		sb.WriteString("\n\n")

		content := strings.TrimSpace(f.Content)
		if content == "" {
			sb.WriteString("_No usable content._")
			continue
		}
		if len(content) > remaining {
			sb.WriteString(content[:remaining])
			sb.WriteString("\n\n[content truncated]\n")
			return sb.String()
		}
		sb.WriteString(content)
		remaining -= len(content)
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatRequestSection renders the request metadata block shared by the
// planner and drafting prompts.
func FormatRequestSection(run *models.Run) string {
	var sb strings.Builder
	sb.WriteString("## Request\n\n")
	sb.WriteString("**Mode:** ")
	sb.WriteString(string(run.Mode))
	sb.WriteString("\n**Goal:** ")
	sb.WriteString(run.Goal)
	sb.WriteString("\n**Depth:** ")
	sb.WriteString(string(run.Params.Depth))
	sb.WriteString("\n")
	if run.Params.Focus != "" {
		sb.WriteString("**Focus:** ")
		sb.WriteString(run.Params.Focus)
		sb.WriteString("\n")
	}
	if len(run.Params.ChartTypes) > 0 {
		sb.WriteString("**Requested charts:** ")
		sb.WriteString(joinChartKinds(run.Params.ChartTypes))
		sb.WriteString("\n")
	}
	if run.Params.TemplateType != "" {
		sb.WriteString("**Template:** ")
		sb.WriteString(models.TemplateName(run.Params.TemplateType))
		sb.WriteString(" — sections: ")
		sb.WriteString(strings.Join(models.TemplateSections(run.Params.TemplateType), ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func joinChartKinds(kinds []models.ChartKind) string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return strings.Join(out, ", ")
}
