package prompt

import (
	"fmt"
	"strings"

	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/models"
)

// SectionRequest carries everything one section-drafting call needs. The
// findings corpus is always passed whole; drafting never sees a truncated
// view of the evidence.
type SectionRequest struct {
	Mode         models.Mode
	TemplateType models.TemplateType
	SectionName  string
	Goal         string
	Focus        string
	Findings     []models.Finding
	Sources      []models.Source
	// PeerSections are the other section names of the document. The
	// contract forbids repeating their material.
	PeerSections []string
	// Compact switches to the shorter retry prompt after a failed draft.
	Compact bool
}

// sectionContract pins what one section must and must not contain. Every
// section is drafted by its own LLM call against its own contract; the
// MUST NOT side is what keeps sections from restating each other.
type sectionContract struct {
	Must    []string
	MustNot []string
}

// researchSectionContracts are the fixed contracts of research mode.
var researchSectionContracts = map[string]sectionContract{
	"Overview": {
		Must: []string{
			"Set the context of the topic in 2 to 3 paragraphs",
			"Explain why the goal matters and what the reader should expect",
		},
		MustNot: []string{
			"State findings, statistics or sourced facts",
			"Give recommendations",
			"Use bullet lists or headings",
		},
	},
	"Key Findings": {
		Must: []string{
			"Be a markdown bullet list with one fact per bullet",
			"Draw every bullet from the findings, at least 5 bullets when the findings allow",
			"Keep each bullet to one sentence",
		},
		MustNot: []string{
			"Interpret, compare or editorialize",
			"Introduce facts absent from the findings",
			"Repeat the Overview",
		},
	},
	"Analysis": {
		Must: []string{
			"Interpret the findings in 3 to 5 paragraphs",
			"Draw out connections, trends and implications",
		},
		MustNot: []string{
			"Restate findings verbatim",
			"Give recommendations",
			"Use bullet lists or headings",
		},
	},
	"Recommendations": {
		Must: []string{
			"Be a numbered list of 4 to 6 actionable items",
			"Ground every item in the analysis",
		},
		MustNot: []string{
			"Repeat findings or analysis text",
			"Exceed one sentence of justification per item",
		},
	},
}

// planSectionRoles gives each canonical plan section its responsibility.
var planSectionRoles = map[string]string{
	"Executive Summary": "Summarize the whole plan in one tight paragraph",
	"Goals":             "List the concrete objectives as bullets",
	"Timeline":          "Lay out the phases with realistic date ranges",
	"Resources":         "Name the people, budget and tooling required",
	"Risks":             "List the major risks, each with a one-line mitigation",
	"Recommendations":   "Give numbered next actions",
	"Conclusion":        "Close with the expected outcome in one paragraph",
}

// bulletSections are section names whose body must be a bullet list.
var bulletSections = map[string]bool{
	"Strengths":     true,
	"Weaknesses":    true,
	"Opportunities": true,
	"Threats":       true,
	"Key Findings":  true,
}

// BuildSectionMessages builds one section-drafting conversation.
func (b *PromptBuilder) BuildSectionMessages(req SectionRequest) []llm.Message {
	systemContent := sectionWriterInstructions(req) + "\n\n" + formatContract(req.SectionName, contractFor(req))

	var sb strings.Builder
	sb.WriteString("**Goal:** ")
	sb.WriteString(req.Goal)
	sb.WriteString("\n")
	if req.Focus != "" {
		sb.WriteString("**Focus:** ")
		sb.WriteString(req.Focus)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(FormatFindingsSection(req.Findings))
	sb.WriteString("\n")

	if req.Compact {
		sb.WriteString(fmt.Sprintf(sectionRetryTaskTemplate, req.SectionName))
	} else {
		sb.WriteString(FormatSourcesSection(req.Sources))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(sectionTaskTemplate, req.SectionName))
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemContent},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// BuildBriefSynthesisMessages builds the two-paragraph synthesis used by
// research mode at brief depth in place of the four drafted sections.
func (b *PromptBuilder) BuildBriefSynthesisMessages(goal, focus string, findings []models.Finding, sources []models.Source) []llm.Message {
	var sb strings.Builder
	sb.WriteString("**Goal:** ")
	sb.WriteString(goal)
	sb.WriteString("\n")
	if focus != "" {
		sb.WriteString("**Focus:** ")
		sb.WriteString(focus)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(FormatFindingsSection(findings))
	sb.WriteString("\n")
	sb.WriteString(FormatSourcesSection(sources))
	sb.WriteString("\n")
	sb.WriteString("Write the two-paragraph synthesis now.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: briefSynthesisSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// sectionWriterInstructions picks the writer identity for the mode.
func sectionWriterInstructions(req SectionRequest) string {
	switch req.Mode {
	case models.ModeReport:
		return reportWriterInstructions
	case models.ModeTemplate:
		name := "business"
		if req.TemplateType != "" {
			name = models.TemplateName(req.TemplateType)
		}
		return fmt.Sprintf(templateWriterTemplate, name)
	case models.ModePlan:
		return planWriterInstructions
	default:
		return researchWriterInstructions
	}
}

// contractFor resolves the section contract for a request. Research mode
// has fixed contracts; everything else gets a generic one built from the
// section's role and its peers.
func contractFor(req SectionRequest) sectionContract {
	if req.Mode == models.ModeResearch {
		if c, ok := researchSectionContracts[req.SectionName]; ok {
			return c
		}
	}

	var must []string
	if req.Mode == models.ModePlan {
		if role, ok := planSectionRoles[req.SectionName]; ok {
			must = append(must, role)
		}
	}
	if req.SectionName == "Executive Summary" {
		must = append(must, "Summarize the entire document in 2 to 4 sentences a busy reader can act on")
	}
	if bulletSections[req.SectionName] {
		must = append(must, "Be a markdown bullet list, one point per bullet")
	}
	must = append(must,
		fmt.Sprintf("Cover only the %q concern of the document", req.SectionName),
		"Ground every claim in the findings",
	)

	mustNot := []string{"Include the section heading: it is added during assembly"}
	if len(req.PeerSections) > 0 {
		mustNot = append(mustNot,
			fmt.Sprintf("Repeat material that belongs to the other sections (%s)",
				strings.Join(req.PeerSections, ", ")))
	}
	mustNot = append(mustNot, "Introduce facts absent from the findings")

	return sectionContract{Must: must, MustNot: mustNot}
}

// formatContract renders one contract as the MUST / MUST NOT block of the
// section system prompt.
func formatContract(sectionName string, c sectionContract) string {
	var sb strings.Builder
	sb.WriteString("## Section Contract: ")
	sb.WriteString(sectionName)
	sb.WriteString("\n\nThis section MUST:\n")
	for _, m := range c.Must {
		sb.WriteString("- ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	sb.WriteString("\nThis section MUST NOT:\n")
	for _, m := range c.MustNot {
		sb.WriteString("- ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	return sb.String()
}
