package models

import "fmt"

// TemplateType selects a fixed-structure business document.
type TemplateType string

const (
	TemplateSWOTAnalysis      TemplateType = "swot_analysis"
	TemplateExecutiveBrief    TemplateType = "executive_brief"
	TemplateMarketLandscape   TemplateType = "market_landscape"
	TemplateCompetitorDossier TemplateType = "competitor_dossier"
	TemplateBusinessPlan      TemplateType = "business_plan"
	TemplateProjectPlan       TemplateType = "project_plan"
	TemplateStrategicPlan     TemplateType = "strategic_plan"
)

// templateCatalog pins the section list of every template type. Output
// order follows this list exactly.
var templateCatalog = map[TemplateType]templateSpec{
	TemplateSWOTAnalysis: {
		Name:     "SWOT Analysis",
		Sections: []string{"Overview", "Strengths", "Weaknesses", "Opportunities", "Threats", "Strategic Recommendations"},
	},
	TemplateExecutiveBrief: {
		Name:     "Executive Brief",
		Sections: []string{"Overview", "Key Findings", "Strategic Implications", "Recommendations"},
	},
	TemplateMarketLandscape: {
		Name:     "Market Landscape",
		Sections: []string{"Market Overview", "Segments", "Key Players", "Trends", "Competitive Dynamics", "Outlook"},
	},
	TemplateCompetitorDossier: {
		Name:     "Competitor Dossier",
		Sections: []string{"Company Profile", "Products", "Positioning", "Strengths & Weaknesses", "Outlook"},
	},
	TemplateBusinessPlan: {
		Name:     "Business Plan",
		Sections: []string{"Executive Summary", "Market", "Offering", "Go-to-Market", "Operations", "Financials", "Risks"},
	},
	TemplateProjectPlan: {
		Name:     "Project Plan",
		Sections: []string{"Scope", "Milestones", "Workstreams", "Timeline", "Resources", "Risks"},
	},
	TemplateStrategicPlan: {
		Name:     "Strategic Plan",
		Sections: []string{"Vision", "Objectives", "Initiatives", "Timeline", "Metrics", "Risks"},
	},
}

type templateSpec struct {
	Name     string
	Sections []string
}

// ParseTemplateType validates a template type from user input.
func ParseTemplateType(s string) (TemplateType, error) {
	if _, ok := templateCatalog[TemplateType(s)]; !ok {
		return "", fmt.Errorf("unknown template type %q", s)
	}
	return TemplateType(s), nil
}

// TemplateName returns the display name used as the document heading.
func TemplateName(t TemplateType) string {
	return templateCatalog[t].Name
}

// TemplateSections returns the fixed section list of a template type, in
// output order. The returned slice must not be mutated.
func TemplateSections(t TemplateType) []string {
	return templateCatalog[t].Sections
}

// PlanSections is the canonical section list of plan mode.
var PlanSections = []string{
	"Executive Summary", "Goals", "Timeline", "Resources", "Risks",
	"Recommendations", "Conclusion",
}
