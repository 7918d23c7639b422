package models

import "fmt"

// ToolName identifies one of the executor's dispatch targets.
type ToolName string

const (
	ToolAnalyzeDocuments ToolName = "analyze_documents"
	ToolSearchWeb        ToolName = "search_web"
	ToolGenerateChart    ToolName = "generate_chart"
	ToolDraftSection     ToolName = "draft_section"
	ToolCompile          ToolName = "compile"
)

// ParseToolName validates a tool name coming from planner output.
func ParseToolName(s string) (ToolName, error) {
	switch ToolName(s) {
	case ToolAnalyzeDocuments, ToolSearchWeb, ToolGenerateChart, ToolDraftSection, ToolCompile:
		return ToolName(s), nil
	}
	return "", fmt.Errorf("unknown tool %q", s)
}

// Understanding is the planner's reading of the goal. Free-form but with
// a stable shape so the thinking activity renders consistently.
type Understanding struct {
	CoreSubject string   `json:"coreSubject"`
	UserGoal    string   `json:"userGoal"`
	KeyTopics   []string `json:"keyTopics,omitempty"`
	DataGaps    []string `json:"dataGaps,omitempty"`
}

// Summary renders the understanding as one human-readable line for the
// planning thought.
func (u Understanding) Summary() string {
	if u.CoreSubject == "" {
		return u.UserGoal
	}
	if u.UserGoal == "" {
		return u.CoreSubject
	}
	return fmt.Sprintf("%s: %s", u.CoreSubject, u.UserGoal)
}

// ToolCall is one planned step. Parameters stay schemaless because the
// planner emits them and per-tool validation happens in the guardrails.
type ToolCall struct {
	Tool       ToolName       `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	DependsOn  []int          `json:"dependsOn,omitempty"`
}

// StringParam returns a string-typed parameter, or "" when absent or not
// a string.
func (tc ToolCall) StringParam(key string) string {
	v, ok := tc.Parameters[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Plan is the validated output of the planner.
type Plan struct {
	Understanding Understanding `json:"understanding"`
	ToolCalls     []ToolCall    `json:"toolCalls"`
}

// CountTool returns how many calls in the plan target the given tool.
func (p *Plan) CountTool(tool ToolName) int {
	n := 0
	for _, tc := range p.ToolCalls {
		if tc.Tool == tool {
			n++
		}
	}
	return n
}
