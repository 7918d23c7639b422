package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// validTransitions encodes the forward-only status machine:
// queued → running → {completed, failed, cancelled}, plus queued → cancelled.
var validTransitions = map[RunStatus][]RunStatus{
	StatusQueued:  {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to RunStatus) bool {
	for _, allowed := range validTransitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Mode selects which kind of artifact a run produces.
type Mode string

const (
	ModeResearch Mode = "research"
	ModeReport   Mode = "report"
	ModeTemplate Mode = "template"
	ModeCharts   Mode = "charts"
	ModePlan     Mode = "plan"
)

// ParseMode validates a mode string from user input.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeResearch, ModeReport, ModeTemplate, ModeCharts, ModePlan:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Depth tunes how much work a run performs. Its exact meaning is
// mode-specific (search call budget, section count, synthesis length).
type Depth string

const (
	DepthBrief         Depth = "brief"
	DepthShort         Depth = "short"
	DepthMedium        Depth = "medium"
	DepthLong          Depth = "long"
	DepthComprehensive Depth = "comprehensive"
)

// ParseDepth validates a depth string from user input. Empty input
// defaults to medium.
func ParseDepth(s string) (Depth, error) {
	if s == "" {
		return DepthMedium, nil
	}
	switch Depth(s) {
	case DepthBrief, DepthShort, DepthMedium, DepthLong, DepthComprehensive:
		return Depth(s), nil
	}
	return "", fmt.Errorf("unknown depth %q", s)
}

// SearchBudget returns the maximum number of search_web calls a research
// plan may contain at this depth.
func (d Depth) SearchBudget() int {
	switch d {
	case DepthBrief, DepthShort:
		return 1
	case DepthMedium:
		return 2
	case DepthLong:
		return 3
	case DepthComprehensive:
		return 4
	}
	return 2
}

// ReportSectionCount returns the number of drafted sections a report plan
// should carry at this depth.
func (d Depth) ReportSectionCount() int {
	switch d {
	case DepthBrief:
		return 2
	case DepthShort:
		return 3
	case DepthMedium:
		return 5
	case DepthLong:
		return 7
	case DepthComprehensive:
		return 9
	}
	return 5
}

// RunParams carries the mode-specific knobs of a run.
type RunParams struct {
	Depth          Depth        `json:"depth"`
	Focus          string       `json:"focus,omitempty"`
	TemplateType   TemplateType `json:"templateType,omitempty"`
	ChartTypes     []ChartKind  `json:"chartTypes,omitempty"`
	PlanFormat     string       `json:"planFormat,omitempty"`
	AllowWebSearch bool         `json:"allowWebSearch,omitempty"`
}

// FileInput is one uploaded document. Content is extracted plain text;
// empty content means the upload had no usable body.
type FileInput struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// ChartArtifact records one successful chart render.
type ChartArtifact struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status"`
}

// ExecutionCounts summarizes what a finished run accumulated.
type ExecutionCounts struct {
	Findings int `json:"findings"`
	Sources  int `json:"sources"`
	Charts   int `json:"charts"`
}

// RunMetadata holds bookkeeping that is not part of the run request.
type RunMetadata struct {
	RegeneratedFrom string           `json:"regeneratedFrom,omitempty"`
	ExecutionCounts *ExecutionCounts `json:"executionCounts,omitempty"`
}

// Run is one user request moving through the planner/executor pipeline.
type Run struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	OrgID  string `json:"orgId,omitempty"`

	Mode   Mode        `json:"mode"`
	Goal   string      `json:"goal"`
	Params RunParams   `json:"params"`
	Files  []FileInput `json:"files,omitempty"`

	Status         RunStatus                   `json:"status"`
	Plan           *Plan                       `json:"plan,omitempty"`
	FinalContent   *string                     `json:"finalContent,omitempty"`
	ChartArtifacts map[ChartKind]ChartArtifact `json:"chartArtifacts,omitempty"`
	ErrorKind      string                      `json:"errorKind,omitempty"`
	ErrorMessage   string                      `json:"errorMessage,omitempty"`
	Metadata       RunMetadata                 `json:"metadata"`

	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	LastHeartbeatAt *time.Time `json:"lastHeartbeatAt,omitempty"`

	// PodID identifies the process that claimed the run. Used by orphan
	// recovery, not exposed to callers.
	PodID string `json:"-"`
}

// RunFilters narrows ListRuns. UserID is always required: listings are
// owner-scoped.
type RunFilters struct {
	UserID string
	Status RunStatus
	Mode   Mode
	Limit  int
	Offset int
}
