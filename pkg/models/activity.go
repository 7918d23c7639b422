package models

import (
	"encoding/json"
	"time"
)

// Activity kinds persisted to the log. The set is closed: delivery
// consumers switch on these values.
const (
	ActivityRunInit        = "run.init"
	ActivityThinking       = "thinking"
	ActivityToolCall       = "tool.call"
	ActivityToolResult     = "tool.result"
	ActivityToolError      = "tool.error"
	ActivitySectionDrafted = "section.drafted"
	ActivityRunProgress    = "run.progress"
	ActivityRunCompleted   = "run.completed"
	ActivityRunFailed      = "run.failed"
	ActivityRunCancelled   = "run.cancelled"
)

// Transient frame kinds. These flow over the stream with seq=0 and are
// never written to the log.
const (
	FrameHeartbeat       = "heartbeat"
	FrameStreamDegraded  = "stream.degraded"
	FrameCatchupOverflow = "catchup.overflow"
)

// IsTerminalActivity reports whether the kind closes a run's log.
func IsTerminalActivity(kind string) bool {
	return kind == ActivityRunCompleted || kind == ActivityRunFailed || kind == ActivityRunCancelled
}

// Activity is one append-only log entry of a run. Seq starts at 1 and is
// contiguous per run.
type Activity struct {
	RunID     string          `json:"runId"`
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Thought types carried by thinking activities.
const (
	ThoughtPlanning     = "planning"
	ThoughtAnalyzing    = "analyzing"
	ThoughtSynthesis    = "synthesis"
	ThoughtSelfCritique = "self_critique"
	ThoughtPivot        = "pivot"
	ThoughtWriting      = "writing"
	ThoughtFinalReview  = "final_review"
)

// Payload shapes for the persisted activity kinds. These are the stable
// wire format: poll and stream both expose them verbatim.

type RunInitPayload struct {
	Mode            Mode         `json:"mode"`
	Goal            string       `json:"goal"`
	Depth           Depth        `json:"depth"`
	RequestedCharts []ChartKind  `json:"requestedCharts,omitempty"`
	TemplateType    TemplateType `json:"templateType,omitempty"`
}

type ThinkingPayload struct {
	Thought     string `json:"thought"`
	ThoughtType string `json:"thoughtType"`
}

type ToolCallPayload struct {
	Tool       ToolName       `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

type ToolResultCounts struct {
	Findings int `json:"findings"`
	Sources  int `json:"sources"`
}

type ToolResultPayload struct {
	Tool        ToolName          `json:"tool"`
	Summary     string            `json:"summary"`
	Counts      *ToolResultCounts `json:"counts,omitempty"`
	ArtifactKey string            `json:"artifactKey,omitempty"`
}

type ToolErrorPayload struct {
	Tool      ToolName `json:"tool"`
	ErrorKind string   `json:"errorKind"`
	Message   string   `json:"message"`
}

type SectionDraftedPayload struct {
	SectionName string `json:"sectionName"`
	CharCount   int    `json:"charCount"`
}

type RunProgressPayload struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type RunCompletedPayload struct {
	FinalContent string          `json:"finalContent"`
	Counts       ExecutionCounts `json:"counts"`
	Metadata     RunMetadata     `json:"metadata"`
}

type RunFailedPayload struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

type HeartbeatPayload struct {
	ServerTime time.Time `json:"serverTime"`
}

type StreamDegradedPayload struct {
	Reason string `json:"reason"`
}

// CatchupOverflowPayload marks a replay that stopped short. Activities
// beyond NextSeq exist but were not replayed; the caller re-reads them
// through the poll endpoint or reconnects from NextSeq.
type CatchupOverflowPayload struct {
	NextSeq int64 `json:"nextSeq"`
}
