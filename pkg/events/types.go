// Package events carries run activities from the writer to live
// subscribers via PostgreSQL NOTIFY/LISTEN for cross-pod distribution.
//
// ════════════════════════════════════════════════════════════════
// Frame Lifecycle
// ════════════════════════════════════════════════════════════════
//
// Every frame on the wire is one Frame envelope. There are two classes,
// distinguished by seq:
//
// PERSISTED (seq >= 1):
//
//	The activity row is INSERTed and pg_notify fires in one transaction
//	(see Publisher), so a frame is observed live if and only if it is in
//	the store. Seq is contiguous per run starting at 1; the activity log
//	is the source of truth and any frame can be re-read from it.
//
// TRANSIENT (seq == 0):
//
//	heartbeat, stream.degraded and catchup.overflow are per-connection
//	frames. They are never persisted and never travel through NOTIFY —
//	the component talking to the subscriber fabricates them locally.
//
// NOTIFY payloads are capped by PostgreSQL at 8000 bytes. Oversized
// envelopes are replaced by a marker with truncated=true and no data;
// the Hub re-reads the full row from the store before fan-out, so
// subscribers always receive complete frames.
package events

import (
	"encoding/json"
	"time"

	"github.com/agentic-research/scribe/pkg/models"
)

// Frame is the wire envelope for one activity or transient event.
// It is the SSE data payload verbatim and the NOTIFY payload for
// persisted activities.
type Frame struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	Truncated bool            `json:"truncated,omitempty"`
}

// FrameFromActivity builds the wire envelope for a persisted activity.
func FrameFromActivity(a *models.Activity) Frame {
	return Frame{
		Seq:       a.Seq,
		Kind:      a.Kind,
		Data:      a.Payload,
		Timestamp: a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// TransientFrame builds a seq=0 envelope for per-connection events
// (heartbeat, stream.degraded, catchup.overflow).
func TransientFrame(kind string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// runChannelPrefix prefixes every run's NOTIFY channel name.
const runChannelPrefix = "run:"

// RunChannel returns the NOTIFY channel for a run's activities.
// Format: "run:{run_id}"
func RunChannel(runID string) string {
	return runChannelPrefix + runID
}
