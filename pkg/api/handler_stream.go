package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/agentic-research/scribe/pkg/events"
	"github.com/agentic-research/scribe/pkg/models"
)

// defaultHeartbeatInterval is the SSE keepalive cadence when the delivery
// config does not set one.
const defaultHeartbeatInterval = 15 * time.Second

// streamRunHandler handles GET /api/v1/runs/:id/stream (SSE).
//
// Frame order: catchup replay for seq > lastSeq, then live frames from the
// hub, deduplicated by seq. The connection closes after the terminal
// activity, on client disconnect, or after one final stream.degraded frame
// when the subscriber buffer overflowed.
func (s *Server) streamRunHandler(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id is required"})
		return
	}

	var lastSeq int64
	if v := c.Query("lastSeq"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lastSeq: must be a non-negative integer"})
			return
		}
		lastSeq = parsed
	}

	// Owner check before the stream opens; errors are still plain JSON here.
	if _, err := s.runs.GetRunForUser(c.Request.Context(), runID, caller(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	sub, err := s.hub.Subscribe(c.Request.Context(), runID, lastSeq)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer s.hub.Unsubscribe(sub)

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Writer.Flush()

	interval := s.heartbeatInterval()
	heartbeat := time.NewTimer(interval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-sub.Dropped():
			// The hub evicted us for falling behind. Tell the client to
			// reconnect with lastSeq before closing.
			frame, err := events.TransientFrame(models.FrameStreamDegraded,
				models.StreamDegradedPayload{Reason: "subscriber buffer overflow"})
			if err == nil {
				_ = writeFrame(c, frame)
			}
			return

		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			if err := writeFrame(c, frame); err != nil {
				return
			}
			if models.IsTerminalActivity(frame.Kind) {
				return
			}
			heartbeat.Reset(interval)

		case <-heartbeat.C:
			frame, err := events.TransientFrame(models.FrameHeartbeat,
				models.HeartbeatPayload{ServerTime: time.Now().UTC()})
			if err != nil {
				return
			}
			if err := writeFrame(c, frame); err != nil {
				return
			}
			heartbeat.Reset(interval)
		}
	}
}

// writeFrame renders one SSE event and flushes it. Persisted frames carry
// their seq as the SSE id; transient frames (seq 0) have none.
func writeFrame(c *gin.Context, frame events.Frame) error {
	ev := sse.Event{Event: frame.Kind, Data: frame}
	if frame.Seq > 0 {
		ev.Id = strconv.FormatInt(frame.Seq, 10)
	}
	if err := sse.Encode(c.Writer, ev); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func (s *Server) heartbeatInterval() time.Duration {
	if s.cfg != nil && s.cfg.Delivery.HeartbeatInterval > 0 {
		return s.cfg.Delivery.HeartbeatInterval
	}
	return defaultHeartbeatInterval
}
