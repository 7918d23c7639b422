package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/scribe/pkg/models"
)

// defaultCatchupLimit is the maximum number of activities replayed from
// the store when a subscriber attaches. If more were missed, a
// catchup.overflow frame tells the client the gap is too wide to replay.
const defaultCatchupLimit = 200

// defaultSubscriberBuffer is the per-subscriber frame buffer. A
// subscriber that falls this far behind the log is dropped.
const defaultSubscriberBuffer = 256

// listenTimeout bounds how long a LISTEN command may block when
// subscribing to a new PG channel. Without this, a stalled connection
// would block the subscribing request indefinitely.
const listenTimeout = 10 * time.Second

// storeReadTimeout bounds store reads done on behalf of a subscriber
// (catchup replay, truncated-frame resolution).
const storeReadTimeout = 10 * time.Second

// CatchupSource reads persisted activities for replay and for resolving
// truncated NOTIFY envelopes. Implemented by services.ActivityService.
type CatchupSource interface {
	ListActivitiesSince(ctx context.Context, runID string, sinceSeq int64, limit int) ([]*models.Activity, error)
	ListActivitiesBetween(ctx context.Context, runID string, lowSeq, highSeq int64) ([]*models.Activity, error)
}

// ChannelListener manages PG LISTEN subscriptions for the hub.
// Implemented by NotifyListener.
type ChannelListener interface {
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
}

// Subscriber is one attached stream consumer. Frames arrive in seq
// order on Frames(); the channel is closed when the subscriber detaches
// or is dropped.
//
// pending holds live frames that arrive while the catchup replay is
// still being buffered. Releasing them after the replay keeps delivery
// ordered without blocking the listener's receive loop on store reads.
type Subscriber struct {
	ID    string
	RunID string

	frames  chan Frame
	dropped chan struct{}

	mu        sync.Mutex
	closed    bool
	replaying bool
	lastSeq   int64
	pending   []Frame
}

// Frames delivers persisted activity frames in seq order. Closed on
// Unsubscribe and on drop.
func (s *Subscriber) Frames() <-chan Frame { return s.frames }

// Dropped is closed when the hub evicts this subscriber because its
// buffer overflowed. The consumer owns any final stream.degraded frame;
// the hub itself never writes to a full buffer.
func (s *Subscriber) Dropped() <-chan struct{} { return s.dropped }

// deliver enqueues one live frame. Frames at or below lastSeq already
// reached this subscriber through replay or an earlier notification.
// Returns false when the buffer is exhausted and the subscriber must be
// dropped.
func (s *Subscriber) deliver(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if f.Seq <= s.lastSeq {
		return true
	}
	if s.replaying {
		if len(s.pending) >= cap(s.frames) {
			return false
		}
		s.pending = append(s.pending, f)
		return true
	}
	select {
	case s.frames <- f:
		s.lastSeq = f.Seq
		return true
	default:
		return false
	}
}

// beginLive buffers the replayed activities, releases frames held back
// during the replay, and switches the subscriber to direct delivery.
// Returns false if the buffer cannot hold the replay.
func (s *Subscriber) beginLive(replay []*models.Activity, overflow bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, a := range replay {
		select {
		case s.frames <- FrameFromActivity(a):
			s.lastSeq = a.Seq
		default:
			return false
		}
	}
	if overflow {
		f, err := TransientFrame(models.FrameCatchupOverflow, models.CatchupOverflowPayload{NextSeq: s.lastSeq})
		if err == nil {
			select {
			case s.frames <- f:
			default:
				return false
			}
		}
	}
	for _, f := range s.pending {
		if f.Seq <= s.lastSeq {
			continue
		}
		select {
		case s.frames <- f:
			s.lastSeq = f.Seq
		default:
			return false
		}
	}
	s.pending = nil
	s.replaying = false
	return true
}

// close makes the subscriber inert and closes its channels. All frame
// sends happen under mu, so closing under mu cannot race a send.
func (s *Subscriber) close(dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	if dropped {
		close(s.dropped)
	}
	close(s.frames)
}

// Hub fans persisted activity frames out to per-run subscribers. Each
// Go process (pod) has one Hub instance fed by one NotifyListener.
type Hub struct {
	store CatchupSource

	// Active subscribers: run_id → subscriber_id → subscriber
	mu   sync.RWMutex
	runs map[string]map[string]*Subscriber

	// ChannelListener for dynamic LISTEN/UNLISTEN (set after construction)
	listener   ChannelListener
	listenerMu sync.RWMutex

	catchupLimit int
	bufferSize   int
}

// NewHub creates a Hub reading catchup data from store. catchupLimit
// and bufferSize fall back to defaults when non-positive; the buffer is
// widened if the replay plus its overflow marker would not fit.
func NewHub(store CatchupSource, catchupLimit, bufferSize int) *Hub {
	if catchupLimit <= 0 {
		catchupLimit = defaultCatchupLimit
	}
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	if bufferSize <= catchupLimit {
		bufferSize = catchupLimit + 16
	}
	return &Hub{
		store:        store,
		runs:         make(map[string]map[string]*Subscriber),
		catchupLimit: catchupLimit,
		bufferSize:   bufferSize,
	}
}

// SetListener sets the ChannelListener for dynamic LISTEN/UNLISTEN.
// Called once during startup after both Hub and NotifyListener are created.
func (h *Hub) SetListener(l ChannelListener) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.listener = l
}

// Subscribe attaches a consumer to a run's activity stream. Activities
// with seq > lastSeq are replayed from the store (up to the catchup
// limit, then a catchup.overflow frame), after which live frames follow
// deduplicated by seq.
//
// The subscriber is registered before the catchup query so live frames
// arriving mid-replay are held back rather than lost, and LISTEN
// completes before the query so an activity committed between the two
// is covered by the replay, by the notification, or by both.
func (h *Hub) Subscribe(ctx context.Context, runID string, lastSeq int64) (*Subscriber, error) {
	sub := &Subscriber{
		ID:        uuid.New().String(),
		RunID:     runID,
		frames:    make(chan Frame, h.bufferSize),
		dropped:   make(chan struct{}),
		replaying: true,
		lastSeq:   lastSeq,
	}

	h.mu.Lock()
	subs, exists := h.runs[runID]
	if !exists {
		subs = make(map[string]*Subscriber)
		h.runs[runID] = subs
	}
	subs[sub.ID] = sub
	h.mu.Unlock()

	if !exists {
		if err := h.listen(RunChannel(runID)); err != nil {
			h.failRun(runID, sub)
			return nil, err
		}
	}

	replayCtx, cancel := context.WithTimeout(ctx, storeReadTimeout)
	defer cancel()
	activities, err := h.store.ListActivitiesSince(replayCtx, runID, lastSeq, h.catchupLimit+1)
	if err != nil {
		h.remove(sub, false)
		return nil, fmt.Errorf("catchup query failed: %w", err)
	}

	overflow := len(activities) > h.catchupLimit
	if overflow {
		activities = activities[:h.catchupLimit]
	}

	if !sub.beginLive(activities, overflow) {
		h.remove(sub, true)
		return nil, fmt.Errorf("subscriber buffer exhausted during replay")
	}
	return sub, nil
}

// Unsubscribe detaches a subscriber and closes its frame channel.
// Stops LISTEN for the run's channel if this was the last subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.remove(sub, false)
}

// HandleNotification parses a NOTIFY envelope and fans it out to the
// run's subscribers. Truncated envelopes are re-read from the store
// first so subscribers always receive complete frames.
func (h *Hub) HandleNotification(channel string, payload []byte) {
	runID, ok := strings.CutPrefix(channel, runChannelPrefix)
	if !ok {
		return
	}

	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		slog.Warn("Discarding malformed NOTIFY payload",
			"channel", channel, "error", err)
		return
	}

	if frame.Truncated {
		full, err := h.resolveTruncated(runID, frame.Seq)
		if err != nil {
			slog.Error("Failed to resolve truncated frame",
				"run_id", runID, "seq", frame.Seq, "error", err)
			return
		}
		frame = full
	}

	h.Broadcast(runID, frame)
}

// Broadcast delivers a persisted frame to every subscriber of the run.
// Subscribers whose buffer is full are dropped; the log is the source
// of truth and dropped clients reconnect with their last seq.
func (h *Hub) Broadcast(runID string, frame Frame) {
	// Snapshot subscriber pointers under the lock, then release before
	// delivering so slow consumers never stall subscribe/unsubscribe.
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.runs[runID]))
	for _, sub := range h.runs[runID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.deliver(frame) {
			slog.Warn("Dropping slow subscriber",
				"run_id", runID, "subscriber_id", sub.ID)
			h.remove(sub, true)
		}
	}
}

// ActiveSubscribers returns the count of attached subscribers.
func (h *Hub) ActiveSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.runs {
		n += len(subs)
	}
	return n
}

// subscriberCount returns the number of subscribers for a run.
// Unexported — used by tests to poll instead of sleeping.
func (h *Hub) subscriberCount(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runs[runID])
}

// listen starts LISTEN for a channel, synchronously, so the caller's
// catchup query runs with the notification feed already active.
func (h *Hub) listen(channel string) error {
	h.listenerMu.RLock()
	l := h.listener
	h.listenerMu.RUnlock()
	if l == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), listenTimeout)
	defer cancel()
	if err := l.Subscribe(ctx, channel); err != nil {
		slog.Error("Failed to LISTEN on channel", "channel", channel, "error", err)
		return fmt.Errorf("LISTEN on channel %s: %w", channel, err)
	}
	return nil
}

// failRun removes every subscriber of a run after a LISTEN failure.
//
// Between registering the run and LISTEN completing, other subscribers
// may have attached to the same run. Because they saw the run already
// registered they skipped LISTEN and proceeded. Those subscribers have
// no notification feed, so they are dropped here; dropped clients
// reconnect and retry the LISTEN. The triggering subscriber is closed
// without the drop signal — its caller receives the error directly.
func (h *Hub) failRun(runID string, triggering *Subscriber) {
	h.mu.Lock()
	subs := h.runs[runID]
	delete(h.runs, runID)
	h.mu.Unlock()

	for _, sub := range subs {
		if sub.ID == triggering.ID {
			sub.close(false)
			continue
		}
		slog.Warn("Removing orphaned subscriber after LISTEN failure",
			"run_id", runID, "subscriber_id", sub.ID)
		sub.close(true)
	}
}

// remove detaches a subscriber and stops LISTEN if it was the run's
// last. dropped selects whether the subscriber's drop signal fires.
func (h *Hub) remove(sub *Subscriber, dropped bool) {
	h.mu.Lock()
	var last bool
	if subs, ok := h.runs[sub.RunID]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.runs, sub.RunID)
			last = true
		}
	}
	h.mu.Unlock()

	sub.close(dropped)

	if !last {
		return
	}

	h.listenerMu.RLock()
	l := h.listener
	h.listenerMu.RUnlock()
	if l == nil {
		return
	}

	// Last subscriber left — stop LISTEN. The goroutine re-checks
	// h.runs before issuing UNLISTEN to prevent a race where a rapid
	// unsubscribe/resubscribe cycle would drop the LISTEN:
	//   subscribe → LISTEN active
	//   unsubscribe → goroutine: UNLISTEN (deferred)
	//   resubscribe → run re-added to h.runs
	//   goroutine → sees resubscribed → skips UNLISTEN
	go func() {
		h.mu.RLock()
		_, resubscribed := h.runs[sub.RunID]
		h.mu.RUnlock()
		if resubscribed {
			return
		}
		if err := l.Unsubscribe(context.Background(), RunChannel(sub.RunID)); err != nil {
			slog.Error("Failed to UNLISTEN channel",
				"channel", RunChannel(sub.RunID), "error", err)
		}
	}()
}

// resolveTruncated re-reads one activity whose NOTIFY envelope exceeded
// the payload cap.
func (h *Hub) resolveTruncated(runID string, seq int64) (Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeReadTimeout)
	defer cancel()

	activities, err := h.store.ListActivitiesBetween(ctx, runID, seq-1, seq)
	if err != nil {
		return Frame{}, err
	}
	if len(activities) == 0 {
		return Frame{}, fmt.Errorf("activity %d not found for run %s", seq, runID)
	}
	return FrameFromActivity(activities[0]), nil
}
