package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agentic-research/scribe/pkg/models"
)

// maxNotifyPayload is the largest envelope sent through pg_notify.
// PostgreSQL rejects NOTIFY payloads at 8000 bytes; staying under leaves
// headroom for quoting and protocol overhead.
const maxNotifyPayload = 7900

// appendTimeout bounds one Append transaction.
const appendTimeout = 5 * time.Second

// seqRetries is how many times Append re-runs its transaction after a
// duplicate (run_id, seq) key. A run has a single writer, so collisions
// only occur if ownership is violated; the retry re-reads MAX(seq).
const seqRetries = 3

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Publisher is the sole writer of the activity log. Each Append INSERTs
// the next row and broadcasts its Frame envelope via pg_notify in a
// single transaction (pg_notify is transactional — held until COMMIT),
// so live subscribers and the store can never disagree.
type Publisher struct {
	db *sql.DB

	// Per-run append serialization. Seq is allocated with MAX(seq)+1
	// inside the transaction; concurrent appends for one run would
	// collide on the primary key without this. Entries are dropped
	// when a terminal activity closes the run's log.
	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

// NewPublisher creates a Publisher on the given database handle.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{
		db:       db,
		runLocks: make(map[string]*sync.Mutex),
	}
}

// Append persists one activity with the next seq for the run and
// broadcasts it on the run's channel. The payload must marshal to JSON
// (see the payload structs in pkg/models). Returns the stored activity
// including its assigned seq.
func (p *Publisher) Append(ctx context.Context, runID, kind string, payload any) (*models.Activity, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	lock := p.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	var activity *models.Activity
	for attempt := 0; ; attempt++ {
		activity, err = p.persistAndNotify(ctx, runID, kind, data)
		if err == nil {
			break
		}
		var pgErr *pgconn.PgError
		if attempt < seqRetries && errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		return nil, err
	}

	if models.IsTerminalActivity(kind) {
		p.dropRunLock(runID)
	}
	return activity, nil
}

// persistAndNotify runs one append transaction: allocate the next seq,
// INSERT the row, pg_notify the envelope, COMMIT.
func (p *Publisher) persistAndNotify(ctx context.Context, runID, kind string, payload []byte) (*models.Activity, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin activity transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	activity := &models.Activity{
		RunID:   runID,
		Kind:    kind,
		Payload: payload,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO activities (run_id, seq, kind, payload, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
		FROM activities WHERE run_id = $1
		RETURNING seq, created_at`,
		runID, kind, payload, time.Now(),
	).Scan(&activity.Seq, &activity.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist activity: %w", err)
	}

	notifyPayload, err := notifyEnvelope(activity)
	if err != nil {
		return nil, err
	}

	// pg_notify within the same transaction — held until COMMIT.
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", RunChannel(runID), notifyPayload); err != nil {
		return nil, fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activity transaction: %w", err)
	}
	return activity, nil
}

func (p *Publisher) runLock(runID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.runLocks[runID]
	if !ok {
		lock = &sync.Mutex{}
		p.runLocks[runID] = lock
	}
	return lock
}

func (p *Publisher) dropRunLock(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.runLocks, runID)
}

// notifyEnvelope marshals the frame for NOTIFY delivery, replacing
// oversized payloads with a truncated marker. The Hub re-reads marked
// frames from the store before fan-out.
func notifyEnvelope(a *models.Activity) (string, error) {
	frame := FrameFromActivity(a)
	raw, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notify envelope: %w", err)
	}
	if len(raw) <= maxNotifyPayload {
		return string(raw), nil
	}

	frame.Data = nil
	frame.Truncated = true
	raw, err = json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated envelope: %w", err)
	}
	return string(raw), nil
}
