package services

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/agentic-research/scribe/pkg/models"
)

// ActivityService reads the append-only activity log. Writes go through
// events.Publisher so persistence and LISTEN/NOTIFY broadcast share one
// transaction.
type ActivityService struct {
	db *stdsql.DB
}

// NewActivityService creates a new ActivityService
func NewActivityService(db *stdsql.DB) *ActivityService {
	return &ActivityService{db: db}
}

// ListActivitiesSince returns persisted activities with seq > sinceSeq in
// seq order. limit <= 0 means no limit.
func (s *ActivityService) ListActivitiesSince(ctx context.Context, runID string, sinceSeq int64, limit int) ([]*models.Activity, error) {
	query := `
		SELECT run_id, seq, kind, payload, created_at
		FROM activities
		WHERE run_id = $1 AND seq > $2
		ORDER BY seq ASC`
	args := []any{runID, sinceSeq}

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

// ListActivitiesBetween returns activities with lowSeq < seq <= highSeq in
// seq order. highSeq <= 0 means unbounded above.
func (s *ActivityService) ListActivitiesBetween(ctx context.Context, runID string, lowSeq, highSeq int64) ([]*models.Activity, error) {
	query := `
		SELECT run_id, seq, kind, payload, created_at
		FROM activities
		WHERE run_id = $1 AND seq > $2`
	args := []any{runID, lowSeq}

	if highSeq > 0 {
		args = append(args, highSeq)
		query += fmt.Sprintf(" AND seq <= $%d", len(args))
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

// LatestSeq returns the highest assigned seq for a run, or 0 when the run
// has no activities yet.
func (s *ActivityService) LatestSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM activities WHERE run_id = $1`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest seq: %w", err)
	}
	return seq, nil
}

func collectActivities(rows *stdsql.Rows) ([]*models.Activity, error) {
	var activities []*models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.RunID, &a.Seq, &a.Kind, &a.Payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return activities, nil
}
