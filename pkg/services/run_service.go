package services

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/sanitize"
)

// writeTimeout bounds critical writes. Lifecycle transitions use a fresh
// background context with this timeout so a cancelled HTTP request or a
// cancelled run context cannot lose the write.
const writeTimeout = 5 * time.Second

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// runColumns is the canonical column list scanned by scanRun.
const runColumns = `id, user_id, org_id, mode, goal, params, files, status,
	plan, final_content, chart_artifacts, error_kind, error_message,
	metadata, pod_id, created_at, updated_at, started_at, completed_at,
	last_heartbeat_at`

// RunService manages run rows: creation, guarded lifecycle transitions,
// claiming, results, and listing. It is the only component that writes the
// runs table.
type RunService struct {
	db *stdsql.DB
}

// NewRunService creates a new RunService
func NewRunService(db *stdsql.DB) *RunService {
	return &RunService{db: db}
}

// CreateRun inserts a new queued run. A zero ID is assigned a UUID; status,
// created_at, and updated_at are always set here regardless of input.
func (s *RunService) CreateRun(httpCtx context.Context, run *models.Run) (*models.Run, error) {
	if run.UserID == "" {
		return nil, NewValidationError("user_id", "required")
	}
	if run.Goal == "" {
		return nil, NewValidationError("goal", "required")
	}
	if _, err := models.ParseMode(string(run.Mode)); err != nil {
		return nil, NewValidationError("mode", err.Error())
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	files, err := json.Marshal(run.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal files: %w", err)
	}
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	now := time.Now()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO runs (id, user_id, org_id, mode, goal, params, files, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING `+runColumns,
		run.ID, run.UserID, run.OrgID, run.Mode, run.Goal, params, files, models.StatusQueued, metadata, now)

	created, err := scanRun(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return created, nil
}

// GetRun fetches a run by ID.
func (s *RunService) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRunForUser fetches a run and enforces owner scoping. A run owned by
// someone else is indistinguishable from a missing one.
func (s *RunService) GetRunForUser(ctx context.Context, runID, userID string) (*models.Run, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return run, nil
}

// ListRuns returns the caller's runs, newest first. Limit defaults to 50
// and is capped at 200.
func (s *RunService) ListRuns(ctx context.Context, filters models.RunFilters) ([]*models.Run, error) {
	if filters.UserID == "" {
		return nil, NewValidationError("user_id", "required")
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = $1`
	args := []any{filters.UserID}

	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Mode != "" {
		args = append(args, filters.Mode)
		query += fmt.Sprintf(" AND mode = $%d", len(args))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// UpdateStatus performs a guarded lifecycle transition. errorKind and
// errorMessage are persisted only on a transition to failed; the message is
// scrubbed of credential material first. Returns ErrInvalidTransition when
// the move violates the forward-only state machine.
func (s *RunService) UpdateStatus(_ context.Context, runID string, to models.RunStatus, errorKind, errorMessage string) (*models.Run, error) {
	// Use background context with timeout: terminal transitions must land
	// even when the run context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var from models.RunStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, runID).Scan(&from)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to lock run: %w", err)
	}

	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	now := time.Now()
	query := `UPDATE runs SET status = $2, updated_at = $3`
	args := []any{runID, to, now}

	switch {
	case to == models.StatusRunning:
		query += `, started_at = $3, last_heartbeat_at = $3`
	case to.IsTerminal():
		query += `, completed_at = $3`
	}
	if to == models.StatusFailed {
		args = append(args, errorKind, sanitize.Scrub(errorMessage))
		query += fmt.Sprintf(`, error_kind = $%d, error_message = $%d`, len(args)-1, len(args))
	}
	query += ` WHERE id = $1 RETURNING ` + runColumns

	run, err := scanRun(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return run, nil
}

// CancelQueuedRun cancels a run only while it is still queued. The guard
// lives inside the UPDATE itself, so a run that a worker claims
// concurrently is left alone — the pool cancel path owns it from there.
// Returns ErrInvalidTransition when the run exists but already left the
// queue.
func (s *RunService) CancelQueuedRun(_ context.Context, runID string) (*models.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	run, err := scanRun(s.db.QueryRowContext(ctx, `
		UPDATE runs SET status = $2, updated_at = $3, completed_at = $3
		WHERE id = $1 AND status = $4
		RETURNING `+runColumns,
		runID, models.StatusCancelled, time.Now(), models.StatusQueued))
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, stdsql.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel queued run: %w", err)
	}

	// No row matched: missing run or one that already left the queue.
	var status models.RunStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = $1`, runID).Scan(&status)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check run status: %w", err)
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, status, models.StatusCancelled)
}

// SetPlan persists the validated plan after planning succeeds.
func (s *RunService) SetPlan(ctx context.Context, runID string, plan *models.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET plan = $2, updated_at = $3 WHERE id = $1`,
		runID, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return nil
}

// SetFinalContent stores the compiled artifact, chart artifacts, and
// execution counts. Allowed only while the run is still running, en route
// to run.completed.
func (s *RunService) SetFinalContent(_ context.Context, runID, content string, artifacts map[models.ChartKind]models.ChartArtifact, counts models.ExecutionCounts) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		status   models.RunStatus
		metaData []byte
	)
	err = tx.QueryRowContext(ctx, `SELECT status, metadata FROM runs WHERE id = $1 FOR UPDATE`, runID).
		Scan(&status, &metaData)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return fmt.Errorf("failed to lock run: %w", err)
	}
	if status != models.StatusRunning {
		return fmt.Errorf("%w: cannot store result in status %s", ErrInvalidTransition, status)
	}

	var metadata models.RunMetadata
	if len(metaData) > 0 {
		if err := json.Unmarshal(metaData, &metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	metadata.ExecutionCounts = &counts

	newMeta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if artifacts == nil {
		artifacts = map[models.ChartKind]models.ChartArtifact{}
	}
	artifactsData, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("failed to marshal chart artifacts: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET final_content = $2, chart_artifacts = $3, metadata = $4, updated_at = $5
		WHERE id = $1`,
		runID, content, artifactsData, newMeta, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store final content: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit final content: %w", err)
	}
	return nil
}

// ClaimNextRun atomically claims the oldest queued run using FOR UPDATE
// SKIP LOCKED, so concurrent workers never claim the same row. The claim
// sets running, pod_id, started_at, and the first heartbeat in one step.
// Returns ErrNoRunsQueued when the queue is empty.
func (s *RunService) ClaimNextRun(ctx context.Context, podID string) (*models.Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Order by created_at for FIFO processing.
	var runID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM runs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		models.StatusQueued).Scan(&runID)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNoRunsQueued
		}
		return nil, fmt.Errorf("failed to query queued run: %w", err)
	}

	now := time.Now()
	run, err := scanRun(tx.QueryRowContext(ctx, `
		UPDATE runs
		SET status = $2, pod_id = $3, started_at = $4, last_heartbeat_at = $4, updated_at = $4
		WHERE id = $1
		RETURNING `+runColumns,
		runID, models.StatusRunning, podID, now))
	if err != nil {
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return run, nil
}

// CountRunning returns the number of running runs across all pods.
// Used for the global concurrency soft cap.
func (s *RunService) CountRunning(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE status = $1`, models.StatusRunning).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running runs: %w", err)
	}
	return count, nil
}

// CountQueued returns the queue depth reported by pool health.
func (s *RunService) CountQueued(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE status = $1`, models.StatusQueued).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued runs: %w", err)
	}
	return count, nil
}

// Heartbeat bumps last_heartbeat_at for a running run owned by podID.
// Returns ErrNotFound when the run is no longer running on this pod.
func (s *RunService) Heartbeat(ctx context.Context, runID, podID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET last_heartbeat_at = $3
		WHERE id = $1 AND pod_id = $2 AND status = $4`,
		runID, podID, time.Now(), models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: running run %s on pod %s", ErrNotFound, runID, podID)
	}
	return nil
}

// ListOrphanedRuns returns running runs whose heartbeat is older than the
// cutoff (or missing entirely). Candidates for orphan recovery.
func (s *RunService) ListOrphanedRuns(ctx context.Context, cutoff time.Time) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = $1 AND (last_heartbeat_at IS NULL OR last_heartbeat_at < $2)
		ORDER BY created_at ASC`,
		models.StatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListRunningForPod returns runs this pod claims to be processing. Used at
// startup to recover runs stranded by an unclean restart of the same pod.
func (s *RunService) ListRunningForPod(ctx context.Context, podID string) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = $1 AND pod_id = $2
		ORDER BY created_at ASC`,
		models.StatusRunning, podID)
	if err != nil {
		return nil, fmt.Errorf("failed to list running runs for pod: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanRun.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run          models.Run
		params       []byte
		files        []byte
		plan         []byte
		finalContent stdsql.NullString
		artifacts    []byte
		metadata     []byte
		startedAt    stdsql.NullTime
		completedAt  stdsql.NullTime
		heartbeatAt  stdsql.NullTime
	)

	err := row.Scan(
		&run.ID, &run.UserID, &run.OrgID, &run.Mode, &run.Goal,
		&params, &files, &run.Status,
		&plan, &finalContent, &artifacts,
		&run.ErrorKind, &run.ErrorMessage,
		&metadata, &run.PodID,
		&run.CreatedAt, &run.UpdatedAt,
		&startedAt, &completedAt, &heartbeatAt,
	)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &run.Files); err != nil {
			return nil, fmt.Errorf("failed to unmarshal files: %w", err)
		}
	}
	if len(plan) > 0 {
		run.Plan = &models.Plan{}
		if err := json.Unmarshal(plan, run.Plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &run.ChartArtifacts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chart artifacts: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if finalContent.Valid {
		run.FinalContent = &finalContent.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if heartbeatAt.Valid {
		t := heartbeatAt.Time
		run.LastHeartbeatAt = &t
	}

	return &run, nil
}

func collectRuns(rows *stdsql.Rows) ([]*models.Run, error) {
	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
