// Package queue provides run queue management and processing infrastructure.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/agentic-research/scribe/pkg/models"
)

// ErrAtCapacity indicates the global concurrent run limit has been reached.
// Queue emptiness is signalled by services.ErrNoRunsQueued from the claim.
var ErrAtCapacity = errors.New("at capacity")

// RunExecutor drives one claimed run end to end.
//
// The executor owns the ENTIRE run lifecycle after the claim:
//   - appends run.init and every per-step activity
//   - plans, executes the plan, stores the compiled result
//   - writes the terminal status and the terminal activity
//
// The worker only handles: capacity, claiming, cancel registration,
// heartbeat, and health accounting.
type RunExecutor interface {
	Execute(ctx context.Context, run *models.Run) *ExecutionResult
}

// ExecutionResult is lightweight — just the terminal state for worker
// logging and stats. Everything durable was already written by the
// executor during processing.
type ExecutionResult struct {
	Status models.RunStatus // completed, failed, cancelled
	Err    error            // cause (if failed/cancelled)
}

// ActivityRecorder appends activities to a run's log. *events.Publisher
// satisfies it.
type ActivityRecorder interface {
	Append(ctx context.Context, runID, kind string, payload any) (*models.Activity, error)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	RunningRuns      int            `json:"running_runs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentRunID  string    `json:"current_run_id,omitempty"`
	RunsProcessed int       `json:"runs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
