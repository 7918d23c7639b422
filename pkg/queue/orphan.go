package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/pkg/services"
)

// orphanedRunMessage is the errorMessage and run.failed message written
// for runs whose pod stopped heartbeating.
const orphanedRunMessage = "run orphaned by process restart"

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned runs.
// All pods run this independently — operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds running runs with stale heartbeats and
// marks them as failed (terminal state).
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	cutoff := time.Now().Add(-p.config.OrphanThreshold)

	orphans, err := p.runs.ListOrphanedRuns(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to query orphaned runs: %w", err)
	}

	if len(orphans) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("Detected orphaned runs", "count", len(orphans))

	recovered := 0
	for _, run := range orphans {
		if err := p.recoverOrphanedRun(ctx, run); err != nil {
			slog.Error("Failed to recover orphaned run",
				"run_id", run.ID,
				"error", err)
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	return nil
}

// recoverOrphanedRun marks a single orphaned run as failed and appends its
// run.failed activity.
func (p *WorkerPool) recoverOrphanedRun(ctx context.Context, run *models.Run) error {
	log := slog.With("run_id", run.ID, "old_pod_id", run.PodID)

	lastHeartbeat := "unknown"
	if run.LastHeartbeatAt != nil {
		lastHeartbeat = run.LastHeartbeatAt.Format(time.RFC3339)
	}

	_, err := p.runs.UpdateStatus(ctx, run.ID, models.StatusFailed, "internal", orphanedRunMessage)
	if err != nil {
		// Another pod's sweep, or the owning worker, got there first.
		if errors.Is(err, services.ErrInvalidTransition) {
			log.Info("Run already terminal, skipping orphan recovery")
			return nil
		}
		return fmt.Errorf("failed to mark run as failed: %w", err)
	}

	if _, err := p.recorder.Append(ctx, run.ID, models.ActivityRunFailed, models.RunFailedPayload{
		ErrorKind: "internal",
		Message:   orphanedRunMessage,
	}); err != nil {
		log.Error("Failed to append run.failed activity", "error", err)
	}

	log.Warn("Orphaned run marked as failed", "last_heartbeat", lastHeartbeat)
	return nil
}

// CleanupStartupOrphans performs a one-time cleanup of runs owned by this
// pod that were running when the pod previously crashed.
// Called once during startup, before the worker pool begins processing.
func CleanupStartupOrphans(ctx context.Context, runs *services.RunService, recorder ActivityRecorder, podID string) error {
	orphans, err := runs.ListRunningForPod(ctx, podID)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}

	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("Found startup orphans from previous run",
		"pod_id", podID,
		"count", len(orphans))

	for _, run := range orphans {
		_, err := runs.UpdateStatus(ctx, run.ID, models.StatusFailed, "internal", orphanedRunMessage)
		if err != nil {
			if errors.Is(err, services.ErrInvalidTransition) {
				slog.Info("Run already terminal, skipping startup recovery", "run_id", run.ID)
				continue
			}
			slog.Error("Failed to mark startup orphan",
				"run_id", run.ID,
				"error", err)
			continue
		}

		if _, err := recorder.Append(ctx, run.ID, models.ActivityRunFailed, models.RunFailedPayload{
			ErrorKind: "internal",
			Message:   orphanedRunMessage,
		}); err != nil {
			slog.Error("Failed to append run.failed activity", "run_id", run.ID, "error", err)
		}

		slog.Info("Startup orphan recovered", "run_id", run.ID)
	}

	return nil
}
