package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/scribe/pkg/models"
	"github.com/agentic-research/scribe/test/util"
)

func TestNotifyEnvelope(t *testing.T) {
	t.Run("passes through normal frame", func(t *testing.T) {
		a := &models.Activity{
			RunID:     "run-1",
			Seq:       3,
			Kind:      models.ActivityThinking,
			Payload:   json.RawMessage(`{"thought":"planning","text":"next step"}`),
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}

		result, err := notifyEnvelope(a)
		require.NoError(t, err)

		var frame Frame
		require.NoError(t, json.Unmarshal([]byte(result), &frame))
		assert.Equal(t, int64(3), frame.Seq)
		assert.Equal(t, models.ActivityThinking, frame.Kind)
		assert.JSONEq(t, string(a.Payload), string(frame.Data))
		assert.False(t, frame.Truncated)
	})

	t.Run("replaces oversized frame with marker", func(t *testing.T) {
		big := strings.Repeat("x", 9000)
		payload, err := json.Marshal(map[string]string{"summary": big})
		require.NoError(t, err)

		a := &models.Activity{
			RunID:     "run-1",
			Seq:       7,
			Kind:      models.ActivityToolResult,
			Payload:   payload,
			CreatedAt: time.Now(),
		}

		result, err := notifyEnvelope(a)
		require.NoError(t, err)
		assert.Less(t, len(result), maxNotifyPayload)
		assert.NotContains(t, result, "xxxx")

		var frame Frame
		require.NoError(t, json.Unmarshal([]byte(result), &frame))
		assert.True(t, frame.Truncated)
		assert.Equal(t, int64(7), frame.Seq)
		assert.Equal(t, models.ActivityToolResult, frame.Kind)
		assert.Empty(t, frame.Data)
	})

	t.Run("boundary: frame just under limit is not truncated", func(t *testing.T) {
		// Measure the envelope overhead with an empty payload, then size
		// the payload to land just under the cap. The 20-byte margin
		// keeps the test from flipping if envelope fields grow.
		base, err := notifyEnvelope(&models.Activity{
			Kind:      models.ActivityThinking,
			Payload:   json.RawMessage(`{"text":""}`),
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)

		fill := strings.Repeat("b", maxNotifyPayload-len(base)-20)
		result, err := notifyEnvelope(&models.Activity{
			Kind:      models.ActivityThinking,
			Payload:   json.RawMessage(fmt.Sprintf(`{"text":%q}`, fill)),
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)
		assert.NotContains(t, result, `"truncated":true`)
		assert.Contains(t, result, "bbbb")
	})
}

// createRunRow inserts the run row activities hang off (FK).
func createRunRow(t *testing.T, dbExec func(query string, args ...any) error) string {
	t.Helper()
	runID := uuid.New().String()
	require.NoError(t, dbExec(
		`INSERT INTO runs (id, user_id, mode, goal) VALUES ($1, $2, $3, $4)`,
		runID, "events-test-user", "research", "integration test goal"))
	return runID
}

func TestPublisher_Append(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := util.SetupTestDatabase(t)
	exec := func(query string, args ...any) error {
		_, err := db.Exec(query, args...)
		return err
	}
	p := NewPublisher(db)
	ctx := context.Background()

	t.Run("assigns contiguous seq from 1", func(t *testing.T) {
		runID := createRunRow(t, exec)

		first, err := p.Append(ctx, runID, models.ActivityRunInit,
			models.RunInitPayload{Mode: models.ModeResearch, Goal: "integration test goal"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.Seq)
		assert.Equal(t, models.ActivityRunInit, first.Kind)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := p.Append(ctx, runID, models.ActivityThinking,
			models.ThinkingPayload{ThoughtType: models.ThoughtPlanning, Thought: "scoping"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.Seq)
	})

	t.Run("seq is per run", func(t *testing.T) {
		runA := createRunRow(t, exec)
		runB := createRunRow(t, exec)

		a, err := p.Append(ctx, runA, models.ActivityThinking, models.ThinkingPayload{Thought: "a"})
		require.NoError(t, err)
		b, err := p.Append(ctx, runB, models.ActivityThinking, models.ThinkingPayload{Thought: "b"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), a.Seq)
		assert.Equal(t, int64(1), b.Seq)
	})

	t.Run("stores the full payload even when NOTIFY truncates", func(t *testing.T) {
		runID := createRunRow(t, exec)
		big := strings.Repeat("z", 9000)

		a, err := p.Append(ctx, runID, models.ActivityToolResult,
			models.ToolResultPayload{Tool: "search", Summary: big})
		require.NoError(t, err)

		var stored string
		require.NoError(t, db.QueryRow(
			`SELECT payload->>'summary' FROM activities WHERE run_id = $1 AND seq = $2`,
			runID, a.Seq).Scan(&stored))
		assert.Equal(t, big, stored)
	})

	t.Run("terminal append releases the run lock entry", func(t *testing.T) {
		runID := createRunRow(t, exec)

		_, err := p.Append(ctx, runID, models.ActivityThinking, models.ThinkingPayload{Thought: "t"})
		require.NoError(t, err)
		p.mu.Lock()
		_, held := p.runLocks[runID]
		p.mu.Unlock()
		assert.True(t, held)

		_, err = p.Append(ctx, runID, models.ActivityRunCompleted,
			models.RunCompletedPayload{FinalContent: "done"})
		require.NoError(t, err)
		p.mu.Lock()
		_, held = p.runLocks[runID]
		p.mu.Unlock()
		assert.False(t, held)
	})

	t.Run("rejects unmarshalable payload", func(t *testing.T) {
		runID := createRunRow(t, exec)
		_, err := p.Append(ctx, runID, models.ActivityThinking, make(chan int))
		assert.Error(t, err)
	})
}

func TestPublisher_ConcurrentAppends(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := util.SetupTestDatabase(t)
	exec := func(query string, args ...any) error {
		_, err := db.Exec(query, args...)
		return err
	}
	runID := createRunRow(t, exec)
	ctx := context.Background()

	// Two Publisher instances simulate appends from separate components;
	// the duplicate-key retry keeps seq allocation consistent across them.
	publishers := []*Publisher{NewPublisher(db), NewPublisher(db)}

	const perPublisher = 5
	var wg sync.WaitGroup
	errs := make(chan error, len(publishers)*perPublisher)
	for _, p := range publishers {
		wg.Add(1)
		go func(p *Publisher) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_, err := p.Append(ctx, runID, models.ActivityRunProgress,
					models.RunProgressPayload{Completed: i, Total: perPublisher})
				errs <- err
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Every seq from 1..N exactly once.
	rows, err := db.Query(`SELECT seq FROM activities WHERE run_id = $1 ORDER BY seq`, runID)
	require.NoError(t, err)
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var seq int64
		require.NoError(t, rows.Scan(&seq))
		seqs = append(seqs, seq)
	}
	require.NoError(t, rows.Err())
	require.Len(t, seqs, len(publishers)*perPublisher)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestPublisher_NotifyFiresWithCommit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := util.SetupTestDatabase(t)
	exec := func(query string, args ...any) error {
		_, err := db.Exec(query, args...)
		return err
	}
	runID := createRunRow(t, exec)
	ctx := context.Background()

	// Raw LISTEN connection, independent of the publisher's pool.
	conn, err := pgx.Connect(ctx, util.GetBaseConnectionString(t))
	require.NoError(t, err)
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{RunChannel(runID)}.Sanitize())
	require.NoError(t, err)

	p := NewPublisher(db)
	appended, err := p.Append(ctx, runID, models.ActivityThinking,
		models.ThinkingPayload{ThoughtType: models.ThoughtPlanning, Thought: "notify me"})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	notification, err := conn.WaitForNotification(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, RunChannel(runID), notification.Channel)

	var frame Frame
	require.NoError(t, json.Unmarshal([]byte(notification.Payload), &frame))
	assert.Equal(t, appended.Seq, frame.Seq)
	assert.Equal(t, models.ActivityThinking, frame.Kind)
	assert.Contains(t, string(frame.Data), "notify me")
}
