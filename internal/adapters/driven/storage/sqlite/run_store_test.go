package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// ==================== RunStore Tests ====================

func testRun(id string, started time.Time) *domain.RunSummary {
	return &domain.RunSummary{
		RunID:         id,
		Trigger:       domain.TriggerScheduled,
		StartedAt:     started,
		EndedAt:       started.Add(3 * time.Second),
		ChunksWritten: 12,
		ChunksPruned:  2,
		Success:       true,
		Sources: []domain.SourceResult{{
			SourceName:        "docs",
			DocumentsFetched:  4,
			DocumentsFailed:   1,
			FailedIdentifiers: []string{"https://docs.example.com/broken"},
			ChunksWritten:     12,
			Duration:          2 * time.Second,
		}},
	}
}

func TestRunStore_RecordAndList(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	runs := store.RunStore()

	now := time.Now()
	require.NoError(t, runs.RecordRun(ctx, testRun("older", now.Add(-time.Hour))))

	failed := testRun("newer", now)
	failed.Success = false
	failed.Degraded = true
	failed.Error = "store upsert: disk full"
	failed.Trigger = domain.TriggerManual
	require.NoError(t, runs.RecordRun(ctx, failed))

	list, err := runs.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	got := list[0]
	assert.Equal(t, "newer", got.RunID)
	assert.Equal(t, domain.TriggerManual, got.Trigger)
	assert.False(t, got.Success)
	assert.True(t, got.Degraded)
	assert.Equal(t, "store upsert: disk full", got.Error)
	assert.True(t, got.StartedAt.Equal(now))
	assert.Equal(t, 3*time.Second, got.Duration())
	assert.Equal(t, failed.Sources, got.Sources)

	assert.Equal(t, "older", list[1].RunID)
	assert.Empty(t, list[1].Error)
}

func TestRunStore_ListLimit(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	runs := store.RunStore()

	base := time.Now()
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, runs.RecordRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	list, err := runs.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r3", list[0].RunID)
	assert.Equal(t, "r2", list[1].RunID)

	all, err := runs.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunStore_RecordReplaces(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	runs := store.RunStore()

	run := testRun("r1", time.Now())
	require.NoError(t, runs.RecordRun(ctx, run))
	run.ChunksWritten = 99
	require.NoError(t, runs.RecordRun(ctx, run))

	list, err := runs.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 99, list[0].ChunksWritten)
}

func TestRunStore_PruneRuns(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	runs := store.RunStore()

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, runs.RecordRun(ctx, testRun(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))))
	}

	require.NoError(t, runs.PruneRuns(ctx, 2))

	list, err := runs.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e", list[0].RunID)
	assert.Equal(t, "d", list[1].RunID)
}

func TestRunStore_RejectsInvalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	runs := store.RunStore()
	assert.ErrorIs(t, runs.RecordRun(context.Background(), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, runs.RecordRun(context.Background(), &domain.RunSummary{}), domain.ErrInvalidInput)
}
