package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// RecordRun stores a run summary, replacing any run with the same ID.
func (s *runStore) RecordRun(ctx context.Context, summary *domain.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return domain.ErrInvalidInput
	}

	sources, err := json.Marshal(summary.Sources)
	if err != nil {
		return fmt.Errorf("encoding run sources: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (id, trigger, started_at, ended_at, success, degraded,
			chunks_written, chunks_pruned, error, sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trigger = excluded.trigger,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			success = excluded.success,
			degraded = excluded.degraded,
			chunks_written = excluded.chunks_written,
			chunks_pruned = excluded.chunks_pruned,
			error = excluded.error,
			sources = excluded.sources
	`,
		summary.RunID,
		string(summary.Trigger),
		summary.StartedAt.UnixNano(),
		summary.EndedAt.UnixNano(),
		boolToInt(summary.Success),
		boolToInt(summary.Degraded),
		summary.ChunksWritten,
		summary.ChunksPruned,
		nullString(summary.Error),
		string(sources),
	)
	if err != nil {
		return storeErr("record run", err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first.
// A non-positive limit returns every run.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, trigger, started_at, ended_at, success, degraded,
			chunks_written, chunks_pruned, error, sources
		FROM refresh_runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storeErr("list runs", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list runs", err)
	}
	return runs, nil
}

// PruneRuns keeps only the keep most recent runs.
func (s *runStore) PruneRuns(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM refresh_runs WHERE id NOT IN (
			SELECT id FROM refresh_runs ORDER BY started_at DESC, id LIMIT ?
		)
	`, keep)
	if err != nil {
		return storeErr("prune runs", err)
	}
	return nil
}

func scanRun(row scanner) (*domain.RunSummary, error) {
	var run domain.RunSummary
	var trigger, sources string
	var startedAt, endedAt int64
	var success, degraded int
	var runErr sql.NullString

	if err := row.Scan(&run.RunID, &trigger, &startedAt, &endedAt, &success, &degraded,
		&run.ChunksWritten, &run.ChunksPruned, &runErr, &sources); err != nil {
		return nil, storeErr("scan run", err)
	}

	run.Trigger = domain.Trigger(trigger)
	run.StartedAt = time.Unix(0, startedAt)
	run.EndedAt = time.Unix(0, endedAt)
	run.Success = success == 1
	run.Degraded = degraded == 1
	run.Error = runErr.String

	if err := json.Unmarshal([]byte(sources), &run.Sources); err != nil {
		return nil, fmt.Errorf("decoding sources of run %s: %w", run.RunID, err)
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
