package driving

import (
	"context"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// IngestionService runs the ingestion pipeline.
type IngestionService interface {
	// Run ingests all enabled sources, or only the named ones.
	Run(ctx context.Context, trigger domain.Trigger, sourceNames ...string) (*domain.RunSummary, error)

	// Sources returns the configured sources.
	Sources() []domain.Source
}

// RefreshService exposes the background scheduler.
type RefreshService interface {
	// Trigger requests an immediate run. It returns domain.ErrRefreshBusy
	// when the job limit is reached; the trigger is dropped, not queued.
	Trigger(ctx context.Context, trigger domain.Trigger) error

	// State returns a snapshot of the scheduler.
	State() domain.RefreshState

	// History returns recent run summaries, most recent first.
	History(ctx context.Context, limit int) ([]domain.RunSummary, error)
}
