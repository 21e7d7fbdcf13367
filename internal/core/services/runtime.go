package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// RuntimeConfig is the validated configuration the runtime is built from.
type RuntimeConfig struct {
	Sources   []domain.Source
	Refresh   domain.RefreshConfig
	Embedding domain.EmbeddingConfig
}

// RuntimeDeps are the driven adapters. Runs and Metrics are optional.
type RuntimeDeps struct {
	Store     driven.VectorStore
	Runs      driven.RunStore
	Embedder  driven.EmbeddingService
	Fetchers  []driven.Fetcher
	Extractor driven.Extractor
	Chunker   driven.Chunker
	Metrics   driven.MetricsRecorder
}

// Runtime owns every long-lived component of the process. There is no
// package-level state; commands build one Runtime and close it on exit.
type Runtime struct {
	Pipeline  *IngestionPipeline
	Scheduler *RefreshScheduler
	Query     *QueryService

	store    driven.VectorStore
	embedder driven.EmbeddingService

	closeOnce sync.Once
	closeErr  error
}

// NewRuntime wires the services.
func NewRuntime(cfg RuntimeConfig, deps RuntimeDeps) (*Runtime, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: runtime needs a vector store", domain.ErrInvalidInput)
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: runtime needs an embedder", domain.ErrInvalidInput)
	case deps.Extractor == nil || deps.Chunker == nil:
		return nil, fmt.Errorf("%w: runtime needs an extractor and a chunker", domain.ErrInvalidInput)
	}

	pipelineOpts := []PipelineOption{WithBatchSize(cfg.Embedding.BatchSize)}
	schedulerOpts := []SchedulerOption{}
	if deps.Runs != nil {
		pipelineOpts = append(pipelineOpts, WithRunStore(deps.Runs))
		schedulerOpts = append(schedulerOpts, WithHistory(deps.Runs))
	}
	if deps.Metrics != nil {
		pipelineOpts = append(pipelineOpts, WithMetrics(deps.Metrics))
		schedulerOpts = append(schedulerOpts, WithSchedulerMetrics(deps.Metrics))
	}

	pipeline := NewIngestionPipeline(
		cfg.Sources,
		NewFetcherRegistry(deps.Fetchers...),
		deps.Extractor,
		deps.Chunker,
		deps.Embedder,
		deps.Store,
		pipelineOpts...,
	)

	return &Runtime{
		Pipeline:  pipeline,
		Scheduler: NewRefreshScheduler(cfg.Refresh, pipeline, schedulerOpts...),
		Query:     NewQueryService(deps.Store, deps.Embedder, deps.Metrics),
		store:     deps.Store,
		embedder:  deps.Embedder,
	}, nil
}

// CheckEmbedding verifies the embedder is reachable and matches the
// model and dimensions the index was built with.
func (r *Runtime) CheckEmbedding(ctx context.Context) error {
	if err := r.embedder.Ping(ctx); err != nil {
		return err
	}
	return r.store.EnsureDimensions(ctx, r.embedder.ModelName(), r.embedder.Dimensions())
}

// integrityChecker is implemented by stores that can verify their files.
type integrityChecker interface {
	IntegrityCheck(ctx context.Context) error
}

// CheckIntegrity verifies the store. Stores without on-disk state pass.
func (r *Runtime) CheckIntegrity(ctx context.Context) error {
	if c, ok := r.store.(integrityChecker); ok {
		return c.IntegrityCheck(ctx)
	}
	return nil
}

// Close stops the scheduler, waits for in-flight runs and releases the
// embedder and the store. It is safe to call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = errors.Join(
			r.Scheduler.Stop(),
			r.embedder.Close(),
			r.store.Close(),
		)
	})
	return r.closeErr
}
