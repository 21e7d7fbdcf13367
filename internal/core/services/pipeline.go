package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.IngestionService = (*IngestionPipeline)(nil)

// DefaultHistoryKeep is the number of run summaries kept in the run store.
const DefaultHistoryKeep = 100

// recordTimeout bounds bookkeeping writes after a run ends.
const recordTimeout = 10 * time.Second

// IngestionPipeline fetches, extracts, chunks, embeds and stores every
// enabled source. Sources run concurrently; documents of one source are
// processed in the order the fetcher emits them.
type IngestionPipeline struct {
	fetchers  *FetcherRegistry
	extractor driven.Extractor
	chunker   driven.Chunker
	embedder  driven.EmbeddingService
	store     driven.VectorStore
	runs      driven.RunStore        // optional
	metrics   driven.MetricsRecorder // optional

	batchSize   int
	historyKeep int
	now         func() time.Time
	log         *logger.Logger

	mu      sync.RWMutex
	sources []domain.Source
}

// PipelineOption configures the pipeline.
type PipelineOption func(*IngestionPipeline)

// WithRunStore records run summaries.
func WithRunStore(runs driven.RunStore) PipelineOption {
	return func(p *IngestionPipeline) {
		p.runs = runs
	}
}

// WithMetrics reports finished runs.
func WithMetrics(m driven.MetricsRecorder) PipelineOption {
	return func(p *IngestionPipeline) {
		p.metrics = m
	}
}

// WithBatchSize sets the number of chunks per embedding request.
func WithBatchSize(n int) PipelineOption {
	return func(p *IngestionPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithHistoryKeep sets how many run summaries are retained.
func WithHistoryKeep(n int) PipelineOption {
	return func(p *IngestionPipeline) {
		if n > 0 {
			p.historyKeep = n
		}
	}
}

// NewIngestionPipeline creates a pipeline over the given sources.
func NewIngestionPipeline(
	sources []domain.Source,
	fetchers *FetcherRegistry,
	extractor driven.Extractor,
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
	store driven.VectorStore,
	opts ...PipelineOption,
) *IngestionPipeline {
	p := &IngestionPipeline{
		fetchers:    fetchers,
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		batchSize:   domain.DefaultEmbeddingConfig().BatchSize,
		historyKeep: DefaultHistoryKeep,
		now:         time.Now,
		log:         logger.With("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.SetSources(sources)
	return p
}

// Sources returns a copy of the configured sources.
func (p *IngestionPipeline) Sources() []domain.Source {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Source(nil), p.sources...)
}

// SetSources replaces the configured sources. Runs already in progress
// keep the sources they started with.
func (p *IngestionPipeline) SetSources(sources []domain.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append([]domain.Source(nil), sources...)
}

// Run ingests every enabled source, or only the named ones. Named
// sources run even when disabled.
//
// The returned summary is never nil. The error is non-nil when the run
// could not start, a StoreError aborted it, or ctx was cancelled.
func (p *IngestionPipeline) Run(ctx context.Context, trigger domain.Trigger, sourceNames ...string) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: p.now(),
	}

	sources, err := p.selectSources(sourceNames)
	if err != nil {
		return p.finish(ctx, summary, err), err
	}

	if err := p.store.EnsureDimensions(ctx, p.embedder.ModelName(), p.embedder.Dimensions()); err != nil {
		return p.finish(ctx, summary, err), err
	}

	p.log.Info("run %s (%s): %d source(s)", summary.RunID, trigger, len(sources))

	// A StoreError from any source cancels every source.
	summary.Sources = make([]domain.SourceResult, len(sources))
	g, runCtx := errgroup.WithContext(ctx)
	for i := range sources {
		g.Go(func() error {
			var err error
			summary.Sources[i], err = p.runSource(runCtx, sources[i])
			return err
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return p.finish(ctx, summary, err), err
}

func (p *IngestionPipeline) selectSources(names []string) ([]domain.Source, error) {
	all := p.Sources()
	if len(names) == 0 {
		return domain.EnabledSources(all), nil
	}

	byName := make(map[string]domain.Source, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	selected := make([]domain.Source, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
		}
		selected = append(selected, s)
	}
	return selected, nil
}

// finish totals the summary, records it and reports it.
func (p *IngestionPipeline) finish(ctx context.Context, summary *domain.RunSummary, runErr error) *domain.RunSummary {
	summary.EndedAt = p.now()
	summary.Success = runErr == nil
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	for i := range summary.Sources {
		src := &summary.Sources[i]
		summary.ChunksWritten += src.ChunksWritten
		summary.ChunksPruned += src.ChunksPruned
		if src.Failed() {
			summary.Success = false
		}
		if src.Degraded {
			summary.Degraded = true
		}
	}

	// Bookkeeping must survive the cancellation that may have ended the run.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if p.runs != nil {
		if err := p.runs.RecordRun(bg, summary); err != nil {
			p.log.Error("record run %s: %v", summary.RunID, err)
		} else if err := p.runs.PruneRuns(bg, p.historyKeep); err != nil {
			p.log.Warn("prune run history: %v", err)
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveRun(summary)
	}

	p.logSummary(summary)
	return summary
}

func (p *IngestionPipeline) logSummary(s *domain.RunSummary) {
	for i := range s.Sources {
		src := &s.Sources[i]
		if src.Failed() {
			p.log.Error("source %s failed: %s", src.SourceName, src.Error)
			continue
		}
		p.log.Info("source %s: %d fetched, %d cached, %d failed, %d chunks written, %d pruned (%s)",
			src.SourceName, src.DocumentsFetched, src.DocumentsCached, src.DocumentsFailed,
			src.ChunksWritten, src.ChunksPruned, src.Duration.Round(time.Millisecond))
	}
	switch {
	case s.Error != "":
		p.log.Error("run %s failed after %s: %s", s.RunID, s.Duration().Round(time.Millisecond), s.Error)
	case !s.Success:
		p.log.Warn("run %s finished with failed sources in %s", s.RunID, s.Duration().Round(time.Millisecond))
	default:
		p.log.Info("run %s finished in %s: %d chunks written, %d pruned",
			s.RunID, s.Duration().Round(time.Millisecond), s.ChunksWritten, s.ChunksPruned)
	}
}

// sourceRun carries the state of one source through a run.
type sourceRun struct {
	source domain.Source
	result *domain.SourceResult

	// live holds every chunk ID that must survive the prune.
	live map[string]struct{}

	// failed holds documents that failed after fetching.
	failed []string
}

// runSource processes one source. Per-document failures are recorded in
// the result; only a StoreError is returned.
func (p *IngestionPipeline) runSource(ctx context.Context, source domain.Source) (domain.SourceResult, error) {
	start := p.now()
	result := domain.SourceResult{SourceName: source.Name}
	defer func() {
		result.Duration = p.now().Sub(start)
	}()

	fetcher, err := p.fetchers.Get(source.Kind)
	if err != nil {
		result.Error = err.Error()
		result.PruneSkipped = true
		return result, nil
	}

	unlock := p.store.LockSource(source.Name)
	defer unlock()

	run := &sourceRun{
		source: source,
		result: &result,
		live:   make(map[string]struct{}),
	}

	stats, fetchErr := fetcher.Fetch(ctx, source, func(ctx context.Context, doc *domain.FetchedDocument) error {
		return p.processDocument(ctx, run, doc)
	})
	if stats != nil {
		result.DocumentsFetched = stats.Fetched
		result.DocumentsCached = stats.Cached
		result.DocumentsFailed = stats.Failed
		result.FetchAttempts = stats.Attempts
		result.FailedIdentifiers = append(result.FailedIdentifiers, stats.FailedIdentifiers...)
	}
	result.DocumentsFailed += len(run.failed)
	result.FailedIdentifiers = append(result.FailedIdentifiers, run.failed...)

	if fetchErr != nil {
		result.PruneSkipped = true
		if cause := context.Cause(ctx); cause != nil && domain.IsStoreError(cause) {
			result.Error = cause.Error()
		} else {
			result.Error = fetchErr.Error()
		}
		if domain.IsStoreError(fetchErr) {
			return result, fetchErr
		}
		return result, nil
	}

	// Pages that may come back keep the chunks they already had; pages that
	// are gone for good fall out of the live set and are pruned.
	if stats != nil {
		for _, id := range stats.RetryableIdentifiers {
			if err := p.keepExisting(ctx, run, id); err != nil {
				result.Error = err.Error()
				result.PruneSkipped = true
				return result, storeErrorOnly(err)
			}
		}
	}

	pruned, err := p.store.Prune(ctx, source.Name, run.live)
	if err != nil {
		if ctx.Err() == nil {
			err = asStoreError("prune", err)
		}
		result.Error = err.Error()
		return result, storeErrorOnly(err)
	}
	result.ChunksPruned = pruned
	return result, nil
}

// storeErrorOnly passes a StoreError on and drops anything else.
func storeErrorOnly(err error) error {
	if domain.IsStoreError(err) {
		return err
	}
	return nil
}

// processDocument extracts, chunks, embeds and upserts one document.
// Only store failures and cancellation are returned; anything else
// skips the document.
func (p *IngestionPipeline) processDocument(ctx context.Context, run *sourceRun, doc *domain.FetchedDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	docID := doc.Identifier

	extracted, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		p.log.Warn("%s: skipping %s: %v", run.source.Name, docID, err)
		return p.skip(ctx, run, docID)
	}

	title := extracted.Title
	if title == "" {
		title = doc.Title
	}
	chunks := p.chunker.Chunk(run.source.Name, docID, title, extracted.Blocks)
	if len(chunks) == 0 {
		p.log.Debug("%s: %s has no indexable text", run.source.Name, docID)
		return nil
	}

	records, err := p.embed(ctx, docID, chunks)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn("%s: embedding %s failed: %v", run.source.Name, docID, err)
		run.result.Degraded = true
		return p.skip(ctx, run, docID)
	}

	if err := p.store.Upsert(ctx, records); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return asStoreError("upsert", err)
	}
	for i := range records {
		run.live[records[i].ID] = struct{}{}
	}
	run.result.ChunksWritten += len(records)
	return nil
}

// embed turns chunks into records, one embedding request per batch.
func (p *IngestionPipeline) embed(ctx context.Context, docID string, chunks []domain.Chunk) ([]domain.IndexRecord, error) {
	records := make([]domain.IndexRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			var embErr *domain.EmbeddingError
			if errors.As(err, &embErr) && embErr.Identifier == "" {
				embErr.Identifier = docID
			}
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, &domain.EmbeddingError{
				Identifier: docID,
				Err:        fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch)),
			}
		}

		indexedAt := p.now()
		for i := range batch {
			records = append(records, domain.IndexRecord{
				EmbeddedChunk: domain.EmbeddedChunk{Chunk: batch[i], Vector: vectors[i]},
				IndexedAt:     indexedAt,
			})
		}
	}
	return records, nil
}

// skip records a failed document and keeps its stored chunks alive.
func (p *IngestionPipeline) skip(ctx context.Context, run *sourceRun, docID string) error {
	run.failed = append(run.failed, docID)
	return p.keepExisting(ctx, run, docID)
}

func (p *IngestionPipeline) keepExisting(ctx context.Context, run *sourceRun, docID string) error {
	ids, err := p.store.DocumentChunkIDs(ctx, run.source.Name, docID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return asStoreError("document chunks", err)
	}
	for _, id := range ids {
		run.live[id] = struct{}{}
	}
	return nil
}

func asStoreError(op string, err error) error {
	if domain.IsStoreError(err) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}
