package github

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.Fetcher = (*Fetcher)(nil)

const (
	// RetryDelay is the initial delay between retries.
	RetryDelay = time.Second

	// MaxRateLimitWait caps how long one request waits for a quota reset.
	MaxRateLimitWait = 15 * time.Minute
)

// Fetcher retrieves repository files for repository sources.
type Fetcher struct {
	client       *Client
	cfg          domain.FetchConfig
	caches       driven.CacheProvider
	retryDelay   time.Duration
	maxResetWait time.Duration
	now          func() time.Time
	log          *logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCache enables blob reuse through a page cache.
func WithCache(caches driven.CacheProvider) Option {
	return func(f *Fetcher) { f.caches = caches }
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.retryDelay = d
		}
	}
}

// WithMaxRateLimitWait caps the wait for a quota reset.
func WithMaxRateLimitWait(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.maxResetWait = d
		}
	}
}

// NewFetcher creates a repository fetcher.
func NewFetcher(client *Client, cfg domain.FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       client,
		cfg:          cfg,
		retryDelay:   RetryDelay,
		maxResetWait: MaxRateLimitWait,
		now:          time.Now,
		log:          logger.With("github"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Kind returns the source kind this fetcher handles.
func (f *Fetcher) Kind() domain.SourceKind {
	return domain.SourceKindRepository
}

// result is the outcome of one blob fetch.
type result struct {
	doc *domain.FetchedDocument
	err error
}

// Fetch lists the repository tree and emits every matching file in path order.
func (f *Fetcher) Fetch(ctx context.Context, source domain.Source, emit driven.EmitFunc) (*domain.FetchStats, error) {
	if source.Kind != domain.SourceKindRepository || source.Repository == nil {
		return nil, fmt.Errorf("%w: %q is not a repository source", domain.ErrUnsupportedType, source.Name)
	}
	repo := source.Repository
	if err := ValidatePatterns(repo.Paths); err != nil {
		return nil, err
	}

	stats := &domain.FetchStats{}
	var attempts atomic.Int64
	defer func() { stats.Attempts = int(attempts.Load()) }()

	branch, err := f.resolveBranch(ctx, repo, &attempts)
	if err != nil {
		return stats, fmt.Errorf("%w: %s: %w", domain.ErrSourceUnreachable, repo.FullName(), err)
	}

	var tree []file
	err = f.retry(ctx, &attempts, func() error {
		t, err := f.client.GetTree(ctx, repo.Owner, repo.Repo, branch)
		if err != nil {
			return err
		}
		if t.GetTruncated() {
			f.log.Warn("%s: tree listing truncated, some files are missing", repo.FullName())
		}
		tree = selectFiles(t.Entries, repo.Paths)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%w: %s: list tree: %w", domain.ErrSourceUnreachable, repo.FullName(), err)
	}
	stats.Discovered = len(tree)
	f.log.Debug("%s@%s: %d files match", repo.FullName(), branch, len(tree))

	var cache driven.PageCache
	if f.caches != nil {
		if cache, err = f.caches.ForSource(source.Name); err != nil {
			return stats, fmt.Errorf("open cache: %w", err)
		}
	}

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(fctx)
	g.SetLimit(max(f.cfg.ConcurrentLimit, 1))

	results := make([]result, len(tree))
	ready := make([]chan struct{}, len(tree))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	var launched sync.WaitGroup
	launched.Add(1)
	go func() {
		defer launched.Done()
		for i := range tree {
			g.Go(func() error {
				defer close(ready[i])
				doc, err := f.fetchFile(gctx, source.Name, repo, branch, tree[i], cache, &attempts)
				results[i] = result{doc: doc, err: err}
				return nil
			})
		}
	}()

	// Emit in path order while later files are still downloading.
	var emitErr error
	for i := range tree {
		select {
		case <-ready[i]:
		case <-ctx.Done():
			emitErr = ctx.Err()
		}
		if emitErr != nil {
			break
		}

		r := results[i]
		if r.err != nil {
			stats.RecordFailure(fileURL(repo.Owner, repo.Repo, branch, tree[i].path), r.err)
			f.log.Warn("%s: %v", tree[i].path, r.err)
			continue
		}
		if r.doc.FromCache {
			stats.Cached++
		} else {
			stats.Fetched++
			stats.TotalBytes += int64(len(r.doc.Content))
		}
		if err := emit(ctx, r.doc); err != nil {
			emitErr = err
			break
		}
	}
	if emitErr != nil {
		cancel()
	}

	launched.Wait()
	_ = g.Wait()

	if emitErr != nil {
		return stats, emitErr
	}
	if stats.Retrieved() == 0 && stats.Discovered > 0 {
		return stats, fmt.Errorf("%w: %s: all %d files failed", domain.ErrSourceUnreachable, repo.FullName(), stats.Failed)
	}
	return stats, nil
}

// resolveBranch returns the configured branch, else the repository default
// branch. A missing repository is fatal; other lookup failures fall back
// to domain.DefaultBranch.
func (f *Fetcher) resolveBranch(ctx context.Context, repo *domain.RepositorySource, attempts *atomic.Int64) (string, error) {
	if repo.Branch != "" {
		return repo.Branch, nil
	}

	var branch string
	err := f.retry(ctx, attempts, func() error {
		r, err := f.client.GetRepository(ctx, repo.Owner, repo.Repo)
		if err != nil {
			return err
		}
		branch = r.GetDefaultBranch()
		return nil
	})
	switch {
	case repoInaccessible(err):
		return "", fmt.Errorf("%w: %w", ErrRepoNotFound, err)
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil || branch == "":
		f.log.Warn("%s: default branch lookup failed, using %s: %v", repo.FullName(), domain.DefaultBranch, err)
		return domain.DefaultBranch, nil
	}
	return branch, nil
}

func (f *Fetcher) fetchFile(
	ctx context.Context, sourceName string, repo *domain.RepositorySource, branch string,
	fl file, cache driven.PageCache, attempts *atomic.Int64,
) (*domain.FetchedDocument, error) {
	id := fileURL(repo.Owner, repo.Repo, branch, fl.path)
	doc := &domain.FetchedDocument{
		SourceName: sourceName,
		Identifier: id,
		Kind:       detectKind(fl.path),
	}

	// The blob SHA is content addressed, so a matching entry never needs
	// revalidation.
	if cache != nil {
		entry, body, err := cache.Get(ctx, id)
		if err == nil && entry.ETag == fl.sha {
			doc.Content = body
			doc.ContentHash = entry.ContentHash
			doc.FetchedAt = entry.FetchedAt
			doc.FromCache = true
			return doc, nil
		}
	}

	var content []byte
	err := f.retry(ctx, attempts, func() error {
		var err error
		content, err = f.client.GetBlob(ctx, repo.Owner, repo.Repo, fl.sha)
		return err
	})
	if err != nil {
		return nil, toFetchError(id, err)
	}

	doc.Content = content
	doc.ContentHash = domain.HashContent(content)
	doc.FetchedAt = f.now()

	if cache != nil {
		entry := &domain.CacheEntry{
			Identifier:  id,
			ContentHash: doc.ContentHash,
			FetchedAt:   doc.FetchedAt,
			HTTPStatus:  200,
			ETag:        fl.sha,
		}
		if err := cache.Put(ctx, entry, content); err != nil {
			f.log.Warn("cache %s: %v", fl.path, err)
		}
	}
	return doc, nil
}

// retry runs op until it succeeds, fails permanently, or MaxRetries
// attempts have been made. Rate limited attempts wait for the quota reset
// when it is known; everything else backs off exponentially.
func (f *Fetcher) retry(ctx context.Context, attempts *atomic.Int64, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	maxAttempts := max(f.cfg.MaxRetries, 1)
	for attempt := 1; ; attempt++ {
		attempts.Add(1)
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt >= maxAttempts {
			return err
		}

		var rle *RateLimitError
		if errors.As(err, &rle) && !rle.ResetAt.IsZero() {
			wait := rle.wait(f.now())
			if wait > f.maxResetWait {
				return fmt.Errorf("rate limit resets in %s: %w", wait.Round(time.Second), err)
			}
			f.log.Info("rate limited, waiting %s", wait.Round(time.Second))
			if werr := WaitUntil(ctx, rle.ResetAt); werr != nil {
				return werr
			}
			continue
		}

		delay := b.NextBackOff()
		f.log.Debug("attempt %d failed, retrying in %s: %v", attempt, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
