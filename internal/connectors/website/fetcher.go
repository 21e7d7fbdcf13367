package website

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.Fetcher = (*Fetcher)(nil)

const (
	// RetryDelay is the initial delay between retries.
	RetryDelay = time.Second

	// MaxPageSize is the largest body read from one response.
	MaxPageSize = 10 * 1024 * 1024
)

// Fetcher crawls website sources.
type Fetcher struct {
	client     *http.Client
	cfg        domain.FetchConfig
	caches     driven.CacheProvider
	retryDelay time.Duration
	now        func() time.Time
	log        *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Per-request timeouts still apply.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithCache enables the page cache.
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

// NewFetcher creates a website fetcher.
func NewFetcher(cfg domain.FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{},
		cfg:        cfg,
		retryDelay: RetryDelay,
		now:        time.Now,
		log:        logger.With("website"),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Kind returns the source kind this fetcher handles.
func (f *Fetcher) Kind() domain.SourceKind {
	return domain.SourceKindWebsite
}

// result is the outcome of one page fetch.
type result struct {
	doc   *domain.FetchedDocument
	links []string
	err   error
}

// crawl holds the state of one Fetch call.
type crawl struct {
	source   string
	scope    scope
	cache    driven.PageCache
	sem      *semaphore.Weighted
	attempts atomic.Int64
	inflight sync.WaitGroup
}

// Fetch crawls the site breadth first and emits every retrieved page.
func (f *Fetcher) Fetch(ctx context.Context, source domain.Source, emit driven.EmitFunc) (*domain.FetchStats, error) {
	if source.Kind != domain.SourceKindWebsite || source.Website == nil {
		return nil, fmt.Errorf("%w: %q is not a website source", domain.ErrUnsupportedType, source.Name)
	}
	site := source.Website

	root, ok := Canonicalize(site.URL)
	if !ok {
		return nil, fmt.Errorf("%w: invalid url %q", domain.ErrInvalidInput, site.URL)
	}
	rootURL, _ := url.Parse(root)

	maxDepth := f.cfg.MaxDepth
	if site.MaxDepth > 0 {
		maxDepth = site.MaxDepth
	}

	c := &crawl{
		source: source.Name,
		scope:  scope{host: rootURL.Host, prefix: site.Prefix()},
		sem:    semaphore.NewWeighted(int64(max(f.cfg.ConcurrentLimit, 1))),
	}
	if f.caches != nil {
		cache, err := f.caches.ForSource(source.Name)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		c.cache = cache
	}

	stats := &domain.FetchStats{}
	defer func() { stats.Attempts = int(c.attempts.Load()) }()

	fctx, cancel := context.WithCancel(ctx)
	defer c.inflight.Wait()
	defer cancel()

	visited := map[string]bool{root: true}
	level := []string{root}
	for depth := 0; len(level) > 0; depth++ {
		stats.Discovered += len(level)
		f.log.Debug("%s: depth %d, %d pages", source.Name, depth, len(level))

		var next []string
		pending := f.dispatch(fctx, c, level)
		for i, ch := range pending {
			var r result
			select {
			case r = <-ch:
			case <-ctx.Done():
				return stats, ctx.Err()
			}

			if r.err != nil {
				stats.RecordFailure(level[i], r.err)
				f.log.Warn("%s: %v", level[i], r.err)
				continue
			}
			if r.doc.FromCache {
				stats.Cached++
			} else {
				stats.Fetched++
				stats.TotalBytes += int64(len(r.doc.Content))
			}
			if err := emit(ctx, r.doc); err != nil {
				return stats, err
			}

			if depth+1 > maxDepth {
				continue
			}
			for _, link := range r.links {
				if !visited[link] {
					visited[link] = true
					next = append(next, link)
				}
			}
		}
		level = next
	}

	if stats.Retrieved() == 0 {
		return stats, fmt.Errorf("%w: %s: no page could be retrieved", domain.ErrSourceUnreachable, root)
	}
	return stats, nil
}

// dispatch starts fetching every URL of a level under the concurrency
// bound. Each returned channel yields exactly one result.
func (f *Fetcher) dispatch(ctx context.Context, c *crawl, urls []string) []chan result {
	pending := make([]chan result, len(urls))
	for i := range pending {
		pending[i] = make(chan result, 1)
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		for i, u := range urls {
			if err := c.sem.Acquire(ctx, 1); err != nil {
				for _, ch := range pending[i:] {
					ch <- result{err: err}
				}
				return
			}
			c.inflight.Add(1)
			go func() {
				defer c.inflight.Done()
				defer c.sem.Release(1)
				pending[i] <- f.fetchPage(ctx, c, u)
			}()
		}
	}()
	return pending
}

// fetchPage serves a page from cache when fresh, otherwise requests it,
// revalidating stale entries.
func (f *Fetcher) fetchPage(ctx context.Context, c *crawl, pageURL string) result {
	var (
		entry *domain.CacheEntry
		body  []byte
	)
	if c.cache != nil {
		e, b, err := c.cache.Get(ctx, pageURL)
		switch {
		case err == nil:
			entry, body = e, b
		case !errors.Is(err, domain.ErrNotFound):
			f.log.Warn("cache %s: %v", pageURL, err)
		}
	}

	if entry != nil && entry.Fresh(f.now(), f.cfg.CacheTTL) {
		return f.cachedResult(c, pageURL, entry, body)
	}

	resp, err := f.get(ctx, c, pageURL, entry)
	if err != nil {
		return result{err: err}
	}

	if resp.status == http.StatusNotModified {
		entry.FetchedAt = f.now()
		if err := c.cache.Put(ctx, entry, body); err != nil {
			f.log.Warn("cache %s: %v", pageURL, err)
		}
		return f.cachedResult(c, pageURL, entry, body)
	}

	doc := &domain.FetchedDocument{
		SourceName:  c.source,
		Identifier:  pageURL,
		Content:     resp.body,
		ContentHash: domain.HashContent(resp.body),
		FetchedAt:   f.now(),
		Kind:        detectKind(resp.contentType, pageURL),
	}
	var links []string
	if doc.Kind == domain.ContentKindHTML {
		p := parsePage(resp.body, resp.finalURL, c.scope)
		doc.Title, links = p.title, p.links
	}

	if c.cache != nil {
		next := &domain.CacheEntry{
			Identifier:   pageURL,
			ContentHash:  doc.ContentHash,
			FetchedAt:    doc.FetchedAt,
			HTTPStatus:   resp.status,
			ETag:         resp.etag,
			LastModified: resp.lastModified,
			ContentType:  resp.contentType,
			Title:        doc.Title,
		}
		if err := c.cache.Put(ctx, next, resp.body); err != nil {
			f.log.Warn("cache %s: %v", pageURL, err)
		}
	}
	return result{doc: doc, links: links}
}

func (f *Fetcher) cachedResult(c *crawl, pageURL string, entry *domain.CacheEntry, body []byte) result {
	doc := &domain.FetchedDocument{
		SourceName:  c.source,
		Identifier:  pageURL,
		Content:     body,
		ContentHash: entry.ContentHash,
		FetchedAt:   entry.FetchedAt,
		Kind:        detectKind(entry.ContentType, pageURL),
		Title:       entry.Title,
		FromCache:   true,
	}
	var links []string
	if doc.Kind == domain.ContentKindHTML {
		base, _ := url.Parse(pageURL)
		links = parsePage(body, base, c.scope).links
	}
	return result{doc: doc, links: links}
}

// response is the part of an HTTP response kept after the body is read.
type response struct {
	status       int
	body         []byte
	contentType  string
	etag         string
	lastModified string
	finalURL     *url.URL
}

// get performs a GET with retries. A non-nil entry makes the request
// conditional; the caller must then handle 304.
func (f *Fetcher) get(ctx context.Context, c *crawl, pageURL string, entry *domain.CacheEntry) (*response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(f.cfg.MaxRetries, 1)-1)), ctx)

	var resp *response
	op := func() error {
		if err := f.limiter(c.scope.host).Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.attempts.Add(1)

		r, err := f.do(ctx, pageURL, entry)
		if err != nil {
			if !domain.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		f.log.Debug("%s: retrying in %s: %v", pageURL, wait, err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// do performs a single attempt under the per-request timeout.
func (f *Fetcher) do(ctx context.Context, pageURL string, entry *domain.CacheEntry) (*response, error) {
	reqCtx := ctx
	if timeout := f.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Identifier: pageURL, Err: err}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/markdown,text/plain;q=0.9,*/*;q=0.5")
	if entry != nil {
		if entry.ETag != "" {
			req.Header.Set("If-None-Match", entry.ETag)
		}
		if entry.LastModified != "" {
			req.Header.Set("If-Modified-Since", entry.LastModified)
		}
	}

	res, err := f.client.Do(req)
	if err != nil {
		// The caller's cancellation is final; a per-request timeout is not.
		return nil, &domain.FetchError{Identifier: pageURL, Transient: ctx.Err() == nil, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotModified && entry != nil:
		_, _ = io.Copy(io.Discard, res.Body)
		return &response{status: res.StatusCode}, nil
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, &domain.FetchError{Identifier: pageURL, StatusCode: res.StatusCode, Transient: true}
	case res.StatusCode < 200 || res.StatusCode > 299:
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, &domain.FetchError{Identifier: pageURL, StatusCode: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxPageSize+1))
	if err != nil {
		return nil, &domain.FetchError{Identifier: pageURL, Transient: true, Err: err}
	}
	if len(body) > MaxPageSize {
		return nil, &domain.FetchError{Identifier: pageURL, Err: fmt.Errorf("page exceeds %d bytes", MaxPageSize)}
	}

	return &response{
		status:       res.StatusCode,
		body:         body,
		contentType:  res.Header.Get("Content-Type"),
		etag:         res.Header.Get("ETag"),
		lastModified: res.Header.Get("Last-Modified"),
		finalURL:     res.Request.URL,
	}, nil
}

// limiter returns the politeness limiter for a host.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		limit := rate.Inf
		if d := f.cfg.Delay(); d > 0 {
			limit = rate.Every(d)
		}
		l = rate.NewLimiter(limit, 1)
		f.limiters[host] = l
	}
	return l
}

// detectKind picks the extractor from the Content-Type, falling back to
// the URL extension. Extensionless pages are assumed to be HTML.
func detectKind(contentType, pageURL string) domain.ContentKind {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mediaType == "text/html" || mediaType == "application/xhtml+xml":
			return domain.ContentKindHTML
		case mediaType == "text/markdown" || mediaType == "text/x-markdown":
			return domain.ContentKindMarkdown
		case mediaType == "application/json" || strings.HasSuffix(mediaType, "yaml"):
			return domain.ContentKindStructured
		case mediaType == "text/plain":
			// Raw markdown is often served as text/plain.
			if kind, ok := kindFromExt(pageURL); ok {
				return kind
			}
			return domain.ContentKindText
		}
	}
	if kind, ok := kindFromExt(pageURL); ok {
		return kind
	}
	return domain.ContentKindHTML
}

func kindFromExt(pageURL string) (domain.ContentKind, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".md", ".markdown", ".mdx":
		return domain.ContentKindMarkdown, true
	case ".txt", ".rst":
		return domain.ContentKindText, true
	case ".json", ".yaml", ".yml":
		return domain.ContentKindStructured, true
	case ".html", ".htm":
		return domain.ContentKindHTML, true
	}
	return "", false
}
