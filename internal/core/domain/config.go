package domain

import (
	"fmt"
	"time"
)

// Fetch tuning bounds.
const (
	MinTimeoutSeconds = 5
	MaxTimeoutSeconds = 300
	MinRetries        = 1
	MaxRetries        = 10
	MinConcurrency    = 1
	MaxConcurrency    = 20
	MaxDelayMS        = 5000
	MinCrawlDepth     = 1
	MaxCrawlDepth     = 10
)

// Refresh tuning bounds.
const (
	MinIntervalHours = 1
	MaxIntervalHours = 168
)

// FetchConfig tunes both fetchers.
type FetchConfig struct {
	// TimeoutSeconds bounds every individual HTTP call.
	TimeoutSeconds int

	// MaxRetries is the total number of attempts for a transient failure.
	MaxRetries int

	// ConcurrentLimit bounds in-flight requests per source.
	ConcurrentLimit int

	// DelayMS is the minimum spacing between dispatches to one host.
	DelayMS int

	// MaxDepth is the default crawl depth for website sources.
	MaxDepth int

	// CacheTTL is how long a cache entry is trusted without revalidation.
	CacheTTL time.Duration

	// UserAgent is sent with every website request.
	UserAgent string
}

// DefaultFetchConfig returns the fetch defaults.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		TimeoutSeconds:  30,
		MaxRetries:      3,
		ConcurrentLimit: 5,
		DelayMS:         100,
		MaxDepth:        5,
		CacheTTL:        24 * time.Hour,
		UserAgent:       "sercha-docs/1.0 (+https://github.com/custodia-labs/sercha-docs)",
	}
}

// Timeout returns TimeoutSeconds as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Delay returns DelayMS as a duration.
func (c FetchConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// Validate enforces the fetch tuning bounds.
func (c FetchConfig) Validate() error {
	switch {
	case c.TimeoutSeconds < MinTimeoutSeconds || c.TimeoutSeconds > MaxTimeoutSeconds:
		return boundsError("fetching.timeout", c.TimeoutSeconds, MinTimeoutSeconds, MaxTimeoutSeconds)
	case c.MaxRetries < MinRetries || c.MaxRetries > MaxRetries:
		return boundsError("fetching.max_retries", c.MaxRetries, MinRetries, MaxRetries)
	case c.ConcurrentLimit < MinConcurrency || c.ConcurrentLimit > MaxConcurrency:
		return boundsError("fetching.concurrent_limit", c.ConcurrentLimit, MinConcurrency, MaxConcurrency)
	case c.DelayMS < 0 || c.DelayMS > MaxDelayMS:
		return boundsError("fetching.delay_ms", c.DelayMS, 0, MaxDelayMS)
	case c.MaxDepth < MinCrawlDepth || c.MaxDepth > MaxCrawlDepth:
		return boundsError("fetching.max_depth", c.MaxDepth, MinCrawlDepth, MaxCrawlDepth)
	case c.CacheTTL < 0:
		return fmt.Errorf("%w: fetching.cache_ttl must not be negative", ErrInvalidInput)
	}
	return nil
}

// RefreshConfig tunes the background scheduler.
type RefreshConfig struct {
	Enabled           bool
	IntervalHours     int
	MaxConcurrentJobs int
}

// DefaultRefreshConfig returns the refresh defaults.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Enabled:           true,
		IntervalHours:     24,
		MaxConcurrentJobs: 1,
	}
}

// Interval returns IntervalHours as a duration.
func (c RefreshConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// Validate enforces the refresh tuning bounds.
func (c RefreshConfig) Validate() error {
	if c.IntervalHours < MinIntervalHours || c.IntervalHours > MaxIntervalHours {
		return boundsError("refresh.interval_hours", c.IntervalHours, MinIntervalHours, MaxIntervalHours)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("%w: refresh.max_concurrent_jobs must be at least 1", ErrInvalidInput)
	}
	return nil
}

// ChunkConfig tunes the chunker. Sizes are in estimated tokens.
type ChunkConfig struct {
	TargetTokens  int
	MinTokens     int
	MaxTokens     int
	OverlapTokens int
}

// DefaultChunkConfig returns the chunking defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TargetTokens:  512,
		MinTokens:     100,
		MaxTokens:     640,
		OverlapTokens: 100,
	}
}

// Validate checks the chunk bounds are coherent.
func (c ChunkConfig) Validate() error {
	switch {
	case c.TargetTokens <= 0:
		return fmt.Errorf("%w: chunking.chunk_size must be positive", ErrInvalidInput)
	case c.MinTokens < 0 || c.MinTokens > c.TargetTokens:
		return fmt.Errorf("%w: chunking.min_chunk_size must be in [0,chunk_size]", ErrInvalidInput)
	case c.MaxTokens < c.TargetTokens:
		return fmt.Errorf("%w: chunking.max_chunk_size must be >= chunk_size", ErrInvalidInput)
	case c.OverlapTokens < 0 || c.OverlapTokens >= c.TargetTokens:
		return fmt.Errorf("%w: chunking.overlap must be in [0,chunk_size)", ErrInvalidInput)
	case c.MaxTokens < 2*c.MinTokens-c.OverlapTokens:
		// A document just over max must split into two chunks of at least min.
		return fmt.Errorf("%w: chunking.max_chunk_size must be at least 2*min_chunk_size-overlap (%d)",
			ErrInvalidInput, 2*c.MinTokens-c.OverlapTokens)
	}
	return nil
}

// EmbeddingConfig selects the local embedding model.
type EmbeddingConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

// DefaultEmbeddingConfig returns the embedding defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
		BatchSize:  32,
	}
}

// Validate checks the embedding settings.
func (c EmbeddingConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: embedding.model is required", ErrInvalidInput)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding.dimensions must be positive", ErrInvalidInput)
	}
	if c.BatchSize < 1 || c.BatchSize > 512 {
		return boundsError("embedding.batch_size", c.BatchSize, 1, 512)
	}
	return nil
}

func boundsError(field string, got, lo, hi int) error {
	return fmt.Errorf("%w: %s=%d must be in [%d,%d]", ErrInvalidInput, field, got, lo, hi)
}
