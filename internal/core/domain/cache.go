package domain

import "time"

// CacheEntry records the last-seen state of one fetched identifier.
// Entries are read before every fetch attempt and written after every
// successful fetch. They are never shared across sources.
type CacheEntry struct {
	Identifier string `json:"identifier"`

	// IdentifierHash is the filesystem-safe key (hex sha256 of Identifier).
	IdentifierHash string `json:"identifier_hash"`

	ContentHash   string    `json:"content_hash"`
	FetchedAt     time.Time `json:"fetched_at"`
	ContentLength int       `json:"content_length"`
	HTTPStatus    int       `json:"http_status"`
	ETag          string    `json:"etag,omitempty"`
	LastModified  string    `json:"last_modified,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	Title         string    `json:"title,omitempty"`
}

// Fresh reports whether the entry is younger than ttl at time now.
// A zero or negative ttl means entries never expire on their own.
func (e *CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.FetchedAt) < ttl
}

// FetchStats summarises one fetch pass over a source.
type FetchStats struct {
	Discovered int
	Fetched    int
	Cached     int
	Failed     int
	TotalBytes int64

	// FailedIdentifiers lists identifiers that could not be retrieved.
	FailedIdentifiers []string

	// RetryableIdentifiers is the subset of FailedIdentifiers whose failure
	// may clear on a later run. Terminal failures (404, 410, oversized or
	// unsupported content) are not listed.
	RetryableIdentifiers []string

	// Attempts counts HTTP attempts, including retries.
	Attempts int
}

// RecordFailure counts a failed identifier. Anything but a terminal
// FetchError is treated as retryable.
func (s *FetchStats) RecordFailure(identifier string, err error) {
	s.Failed++
	s.FailedIdentifiers = append(s.FailedIdentifiers, identifier)
	if !IsTerminal(err) {
		s.RetryableIdentifiers = append(s.RetryableIdentifiers, identifier)
	}
}

// Retrieved is the number of documents handed to the pipeline.
func (s *FetchStats) Retrieved() int {
	return s.Fetched + s.Cached
}

// CacheHitRate is the share of retrieved documents served from cache.
func (s *FetchStats) CacheHitRate() float64 {
	total := s.Retrieved()
	if total == 0 {
		return 0
	}
	return float64(s.Cached) / float64(total)
}
