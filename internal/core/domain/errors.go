package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown source or content kind.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrSourceUnreachable indicates no document at all could be
	// retrieved for a source. Pruning is skipped for that source.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrDimensionMismatch indicates the embedder produces vectors of a
	// different size (or model) than the index was built with.
	// Ingestion must not proceed; the index needs a full rebuild.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable indicates the embedding service is not reachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Refresh Errors.

	// ErrRefreshBusy indicates a trigger was dropped because the maximum
	// number of concurrent refresh jobs is already running.
	ErrRefreshBusy = errors.New("refresh already running")

	// ErrRefreshDisabled indicates refresh was turned off in configuration.
	ErrRefreshDisabled = errors.New("refresh disabled")
)

// FetchError is a failure to retrieve one identifier.
// Transient errors (timeouts, connection resets, 5xx, rate limits) are
// retried; terminal ones (404 and other 4xx, malformed URLs, auth
// failures) are not.
type FetchError struct {
	Identifier string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch error for %s: status %d", kind, e.Identifier, e.StatusCode)
	}
	return fmt.Sprintf("%s fetch error for %s: %v", kind, e.Identifier, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err is a fetch failure that retrying cannot fix.
func IsTerminal(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return !fetchErr.Transient
	}
	return false
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Transient
	}
	return false
}

// ExtractionError indicates fetched content could not be turned into text.
// The document is skipped; the source continues.
type ExtractionError struct {
	Identifier string
	Reason     string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.Identifier, e.Reason)
}

// EmbeddingError indicates the model failed for a batch.
// The affected document is skipped and the run is flagged degraded.
type EmbeddingError struct {
	Identifier string
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding failed for %s: %v", e.Identifier, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// StoreError is a disk or consistency failure in the vector store.
// It aborts the whole run; batches already committed stay committed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is (or wraps) a StoreError.
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}
