package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// ErrRepoNotFound is returned when the repository does not exist or the
// token cannot see it. GitHub answers 404 for private repositories the
// caller has no access to, so both cases look the same.
var ErrRepoNotFound = errors.New("github: repository not found")

// RateLimitError is returned once the primary or secondary limit is hit.
// A zero ResetAt means GitHub gave no hint and the caller backs off.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "github: rate limited"
	}
	return fmt.Sprintf("github: rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// wait is how long to hold off before the limit resets.
func (e *RateLimitError) wait(now time.Time) time.Duration {
	if e.ResetAt.IsZero() {
		return 0
	}
	return max(e.ResetAt.Sub(now), 0)
}

// APIError is a non-rate-limit error response from the API.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s returned %d: %s", e.URL, e.StatusCode, e.Message)
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// repoInaccessible reports a missing repository or a rejected token.
func repoInaccessible(err error) bool {
	switch statusOf(err) {
	case http.StatusNotFound, http.StatusUnauthorized:
		return true
	}
	return false
}

// isTransient reports whether a request may succeed when retried.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	if status := statusOf(err); status != 0 {
		return status >= http.StatusInternalServerError
	}
	// Transport failure.
	return true
}

func toFetchError(identifier string, err error) *domain.FetchError {
	return &domain.FetchError{
		Identifier: identifier,
		StatusCode: statusOf(err),
		Transient:  isTransient(err),
		Err:        err,
	}
}
