package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Hourly REST quotas.
const (
	AuthenticatedRateLimit = 5000
	AnonymousRateLimit     = 60
)

// ProactiveRate spaces requests so a full crawl stays under the
// authenticated quota (1.2 req/s is 4320 an hour).
const ProactiveRate = 1.2

// reserve is how many requests are left unused before waiting for reset.
const reserve = 10

// Response headers consulted by the limiter.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
	HeaderRetryAfter    = "Retry-After"
)

// RateLimiter throttles requests with a token bucket and pauses until the
// window resets once the quota reported by GitHub runs low.
type RateLimiter struct {
	bucket  *rate.Limiter
	reserve int

	mu        sync.Mutex
	remaining int
	limit     int
	resetAt   time.Time
}

// NewRateLimiter assumes the full quota until the first response arrives.
// A non-positive rps disables the token bucket.
func NewRateLimiter(quota int, rps float64) *RateLimiter {
	every := rate.Inf
	if rps > 0 {
		every = rate.Limit(rps)
	}
	return &RateLimiter{
		bucket:    rate.NewLimiter(every, 1),
		reserve:   min(reserve, quota/2),
		remaining: quota,
		limit:     quota,
	}
}

// Wait blocks until a request may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	low := r.remaining < r.reserve
	resetAt := r.resetAt
	r.mu.Unlock()

	if low && time.Now().Before(resetAt) {
		return WaitUntil(ctx, resetAt)
	}
	return nil
}

// Observe records the quota headers of a response.
func (r *RateLimiter) Observe(resp *http.Response) {
	if resp == nil {
		return
	}
	h := resp.Header

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := headerInt(h, HeaderRateRemaining); ok {
		r.remaining = int(v)
	}
	if v, ok := headerInt(h, HeaderRateLimit); ok {
		r.limit = int(v)
	}
	if v, ok := headerInt(h, HeaderRateReset); ok {
		r.resetAt = time.Unix(v, 0)
	}
}

// Limit returns the last reported hourly quota.
func (r *RateLimiter) Limit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

// ResetTime returns when the current window ends. Zero until a response
// carried the reset header.
func (r *RateLimiter) ResetTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetAt
}

// WaitUntil blocks until t or until ctx is done.
func WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	seconds, ok := headerInt(resp.Header, HeaderRetryAfter)
	if !ok || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func headerInt(h http.Header, key string) (int64, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
