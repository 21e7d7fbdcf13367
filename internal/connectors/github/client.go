package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Client wraps the go-github client with rate limiting and error mapping.
// Each method makes exactly one request; retries belong to the caller.
type Client struct {
	gh          *gh.Client
	rateLimiter *RateLimiter
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	baseURL string
	rps     float64
	timeout time.Duration
}

// WithBaseURL points the client at a different API root, such as a
// GitHub Enterprise server or a test server.
func WithBaseURL(u string) ClientOption {
	return func(o *clientOptions) { o.baseURL = u }
}

// WithRequestRate sets the proactive request rate. Zero disables throttling.
func WithRequestRate(rps float64) ClientOption {
	return func(o *clientOptions) { o.rps = rps }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewClient creates a GitHub API client. An empty token yields an
// anonymous client with the lower anonymous quota.
func NewClient(ctx context.Context, token string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{rps: ProactiveRate, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	quota := AnonymousRateLimit
	httpClient := &http.Client{}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
		quota = AuthenticatedRateLimit
	}
	httpClient.Timeout = o.timeout

	client := gh.NewClient(httpClient)
	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}

	return &Client{
		gh:          client,
		rateLimiter: NewRateLimiter(quota, o.rps),
	}, nil
}

// GetRepository fetches a single repository.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	repository, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "get repo")
	}
	return repository, nil
}

// GetTree fetches the entire tree for a ref recursively.
// This is efficient for getting all file paths in one API call.
func (c *Client) GetTree(ctx context.Context, owner, repo, ref string) (*gh.Tree, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	tree, resp, err := c.gh.Git.GetTree(ctx, owner, repo, ref, true) // recursive=true
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "get tree")
	}
	return tree, nil
}

// GetBlob fetches a blob by its SHA and returns the decoded content.
func (c *Client) GetBlob(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	blob, resp, err := c.gh.Git.GetBlob(ctx, owner, repo, sha)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "get blob")
	}

	if blob.GetEncoding() == "base64" {
		// Remove any whitespace from base64 content
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("decode blob %s: %w", sha, err)
		}
		return decoded, nil
	}
	return []byte(blob.GetContent()), nil
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// updateRateLimitFromResponse updates the rate limiter from GitHub response headers.
func (c *Client) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.rateLimiter.Observe(resp.Response)
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	// Primary quota exhausted.
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		resetAt := rateLimitErr.Rate.Reset.Time
		if d, ok := retryAfter(rateLimitErr.Response); ok {
			resetAt = time.Now().Add(d)
		}
		if resetAt.IsZero() {
			resetAt = c.rateLimiter.ResetTime()
		}
		return &RateLimitError{
			ResetAt:   resetAt,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}

	// Secondary limits carry an optional Retry-After.
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		rle := &RateLimitError{Limit: c.rateLimiter.Limit()}
		if abuseErr.RetryAfter != nil {
			rle.ResetAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		return rle
	}

	// Check for GitHub error response
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		if apiErr.StatusCode == http.StatusTooManyRequests {
			rle := &RateLimitError{Limit: c.rateLimiter.Limit()}
			if d, ok := retryAfter(ghErr.Response); ok {
				rle.ResetAt = time.Now().Add(d)
			}
			return rle
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
