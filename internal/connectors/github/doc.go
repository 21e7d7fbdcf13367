// Package github fetches documentation files from GitHub repositories.
//
// # Listing
//
// The repository tree is listed with one recursive Trees API call on the
// configured branch, or on the repository default branch when none is set.
// Blobs are filtered with doublestar glob patterns ("docs/**/*.md"). Binary
// extensions and files larger than 1 MiB are skipped. Paths are sorted so
// repeated runs see files in the same order.
//
// # Fetching
//
// Blobs are downloaded concurrently, bounded by the fetch concurrency
// limit, and emitted in path order. When a page cache is configured the
// blob SHA is stored as the entry's validator, and unchanged files are
// served from the cache without a blob request.
//
// # Authentication
//
// A token is optional. Without one the client is anonymous and GitHub
// allows 60 requests per hour instead of 5,000.
//
// # Rate Limiting
//
// The client implements a dual-strategy rate limiting approach:
//
//  1. Proactive throttling: a token bucket spaces requests.
//
//  2. Reactive handling: X-RateLimit-Remaining and X-RateLimit-Reset are
//     tracked from every response. When the quota is exhausted the fetcher
//     waits until the reset time (or Retry-After) before retrying.
//
// Rate limit waits and transient failures (5xx, network errors) are retried
// up to the configured maximum. Without reset metadata the fetcher backs
// off exponentially.
//
// # Document Identifiers
//
// Files are identified by their web URL:
//
//	https://github.com/{owner}/{repo}/blob/{branch}/{path}
package github
