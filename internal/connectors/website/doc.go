// Package website crawls documentation sites for website sources.
//
// # Crawling
//
// The crawl is breadth first from the source URL. Links are collected
// from every HTML page with goquery, resolved against the page URL and
// stripped of query and fragment. A link is followed only when it stays
// on the same host, sits under the source path prefix and is within the
// depth limit. Pages are emitted level by level in discovery order.
//
// # Politeness
//
// At most FetchConfig.ConcurrentLimit requests are in flight, and
// dispatches to one host are spaced by FetchConfig.DelayMS using a
// token bucket per host.
//
// # Retries
//
// Timeouts, connection errors, 429 and 5xx responses are retried with
// exponential backoff up to FetchConfig.MaxRetries attempts in total.
// Other 4xx responses fail the page immediately.
//
// # Caching
//
// With a cache configured, a page whose entry is younger than the TTL is
// served without a request. Older entries are revalidated with
// If-None-Match and If-Modified-Since; a 304 reuses the cached body.
// Links are still discovered from cached pages.
package website
