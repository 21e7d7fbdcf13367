// Package connectors holds the driven.Fetcher implementations, one per
// source kind: website crawls pages over HTTP and github walks a
// repository tree through the GitHub API. The fetchers are handed to the
// ingestion pipeline's FetcherRegistry at startup.
package connectors
