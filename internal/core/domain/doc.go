// Package domain holds the types shared by every layer of sercha-docs:
// sources and their configuration, fetched and extracted documents, chunks
// and index records, refresh runs, search results and the errors that cross
// package boundaries.
//
// A Source is fetched into FetchedDocuments, extracted into Blocks, packed
// into Chunks, embedded and stored as IndexRecords. Every run produces a
// RunSummary with one SourceResult per source.
//
// The package imports the standard library only.
package domain
