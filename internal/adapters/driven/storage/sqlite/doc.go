// Package sqlite provides the SQLite-backed vector store and run history.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One database file holds:
//
//   - chunks: chunk text, metadata and little-endian float32 embeddings
//   - chunks_fts: an FTS5 index over chunk titles, headings and text
//   - index_meta: the embedding model and dimensionality the index was built with
//   - refresh_runs: ingestion run summaries
//
// # Search
//
// Semantic queries scan every vector of the (optionally filtered) index and
// rank by cosine similarity. Documentation indexes are small enough that an
// exhaustive scan stays fast. Keyword queries use FTS5 BM25.
//
// # Schema
//
// The schema is managed through versioned migrations in the migrations/
// directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-docs/data/index.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. SQLite runs in WAL mode so
// readers are not blocked by a refresh; LockSource serialises writers of
// the same source.
package sqlite
