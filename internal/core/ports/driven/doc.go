// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Fetcher: Retrieves documents for one kind of source (website, repository)
//   - Extractor: Turns fetched bytes into heading-annotated text blocks
//   - Chunker: Splits blocks into bounded, overlapping chunks
//   - EmbeddingService: Maps chunk text to dense vectors
//   - VectorStore: Persists chunks and vectors, answers nearest-neighbour queries
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - RunStore: Refresh run history. Without it, only the last run is kept in memory.
//   - MetricsRecorder: Telemetry. Without it, nothing is recorded.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
