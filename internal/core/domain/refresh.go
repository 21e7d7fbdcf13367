package domain

import "time"

// RefreshStatus is the scheduler state.
type RefreshStatus string

const (
	// RefreshIdle means no run is in progress.
	RefreshIdle RefreshStatus = "idle"

	// RefreshRunning means at least one run is in progress.
	RefreshRunning RefreshStatus = "running"

	// RefreshDisabled is fixed at startup when refresh is turned off.
	// No transitions leave it at runtime.
	RefreshDisabled RefreshStatus = "disabled"
)

// Trigger records why a run started.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// RefreshState is a snapshot of the scheduler.
type RefreshState struct {
	Status      RefreshStatus
	RunningJobs int
	MaxJobs     int
	LastRun     time.Time
	NextRun     time.Time
	LastResult  *RunSummary

	// Dropped counts triggers rejected because the job limit was reached.
	Dropped int
}

// SourceResult is the per-source part of a run summary.
type SourceResult struct {
	SourceName string

	DocumentsFetched int
	DocumentsCached  int
	DocumentsFailed  int

	// FailedIdentifiers lists pages/files that could not be fetched,
	// extracted or embedded.
	FailedIdentifiers []string

	ChunksWritten int
	ChunksPruned  int

	// FetchAttempts counts network attempts including retries.
	FetchAttempts int

	// PruneSkipped is true when the fetch failed entirely and stale
	// records were left in place.
	PruneSkipped bool

	// Degraded is true when at least one document failed to embed.
	Degraded bool

	// Error is set when the source failed as a whole.
	Error string

	Duration time.Duration
}

// Failed reports whether the source failed as a whole.
func (r *SourceResult) Failed() bool {
	return r.Error != ""
}

// RunSummary is the structured outcome of one ingestion run.
type RunSummary struct {
	RunID     string
	Trigger   Trigger
	StartedAt time.Time
	EndedAt   time.Time

	Sources []SourceResult

	ChunksWritten int
	ChunksPruned  int

	// Success is false when any source failed entirely or the store failed.
	Success bool

	// Degraded is true when embedding failures skipped documents.
	Degraded bool

	// Error carries a run-level failure (store errors, dimension mismatch).
	Error string
}

// Duration returns the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// DocumentsFetched sums fetched and cached documents across sources.
func (s *RunSummary) DocumentsFetched() int {
	n := 0
	for i := range s.Sources {
		n += s.Sources[i].DocumentsFetched + s.Sources[i].DocumentsCached
	}
	return n
}

// DocumentsFailed sums failed documents across sources.
func (s *RunSummary) DocumentsFailed() int {
	n := 0
	for i := range s.Sources {
		n += s.Sources[i].DocumentsFailed
	}
	return n
}
