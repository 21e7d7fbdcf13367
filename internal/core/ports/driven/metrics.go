package driven

import (
	"time"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// MetricsRecorder receives telemetry. Implementations must not block.
type MetricsRecorder interface {
	// ObserveRun records a finished ingestion run.
	ObserveRun(summary *domain.RunSummary)

	// ObserveTriggerDropped records a refresh trigger rejected at the job limit.
	ObserveTriggerDropped()

	// ObserveQuery records one query call.
	ObserveQuery(queryType domain.QueryType, took time.Duration, results int, err error)
}
