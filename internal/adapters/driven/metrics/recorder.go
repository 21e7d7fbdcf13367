// Package metrics records ingestion and query telemetry with Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

const namespace = "sercha_docs"

var _ driven.MetricsRecorder = (*Recorder)(nil)

// Recorder implements driven.MetricsRecorder on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	triggersDropped prometheus.Counter

	documentsFetched *prometheus.GaugeVec
	documentsCached  *prometheus.GaugeVec
	documentsFailed  *prometheus.GaugeVec
	chunksWritten    *prometheus.GaugeVec
	chunksPruned     *prometheus.GaugeVec
	fetchAttempts    *prometheus.CounterVec
	lastRun          *prometheus.GaugeVec

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	queryResults  prometheus.Histogram
}

// NewRecorder creates a recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by trigger and result.",
		}, []string{"trigger", "result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		triggersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_triggers_dropped_total",
			Help:      "Refresh triggers rejected because the job limit was reached.",
		}),
		documentsFetched: sourceGauge("documents_fetched", "Documents downloaded in the last run of the source."),
		documentsCached:  sourceGauge("documents_cached", "Documents served from cache in the last run of the source."),
		documentsFailed:  sourceGauge("documents_failed", "Documents that failed in the last run of the source."),
		chunksWritten:    sourceGauge("chunks_written", "Chunks written in the last run of the source."),
		chunksPruned:     sourceGauge("chunks_pruned", "Chunks pruned in the last run of the source."),
		lastRun:          sourceGauge("last_run_timestamp_seconds", "Unix time the source last finished a run."),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Network fetch attempts including retries.",
		}, []string{"source"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries by type and result.",
		}, []string{"type", "result"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		queryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of results returned per query.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50},
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.runs, r.runDuration, r.triggersDropped,
		r.documentsFetched, r.documentsCached, r.documentsFailed,
		r.chunksWritten, r.chunksPruned, r.lastRun, r.fetchAttempts,
		r.queries, r.queryDuration, r.queryResults,
	)
	return r
}

func sourceGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"source"})
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records a finished ingestion run.
func (r *Recorder) ObserveRun(summary *domain.RunSummary) {
	if summary == nil {
		return
	}

	r.runs.WithLabelValues(string(summary.Trigger), runResult(summary)).Inc()
	r.runDuration.Observe(summary.Duration().Seconds())

	for i := range summary.Sources {
		src := &summary.Sources[i]
		r.documentsFetched.WithLabelValues(src.SourceName).Set(float64(src.DocumentsFetched))
		r.documentsCached.WithLabelValues(src.SourceName).Set(float64(src.DocumentsCached))
		r.documentsFailed.WithLabelValues(src.SourceName).Set(float64(src.DocumentsFailed))
		r.chunksWritten.WithLabelValues(src.SourceName).Set(float64(src.ChunksWritten))
		r.chunksPruned.WithLabelValues(src.SourceName).Set(float64(src.ChunksPruned))
		r.fetchAttempts.WithLabelValues(src.SourceName).Add(float64(src.FetchAttempts))
		r.lastRun.WithLabelValues(src.SourceName).Set(float64(summary.EndedAt.Unix()))
	}
}

// ObserveTriggerDropped records a rejected refresh trigger.
func (r *Recorder) ObserveTriggerDropped() {
	r.triggersDropped.Inc()
}

// ObserveQuery records one query call.
func (r *Recorder) ObserveQuery(queryType domain.QueryType, took time.Duration, results int, err error) {
	r.queries.WithLabelValues(string(queryType), queryResult(err)).Inc()
	r.queryDuration.WithLabelValues(string(queryType)).Observe(took.Seconds())
	if err == nil {
		r.queryResults.Observe(float64(results))
	}
}

func runResult(s *domain.RunSummary) string {
	switch {
	case !s.Success:
		return "failed"
	case s.Degraded:
		return "degraded"
	default:
		return "success"
	}
}

func queryResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
