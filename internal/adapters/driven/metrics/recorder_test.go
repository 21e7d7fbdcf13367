package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

func TestObserveRun(t *testing.T) {
	r := NewRecorder()
	start := time.Now()

	r.ObserveRun(&domain.RunSummary{
		RunID:     "run-1",
		Trigger:   domain.TriggerScheduled,
		StartedAt: start,
		EndedAt:   start.Add(4 * time.Second),
		Success:   true,
		Degraded:  true,
		Sources: []domain.SourceResult{
			{SourceName: "docs", DocumentsFetched: 3, DocumentsCached: 2, DocumentsFailed: 1, ChunksWritten: 9, ChunksPruned: 4, FetchAttempts: 6},
		},
	})
	r.ObserveRun(&domain.RunSummary{Trigger: domain.TriggerManual, StartedAt: start, EndedAt: start})
	r.ObserveRun(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("scheduled", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("manual", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.documentsFetched.WithLabelValues("docs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.documentsCached.WithLabelValues("docs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.documentsFailed.WithLabelValues("docs")))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.chunksWritten.WithLabelValues("docs")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.chunksPruned.WithLabelValues("docs")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.fetchAttempts.WithLabelValues("docs")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.runDuration))
}

func TestObserveQuery(t *testing.T) {
	r := NewRecorder()

	r.ObserveQuery(domain.QueryTypeSemantic, 20*time.Millisecond, 5, nil)
	r.ObserveQuery(domain.QueryTypeHybrid, time.Millisecond, 0, fmt.Errorf("bad limit: %w", domain.ErrInvalidInput))
	r.ObserveQuery(domain.QueryTypeKeyword, time.Millisecond, 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("semantic", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("hybrid", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("keyword", "error")))
}

func TestObserveTriggerDropped(t *testing.T) {
	r := NewRecorder()
	r.ObserveTriggerDropped()
	r.ObserveTriggerDropped()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.triggersDropped))
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.ObserveQuery(domain.QueryTypeSemantic, time.Millisecond, 1, nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sercha_docs_queries_total{result="ok",type="semantic"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
