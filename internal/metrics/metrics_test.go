package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	m := metrics.New()

	m.ClaimSucceeded()
	m.ClaimSucceeded()
	m.QueueEmpty()
	m.StoreFailed("claim")
	m.Finalized("success")
	m.Finalized("failed")
	m.Finalized("failed")
	m.FinalizeRejected("lock_lost")
	m.PanicRecovered()
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped()
	m.ObserveStage("fetch", 120*time.Millisecond)
	m.LocksReclaimed(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Claims), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.IdlePolls), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreErrors.WithLabelValues("claim")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Outcomes.WithLabelValues("failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FinalizeDropped.WithLabelValues("lock_lost")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ActiveWorkers), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Reclaimed), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.ClaimSucceeded()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "domain_profiler_claims_total 1")
}
