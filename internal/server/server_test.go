package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/domain"
	"github.com/jonesrussell/domain-profiler/internal/logger"
	"github.com/jonesrussell/domain-profiler/internal/server"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeQueue struct {
	stats     *database.QueueStats
	locks     []domain.IngestionEntry
	olderThan time.Duration
	err       error
}

func (q *fakeQueue) Stats(context.Context) (*database.QueueStats, error) { return q.stats, q.err }

func (q *fakeQueue) ListLocked(_ context.Context, olderThan time.Duration) ([]domain.IngestionEntry, error) {
	q.olderThan = olderThan
	return q.locks, q.err
}

type fakeRecords struct {
	records map[string]*domain.DomainRecord
}

func (r fakeRecords) Get(_ context.Context, name string) (*domain.DomainRecord, error) {
	if rec, ok := r.records[name]; ok {
		return rec, nil
	}
	return nil, database.ErrRecordNotFound
}

func newTestServer(deps server.Deps) http.Handler {
	if deps.DB == nil {
		deps.DB = fakePinger{}
	}
	if deps.Queue == nil {
		deps.Queue = &fakeQueue{stats: &database.QueueStats{}}
	}
	if deps.Records == nil {
		deps.Records = fakeRecords{}
	}
	return server.New(config.ServerConfig{Address: ":0"}, false, deps, logger.NewNop()).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(server.Deps{Version: "1.2.3"}), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_StoreDown(t *testing.T) {
	rec := get(t, newTestServer(server.Deps{DB: fakePinger{err: errors.New("connection refused")}}), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestQueueStats(t *testing.T) {
	q := &fakeQueue{stats: &database.QueueStats{
		Unlocked: 4,
		Locked:   1,
		Records:  map[domain.CrawlStatus]int64{domain.StatusSuccess: 7},
	}}
	rec := get(t, newTestServer(server.Deps{Queue: q}), "/api/v1/queue/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Unlocked int64            `json:"unlocked"`
		Locked   int64            `json:"locked"`
		Records  map[string]int64 `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Unlocked)
	assert.Equal(t, int64(1), body.Locked)
	assert.Equal(t, int64(7), body.Records["success"])
}

func TestQueueStats_Error(t *testing.T) {
	rec := get(t, newTestServer(server.Deps{Queue: &fakeQueue{err: errors.New("boom")}}), "/api/v1/queue/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQueueLocks(t *testing.T) {
	lockedAt := time.Now().Add(-time.Hour)
	q := &fakeQueue{locks: []domain.IngestionEntry{{DomainName: "a.com", LockedAt: &lockedAt}}}
	h := newTestServer(server.Deps{Queue: q})

	rec := get(t, h, "/api/v1/queue/locks?older_than=30m")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30*time.Minute, q.olderThan)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), "a.com")

	rec = get(t, h, "/api/v1/queue/locks?older_than=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDomain(t *testing.T) {
	records := fakeRecords{records: map[string]*domain.DomainRecord{
		"a.com": {Name: "a.com", Status: domain.StatusSuccess, ContentType: "blog"},
	}}
	h := newTestServer(server.Deps{Records: records})

	rec := get(t, h, "/api/v1/domains/A.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content_type":"blog"`)

	rec = get(t, h, "/api/v1/domains/b.com")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/api/v1/domains/localhost")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("domain_profiler_claims_total 3\n"))
	})
	rec := get(t, newTestServer(server.Deps{Metrics: metrics}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "claims_total 3")
}
