package reaper_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/logger"
	"github.com/jonesrussell/domain-profiler/internal/reaper"
)

type fakeReclaimer struct {
	calls atomic.Int64
	lease atomic.Int64
	n     int64
	err   error
}

func (f *fakeReclaimer) ReclaimExpired(_ context.Context, lease time.Duration) (int64, error) {
	f.calls.Add(1)
	f.lease.Store(int64(lease))
	return f.n, f.err
}

type countingRecorder struct{ total atomic.Int64 }

func (c *countingRecorder) LocksReclaimed(n int64) { c.total.Add(n) }

func TestNew_RequiresLease(t *testing.T) {
	_, err := reaper.New(&fakeReclaimer{}, 0, "@every 1m", nil, logger.NewNop())
	assert.ErrorIs(t, err, reaper.ErrLeaseDisabled)
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := reaper.New(&fakeReclaimer{}, time.Minute, "every minute", nil, logger.NewNop())
	assert.Error(t, err)
}

func TestReaper_Sweep(t *testing.T) {
	repo := &fakeReclaimer{n: 2}
	rec := &countingRecorder{}

	r, err := reaper.New(repo, 10*time.Minute, "*/5 * * * *", rec, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, int64(2), r.Sweep(context.Background()))
	assert.Equal(t, int64(10*time.Minute), repo.lease.Load())
	assert.Equal(t, int64(2), rec.total.Load())
}

func TestReaper_SweepError(t *testing.T) {
	repo := &fakeReclaimer{err: errors.New("connection refused")}
	rec := &countingRecorder{}

	r, err := reaper.New(repo, time.Minute, "@hourly", rec, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, int64(0), r.Sweep(context.Background()))
	assert.Equal(t, int64(0), rec.total.Load())
}

func TestReaper_StartRunsOnSchedule(t *testing.T) {
	repo := &fakeReclaimer{n: 1}
	r, err := reaper.New(repo, time.Minute, "@every 1s", nil, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	r.Start(ctx)

	assert.GreaterOrEqual(t, repo.calls.Load(), int64(1))
}
