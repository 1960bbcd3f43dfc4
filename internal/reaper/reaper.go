// Package reaper clears ingestion locks whose lease has expired.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Reclaimer clears locks older than the lease. *database.IngestionRepository
// implements it.
type Reclaimer interface {
	ReclaimExpired(ctx context.Context, lease time.Duration) (int64, error)
}

// Recorder receives the number of cleared locks.
type Recorder interface {
	LocksReclaimed(n int64)
}

// ErrLeaseDisabled is returned when the reaper is built without a lease.
var ErrLeaseDisabled = errors.New("lock lease is disabled")

// parser accepts five-field expressions and descriptors such as "@every 1m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reaper runs ReclaimExpired on a cron schedule.
type Reaper struct {
	repo     Reclaimer
	recorder Recorder
	lease    time.Duration
	log      logger.Logger
	cron     *cron.Cron
}

// New validates the schedule and builds a stopped reaper. recorder may be nil.
func New(repo Reclaimer, lease time.Duration, schedule string, recorder Recorder, log logger.Logger) (*Reaper, error) {
	if lease <= 0 {
		return nil, ErrLeaseDisabled
	}

	r := &Reaper{
		repo:     repo,
		recorder: recorder,
		lease:    lease,
		log:      log,
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule until ctx is done, then waits for a running sweep.
func (r *Reaper) Start(ctx context.Context) {
	r.log.Info("Lock reaper started", logger.Duration("lease", r.lease))
	r.cron.Start()

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.log.Info("Lock reaper stopped")
}

// Sweep clears expired locks once and returns how many were cleared.
func (r *Reaper) Sweep(ctx context.Context) int64 {
	n, err := r.repo.ReclaimExpired(ctx, r.lease)
	if err != nil {
		r.log.Error("Reclaiming expired locks failed", logger.Error(err))
		return 0
	}
	if n > 0 {
		r.log.Warn("Reclaimed expired locks",
			logger.Int64("count", n),
			logger.Duration("lease", r.lease),
		)
		if r.recorder != nil {
			r.recorder.LocksReclaimed(n)
		}
	}
	return n
}
