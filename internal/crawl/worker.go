// Package crawl runs the workers that drain the ingestion queue.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/domain-profiler/internal/analysis"
	"github.com/jonesrussell/domain-profiler/internal/classify"
	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/domain"
	"github.com/jonesrussell/domain-profiler/internal/logger"
	"github.com/jonesrussell/domain-profiler/internal/retry"
)

// Processing stages reported to Metrics.
const (
	stageFetch    = "fetch"
	stageClassify = "classify"
	stageFinalize = "finalize"
)

const reasonClassification = "classification failed"

// Queue is the part of the ingestion repository the workers use.
type Queue interface {
	ClaimOne(ctx context.Context) (*domain.IngestionEntry, error)
	MarkProcessing(ctx context.Context, entry *domain.IngestionEntry) error
	Finalize(ctx context.Context, entry *domain.IngestionEntry, outcome domain.Outcome) error
}

// Analyzer fetches and extracts a domain.
type Analyzer interface {
	Analyze(ctx context.Context, domainName string) (*analysis.Document, error)
}

// Metrics receives worker events. *metrics.Metrics implements it.
type Metrics interface {
	ClaimSucceeded()
	QueueEmpty()
	StoreFailed(operation string)
	Finalized(status string)
	FinalizeRejected(reason string)
	PanicRecovered()
	WorkerStarted()
	WorkerStopped()
	ObserveStage(stage string, d time.Duration)
}

// Config configures the worker pool.
type Config struct {
	Workers         int
	MaxClaims       int
	ExitWhenEmpty   bool
	MarkProcessing  bool
	IdleDelay       time.Duration
	ErrorDelay      time.Duration
	FetchTimeout    time.Duration
	ClassifyTimeout time.Duration
	FinalizeTimeout time.Duration
	FinalizeRetries int
}

// ConfigFrom maps the application config onto the pool settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Workers:         cfg.Worker.Count,
		MaxClaims:       cfg.Worker.MaxClaims,
		ExitWhenEmpty:   cfg.Worker.ExitWhenEmpty,
		MarkProcessing:  cfg.Worker.MarkProcessing,
		IdleDelay:       cfg.Worker.IdleDelay,
		ErrorDelay:      cfg.Worker.ErrorDelay,
		FetchTimeout:    cfg.Fetch.Timeout,
		ClassifyTimeout: cfg.Classifier.Timeout,
		FinalizeTimeout: cfg.Worker.FinalizeTimeout,
		FinalizeRetries: cfg.Worker.FinalizeRetries,
	}
}

// Summary counts what a pool did during one Start call.
type Summary struct {
	Claimed   int64
	Succeeded int64
	Failed    int64
	Skipped   int64
	Rejected  int64
}

// Option customizes a WorkerPool.
type Option func(*WorkerPool)

// WithMetrics reports worker events to m.
func WithMetrics(m Metrics) Option {
	return func(wp *WorkerPool) { wp.metrics = m }
}

// WithPolicy skips domains for which p returns a reason.
func WithPolicy(p Policy) Option {
	return func(wp *WorkerPool) { wp.policy = p }
}

// WithFinalizeRetry overrides the backoff used around Finalize.
func WithFinalizeRetry(cfg retry.Config) Option {
	return func(wp *WorkerPool) { wp.finalizeRetry = cfg }
}

// WorkerPool runs independent workers. They coordinate only through the
// queue, apart from the optional shared claim budget.
type WorkerPool struct {
	queue         Queue
	analyzer      Analyzer
	classifier    classify.Classifier
	policy        Policy
	metrics       Metrics
	log           logger.Logger
	cfg           Config
	finalizeRetry retry.Config

	claims    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	rejected  atomic.Int64
}

// NewWorkerPool creates a pool. Zero delays and timeouts fall back to small defaults.
func NewWorkerPool(
	queue Queue,
	analyzer Analyzer,
	classifier classify.Classifier,
	log logger.Logger,
	cfg Config,
	opts ...Option,
) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 30 * time.Second
	}

	finalizeRetry := retry.DefaultConfig()
	if cfg.FinalizeRetries > 0 {
		finalizeRetry.MaxAttempts = cfg.FinalizeRetries
	}

	wp := &WorkerPool{
		queue:         queue,
		analyzer:      analyzer,
		classifier:    classifier,
		metrics:       nopMetrics{},
		log:           log,
		cfg:           cfg,
		finalizeRetry: finalizeRetry,
	}
	for _, opt := range opts {
		opt(wp)
	}
	wp.finalizeRetry.IsRetryable = skipStoreVerdicts(wp.finalizeRetry.IsRetryable)
	return wp
}

// skipStoreVerdicts wraps a retry predicate so lock loss and terminal
// conflicts are never retried, whatever their message says.
func skipStoreVerdicts(retryable func(error) bool) func(error) bool {
	if retryable == nil {
		retryable = retry.IsTransient
	}
	return func(err error) bool {
		if errors.Is(err, database.ErrLockLost) || errors.Is(err, database.ErrAlreadyFinalized) {
			return false
		}
		return retryable(err)
	}
}

// Start launches the workers and blocks until all of them have returned.
// Cancelling ctx stops new claims; entries already claimed are still
// finalized.
func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.log.Info("Starting worker pool",
		logger.Int("workers", wp.cfg.Workers),
		logger.Int("max_claims", wp.cfg.MaxClaims),
		logger.Bool("exit_when_empty", wp.cfg.ExitWhenEmpty),
	)

	var wg sync.WaitGroup
	for i := range wp.cfg.Workers {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wp.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s := wp.Summary()
	wp.log.Info("Worker pool stopped",
		logger.Int64("claimed", s.Claimed),
		logger.Int64("succeeded", s.Succeeded),
		logger.Int64("failed", s.Failed),
		logger.Int64("skipped", s.Skipped),
		logger.Int64("rejected", s.Rejected),
	)
	return nil
}

// Summary returns the counters accumulated so far.
func (wp *WorkerPool) Summary() Summary {
	return Summary{
		Claimed:   wp.claims.Load(),
		Succeeded: wp.succeeded.Load(),
		Failed:    wp.failed.Load(),
		Skipped:   wp.skipped.Load(),
		Rejected:  wp.rejected.Load(),
	}
}

func (wp *WorkerPool) worker(ctx context.Context, workerID int) {
	log := wp.log.With(logger.Int("worker_id", workerID))
	log.Debug("Worker started")
	wp.metrics.WorkerStarted()
	defer wp.metrics.WorkerStopped()

	for {
		if ctx.Err() != nil {
			log.Debug("Worker stopping")
			return
		}
		if !wp.reserveClaim() {
			log.Debug("Claim budget exhausted")
			return
		}
		if stop := wp.claimAndProcess(ctx, log); stop {
			return
		}
	}
}

// claimAndProcess claims one entry and drives it to finalize. It returns true
// when the worker should exit.
func (wp *WorkerPool) claimAndProcess(ctx context.Context, log logger.Logger) bool {
	entry, err := wp.queue.ClaimOne(ctx)
	if errors.Is(err, database.ErrQueueEmpty) {
		wp.releaseClaim()
		wp.metrics.QueueEmpty()
		if wp.cfg.ExitWhenEmpty {
			log.Debug("Queue empty, exiting")
			return true
		}
		return wp.sleepOrCancel(ctx, wp.cfg.IdleDelay)
	}
	if err != nil {
		wp.releaseClaim()
		if ctx.Err() != nil {
			return true
		}
		wp.metrics.StoreFailed("claim")
		log.Error("Claim failed", logger.Error(err))
		return wp.sleepOrCancel(ctx, wp.cfg.ErrorDelay)
	}

	wp.metrics.ClaimSucceeded()
	wp.process(ctx, log.With(logger.String("domain", entry.DomainName)), entry)
	return false
}

// process runs one claimed entry to completion. Analysis runs on a context
// detached from ctx so an in-flight entry is never abandoned on shutdown;
// each stage is bounded by its own timeout instead.
func (wp *WorkerPool) process(ctx context.Context, log logger.Logger, entry *domain.IngestionEntry) {
	base := context.WithoutCancel(ctx)

	var outcome domain.Outcome
	skip := wp.skipReason(entry.DomainName)
	switch {
	case skip != "":
		log.Info("Skipping domain", logger.String("reason", skip))
		outcome = domain.SkippedOutcome(skip)
	case !wp.markProcessing(base, log, entry):
		// The record is already terminal; finalize only drops the queue entry.
		outcome = domain.SkippedOutcome(database.ErrAlreadyFinalized.Error())
	default:
		outcome = wp.analyze(base, log, entry.DomainName)
	}

	wp.finalize(base, log, entry, outcome)
}

func (wp *WorkerPool) skipReason(domainName string) string {
	if wp.policy == nil {
		return ""
	}
	return wp.policy.SkipReason(domainName)
}

// markProcessing writes the optional processing marker. It returns false only
// when the record is already terminal.
func (wp *WorkerPool) markProcessing(ctx context.Context, log logger.Logger, entry *domain.IngestionEntry) bool {
	if !wp.cfg.MarkProcessing {
		return true
	}

	err := wp.queue.MarkProcessing(ctx, entry)
	switch {
	case err == nil:
		return true
	case errors.Is(err, database.ErrAlreadyFinalized):
		log.Warn("Record already terminal, dropping queue entry")
		return false
	default:
		wp.metrics.StoreFailed("mark_processing")
		log.Warn("Could not write processing marker", logger.Error(err))
		return true
	}
}

// analyze fetches and classifies a domain. Every failure, panics included,
// becomes a failed outcome.
func (wp *WorkerPool) analyze(ctx context.Context, log logger.Logger, domainName string) (outcome domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			wp.metrics.PanicRecovered()
			log.Error("Recovered panic while analyzing domain", logger.Any("panic", r))
			outcome = domain.FailedOutcome(fmt.Sprintf("panic: %v", r), false)
		}
	}()

	doc, err := wp.fetch(ctx, domainName)
	if err != nil {
		reason := analysis.Diagnostic(err)
		log.Info("Fetch failed", logger.String("reason", reason), logger.Error(err))
		return domain.FailedOutcome(reason, false)
	}

	sem, err := wp.classify(ctx, doc)
	if err != nil {
		log.Warn("Classification failed", logger.Error(err))
		return domain.FailedOutcome(reasonClassification, doc.HasAboutPage)
	}

	return domain.SuccessOutcome(sem, doc.HasAboutPage)
}

func (wp *WorkerPool) fetch(ctx context.Context, domainName string) (*analysis.Document, error) {
	fetchCtx, cancel := withOptionalTimeout(ctx, wp.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	defer func() { wp.metrics.ObserveStage(stageFetch, time.Since(start)) }()

	return wp.analyzer.Analyze(fetchCtx, domainName)
}

func (wp *WorkerPool) classify(ctx context.Context, doc *analysis.Document) (domain.Semantics, error) {
	classifyCtx, cancel := withOptionalTimeout(ctx, wp.cfg.ClassifyTimeout)
	defer cancel()

	start := time.Now()
	defer func() { wp.metrics.ObserveStage(stageClassify, time.Since(start)) }()

	return wp.classifier.Classify(classifyCtx, doc)
}

// finalize writes the outcome, retrying transient store errors. Lock loss and
// terminal conflicts are final answers from the store, not failures to retry.
func (wp *WorkerPool) finalize(ctx context.Context, log logger.Logger, entry *domain.IngestionEntry, outcome domain.Outcome) {
	finalizeCtx, cancel := context.WithTimeout(ctx, wp.cfg.FinalizeTimeout)
	defer cancel()

	start := time.Now()
	err := retry.Retry(finalizeCtx, wp.finalizeRetry, func() error {
		return wp.queue.Finalize(finalizeCtx, entry, outcome)
	})
	wp.metrics.ObserveStage(stageFinalize, time.Since(start))

	switch {
	case err == nil:
		wp.countOutcome(outcome.Status)
		wp.metrics.Finalized(outcome.Status.String())
		log.Info("Domain finalized",
			logger.String("status", outcome.Status.String()),
			logger.Bool("has_about_page", outcome.HasAboutPage),
		)
	case errors.Is(err, database.ErrLockLost):
		wp.rejected.Add(1)
		wp.metrics.FinalizeRejected("lock_lost")
		log.Warn("Lock lost before finalize, outcome dropped",
			logger.String("status", outcome.Status.String()))
	case errors.Is(err, database.ErrAlreadyFinalized):
		wp.rejected.Add(1)
		wp.metrics.FinalizeRejected("already_finalized")
		log.Warn("Record already terminal, outcome dropped",
			logger.String("status", outcome.Status.String()))
	default:
		wp.metrics.StoreFailed("finalize")
		log.Error("Finalize failed, entry stays locked",
			logger.String("status", outcome.Status.String()),
			logger.Error(err),
		)
	}
}

func (wp *WorkerPool) countOutcome(status domain.CrawlStatus) {
	switch status {
	case domain.StatusSuccess:
		wp.succeeded.Add(1)
	case domain.StatusFailed:
		wp.failed.Add(1)
	case domain.StatusSkipped:
		wp.skipped.Add(1)
	}
}

// reserveClaim takes one unit of the claim budget. An unbounded pool always
// succeeds.
func (wp *WorkerPool) reserveClaim() bool {
	if wp.cfg.MaxClaims <= 0 {
		wp.claims.Add(1)
		return true
	}
	for {
		n := wp.claims.Load()
		if n >= int64(wp.cfg.MaxClaims) {
			return false
		}
		if wp.claims.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (wp *WorkerPool) releaseClaim() {
	wp.claims.Add(-1)
}

// sleepOrCancel waits for d and reports whether ctx ended first.
func (wp *WorkerPool) sleepOrCancel(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() != nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type nopMetrics struct{}

func (nopMetrics) ClaimSucceeded()                    {}
func (nopMetrics) QueueEmpty()                        {}
func (nopMetrics) StoreFailed(string)                 {}
func (nopMetrics) Finalized(string)                   {}
func (nopMetrics) FinalizeRejected(string)            {}
func (nopMetrics) PanicRecovered()                    {}
func (nopMetrics) WorkerStarted()                     {}
func (nopMetrics) WorkerStopped()                     {}
func (nopMetrics) ObserveStage(string, time.Duration) {}
