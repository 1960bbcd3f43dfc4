// Package metrics exports Prometheus metrics for the crawl workers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "domain_profiler"

// Metrics holds the crawl metrics.
type Metrics struct {
	Claims          prometheus.Counter
	IdlePolls       prometheus.Counter
	StoreErrors     *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	FinalizeDropped *prometheus.CounterVec
	Panics          prometheus.Counter
	ActiveWorkers   prometheus.Gauge
	StageDuration   *prometheus.HistogramVec
	Reclaimed       prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the metrics on a fresh registry, so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the metrics on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Claims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Queue entries claimed by workers",
		}),
		IdlePolls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_polls_total",
			Help:      "Claim attempts that found the queue empty",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store operations that failed",
		}, []string{"operation"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Finalized domains by terminal status",
		}, []string{"status"}),
		FinalizeDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_dropped_total",
			Help:      "Finalize writes that were rejected by the store",
		}, []string{"reason"}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Recovered panics while analyzing a domain",
		}),
		ActiveWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Workers currently running",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per processing stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		Reclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reclaimed_locks_total",
			Help:      "Expired locks cleared by the reaper",
		}),
		gatherer: gatherer,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ClaimSucceeded counts one claimed entry.
func (m *Metrics) ClaimSucceeded() { m.Claims.Inc() }

// QueueEmpty counts one empty poll.
func (m *Metrics) QueueEmpty() { m.IdlePolls.Inc() }

// StoreFailed counts a failed store operation.
func (m *Metrics) StoreFailed(operation string) { m.StoreErrors.WithLabelValues(operation).Inc() }

// Finalized counts a committed outcome.
func (m *Metrics) Finalized(status string) { m.Outcomes.WithLabelValues(status).Inc() }

// FinalizeRejected counts an outcome the store refused.
func (m *Metrics) FinalizeRejected(reason string) { m.FinalizeDropped.WithLabelValues(reason).Inc() }

// PanicRecovered counts a recovered panic.
func (m *Metrics) PanicRecovered() { m.Panics.Inc() }

// WorkerStarted and WorkerStopped track running workers.
func (m *Metrics) WorkerStarted() { m.ActiveWorkers.Inc() }

func (m *Metrics) WorkerStopped() { m.ActiveWorkers.Dec() }

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// LocksReclaimed counts locks cleared by the reaper.
func (m *Metrics) LocksReclaimed(n int64) { m.Reclaimed.Add(float64(n)) }
