package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and reconciliation runs.
type Metrics struct {
	runs             *prometheus.CounterVec
	failures         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	reconcileRows    *prometheus.CounterVec
	reconcileRetries *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddReconcileRows counts rows of table by outcome: inserted, duplicate, skipped or
// failed.
func (m *Metrics) AddReconcileRows(table, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileRows.WithLabelValues(table, outcome).Add(float64(n))
}

// IncReconcileRetry counts one retried comparison page.
func (m *Metrics) IncReconcileRetry(table string) {
	if m == nil {
		return
	}
	m.reconcileRetries.WithLabelValues(table).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "serapan_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "serapan_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "serapan_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "serapan_reconcile_rows_total",
		Help: "Rows processed by reconciliation grouped by table and outcome.",
	}, []string{"table", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "serapan_reconcile_retries_total",
		Help: "Comparison pages retried after a failed fetch.",
	}, []string{"table"})
	registerer.MustRegister(runs, failures, duration, rows, retries)
	return &Metrics{
		runs:             runs,
		failures:         failures,
		duration:         duration,
		reconcileRows:    rows,
		reconcileRetries: retries,
	}
}
