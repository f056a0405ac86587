// Package jobmetrics instruments the background worker.
package jobmetrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes recorded by Middleware.
const (
	StatusSuccess = "success"
	StatusRetry   = "retry"
	StatusDropped = "dropped"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
	lag      prometheus.Histogram
	purged   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, or once against
// the default registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Middleware times every task and counts its outcome. A SkipRetry error is
// counted as dropped since asynq archives the task.
func (m *Metrics) Middleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if m == nil {
				return next.ProcessTask(ctx, t)
			}
			start := time.Now()
			err := next.ProcessTask(ctx, t)
			m.runs.WithLabelValues(t.Type(), outcome(err)).Inc()
			m.duration.WithLabelValues(t.Type()).Observe(time.Since(start).Seconds())
			return err
		})
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusDropped
	default:
		return StatusRetry
	}
}

// AuditEventStored counts a persisted session audit event and how long it
// waited between the request and the write.
func (m *Metrics) AuditEventStored(action string, lag time.Duration) {
	if m == nil || action == "" {
		return
	}
	m.events.WithLabelValues(action).Inc()
	if lag >= 0 {
		m.lag.Observe(lag.Seconds())
	}
}

// AuditRowsPurged counts rows removed by the retention job.
func (m *Metrics) AuditRowsPurged(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purged.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "careportal_jobs_total",
		Help: "Task executions by task type and outcome.",
	}, []string{"task", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "careportal_job_duration_seconds",
		Help:    "Task execution time in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "careportal_audit_events_total",
		Help: "Session audit events persisted, by action.",
	}, []string{"action"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "careportal_audit_write_lag_seconds",
		Help:    "Delay between a session event and its audit row.",
		Buckets: []float64{0.05, 0.25, 1, 5, 30, 120, 600},
	})
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "careportal_audit_rows_purged_total",
		Help: "Session audit rows removed by retention.",
	})
	registerer.MustRegister(runs, duration, events, lag, purged)
	return &Metrics{runs: runs, duration: duration, events: events, lag: lag, purged: purged}
}
