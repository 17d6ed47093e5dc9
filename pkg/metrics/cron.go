package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron run outcomes.
const (
	CronRunOK     = "ok"
	CronRunFailed = "failed"
)

// Reasons a cron cycle did not run any job.
const (
	CronSkipLeaseHeld  = "lease_held"
	CronSkipLeaseError = "lease_error"
)

// CronJobMetrics tracks the reservation sweeper and outbox cleanup runs.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	items    *prometheus.CounterVec
	skipped  *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rq_cron_job_runs_total",
			Help: "Cron job runs by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rq_cron_job_duration_seconds",
			Help:    "Cron job wall time.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rq_cron_job_items_total",
			Help: "Rows a cron job expired or purged.",
		}, []string{"job"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rq_cron_cycles_skipped_total",
			Help: "Cron cycles that ran no job.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.runs, m.duration, m.items, m.skipped)
	return m
}

// ObserveRun records one job run. Items count even when the run failed
// part-way, since expired orders stay expired.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, items int, err error) {
	if c == nil || c.runs == nil {
		return
	}
	outcome := CronRunOK
	if err != nil {
		outcome = CronRunFailed
	}
	c.runs.WithLabelValues(job, outcome).Inc()
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if items > 0 {
		c.items.WithLabelValues(job).Add(float64(items))
	}
}

func (c *CronJobMetrics) IncSkipped(reason string) {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.WithLabelValues(reason).Inc()
}
