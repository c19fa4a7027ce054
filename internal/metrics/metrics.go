// Package metrics exposes Prometheus collectors for gradient descent runs.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/gdopt/internal/optimization"
)

const namespace = "gdopt"

// Run outcomes used as the status label of gdopt_runs_total
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Collector holds the metrics shared by all runs of a process.
type Collector struct {
	runs     *prometheus.CounterVec
	steps    prometheus.Counter
	loss     *prometheus.GaugeVec
	active   prometheus.Gauge
	duration prometheus.Histogram
}

// NewCollector creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Optimization runs finished, by outcome.",
		}, []string{"status"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Gradient descent steps completed across all runs.",
		}),
		loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loss",
			Help:      "Most recent loss of each running optimization.",
		}, []string{"job"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Optimization runs currently in progress.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of optimization runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(c.runs, c.steps, c.loss, c.active, c.duration)
	}
	return c
}

// Reporter returns a progress reporter that records one run under the job label.
func (c *Collector) Reporter(job string) optimization.ProgressReporter {
	return &reporter{c: c, job: job}
}

// RecordUnstarted counts a run that ended before its first step, such as a
// job cancelled while waiting for a slot.
func (c *Collector) RecordUnstarted(err error) {
	c.runs.WithLabelValues(StatusFor(err)).Inc()
}

// StatusFor maps the error that ended a run to its status label.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

type reporter struct {
	c     *Collector
	job   string
	start time.Time
}

func (r *reporter) Start(int, optimization.Shape) {
	r.start = time.Now()
	r.c.active.Inc()
}

func (r *reporter) Step(_ int, loss float64) {
	r.c.steps.Inc()
	r.c.loss.WithLabelValues(r.job).Set(loss)
}

func (r *reporter) Finish(err error) {
	r.c.active.Dec()
	r.c.loss.DeleteLabelValues(r.job)
	r.c.runs.WithLabelValues(StatusFor(err)).Inc()
	r.c.duration.Observe(time.Since(r.start).Seconds())
}
