package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics exports scheduler activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	delay    *prometheus.GaugeVec
	inFlight prometheus.Gauge
	pending  prometheus.Gauge
}

// NewMetrics registers the scheduler collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskd",
			Name:      "job_runs_total",
			Help:      "Completed job runs by result.",
		}, []string{"job", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskd",
			Name:      "job_duration_seconds",
			Help:      "Wall time of a single job run.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"job"}),
		delay: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskd",
			Name:      "job_next_delay_seconds",
			Help:      "Delay the job was re-armed with after its last run.",
		}, []string{"job"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskd",
			Name:      "jobs_in_flight",
			Help:      "Job runs currently executing.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskd",
			Name:      "timers_pending",
			Help:      "Armed timers waiting to fire.",
		}),
	}
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) runFinished(job, result string, elapsed, delay time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.runs.WithLabelValues(job, result).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	m.delay.WithLabelValues(job).Set(delay.Seconds())
}

// runsAbandoned releases the in-flight count of runs whose completion the
// loop will no longer read.
func (m *Metrics) runsAbandoned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.inFlight.Sub(float64(n))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
