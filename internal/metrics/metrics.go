// Package metrics exposes the primary's Prometheus counters/gauges: job
// throughput, dispatcher assignment latency, and worker fleet size. Wired
// into internal/app and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	JobsSubmitted   *prometheus.CounterVec
	JobsCompleted   *prometheus.CounterVec
	DispatchedTotal prometheus.Counter
	DispatchPass    prometheus.Histogram
	WorkersOnline   prometheus.Gauge
	QueueDepth      prometheus.Gauge
}

// New registers every metric against the default registerer; calling it
// more than once against the same registry will panic, so the caller
// (internal/app) must construct exactly one instance per process.
func New() *Metrics {
	return &Metrics{
		JobsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ansiblecluster_jobs_submitted_total",
			Help: "Jobs submitted to the queue, labeled by job_type.",
		}, []string{"job_type"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ansiblecluster_jobs_completed_total",
			Help: "Jobs that reached a terminal state, labeled by status.",
		}, []string{"status"}),
		DispatchedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ansiblecluster_dispatcher_assignments_total",
			Help: "Jobs assigned to a worker by the dispatcher.",
		}),
		DispatchPass: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ansiblecluster_dispatcher_pass_seconds",
			Help:    "Wall time of one dispatcher RunOnce pass.",
			Buckets: prometheus.DefBuckets,
		}),
		WorkersOnline: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ansiblecluster_workers_online",
			Help: "Number of workers currently reporting an online status.",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ansiblecluster_queue_depth",
			Help: "Number of jobs currently queued.",
		}),
	}
}
