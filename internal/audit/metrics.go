package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline. Recording is
// fire-and-forget, so these counters are the only place persistence failures
// and drops become visible.
type Metrics struct {
	Recorded        prometheus.Counter
	Rejected        prometheus.Counter
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
	QueueDepth      prometheus.Gauge
	AuthzDenied     prometheus.Counter
}

// NewMetrics registers the pipeline metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on an explicit registerer; tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Recorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_recorded_total",
			Help: "Total number of audit entries accepted into the pipeline",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_rejected_total",
			Help: "Total number of audit drafts rejected for missing required fields",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_dropped_total",
			Help: "Total number of audit entries dropped because the inbox was full",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_audit_persist_failures_total",
			Help: "Total number of audit entry persistence failures",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caretrail_audit_queue_depth",
			Help: "Current number of audit entries waiting to be persisted",
		}),
		AuthzDenied: factory.NewCounter(prometheus.CounterOpts{
			Name: "caretrail_authz_denied_total",
			Help: "Total number of authorization denials",
		}),
	}
}
