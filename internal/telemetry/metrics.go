package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for command throughput/latency,
// slow-command occurrences, queue depth, and graph/cache/DLQ size gauges.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	SlowCommands    *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	PrincipalCount  *prometheus.GaugeVec
	CacheHitRatio   prometheus.Gauge
	DLQDepth        *prometheus.GaugeVec
}

// NewMetrics constructs and registers every collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acs_commands_total",
			Help: "Commands processed by the executor, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acs_command_duration_seconds",
			Help:    "Time spent handling one command inside the executor.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		SlowCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acs_slow_commands_total",
			Help: "Commands whose handling exceeded the slow-command threshold.",
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "acs_command_queue_depth",
			Help: "Number of envelopes currently buffered in the executor channel.",
		}),
		PrincipalCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acs_principal_count",
			Help: "Number of principals held in the in-memory graph, by kind.",
		}, []string{"kind"}),
		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "acs_cache_hit_ratio",
			Help: "Rolling entity cache hit ratio.",
		}),
		DLQDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acs_dlq_depth",
			Help: "Pending dead-letter entries, by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.CommandsTotal, m.CommandDuration, m.SlowCommands, m.QueueDepth, m.PrincipalCount, m.CacheHitRatio, m.DLQDepth)

	return m
}

// ObserveCommand records one completed command's outcome and duration.
func (m *Metrics) ObserveCommand(kind, outcome string, elapsed time.Duration) {
	m.CommandsTotal.WithLabelValues(kind, outcome).Inc()
	m.CommandDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
