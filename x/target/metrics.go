package target

import (
	"time"

	"github.com/compose-network/interpolation-target/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all coordinator metrics
type Metrics struct {
	PointsReceived     prometheus.Counter
	PointsDropped      *prometheus.CounterVec
	LateDeliveries     prometheus.Counter
	EpochsCompleted    *prometheus.CounterVec
	PointRequests      *prometheus.CounterVec
	CleanUpsSent       prometheus.Counter
	GateWaits          prometheus.Counter
	GateChecks         prometheus.Counter
	ProtocolViolations prometheus.Counter
	ActiveEpochs       prometheus.Gauge
	PendingEpochs      prometheus.Gauge
	CompletionLatency  prometheus.Histogram
}

// NewMetrics creates coordinator metrics labelled with the target name.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	r := metrics.NewComponentRegistryWith(reg, "intrp", "target", prometheus.Labels{"target": name})

	return &Metrics{
		PointsReceived: r.NewCounter(prometheus.CounterOpts{
			Name: "points_received_total",
			Help: "Samples written into epoch buffers",
		}),
		PointsDropped: r.NewCounterVec(prometheus.CounterOpts{
			Name: "points_dropped_total",
			Help: "Samples discarded on receipt",
		}, []string{"reason"}),
		LateDeliveries: r.NewCounter(prometheus.CounterOpts{
			Name: "late_deliveries_total",
			Help: "Receives for epochs that were already completed",
		}),
		EpochsCompleted: r.NewCounterVec(prometheus.CounterOpts{
			Name: "epochs_completed_total",
			Help: "Epochs whose completion callback fired",
		}, []string{"decision"}),
		PointRequests: r.NewCounterVec(prometheus.CounterOpts{
			Name: "point_requests_total",
			Help: "RequestPoints messages sent",
		}, []string{"kind"}),
		CleanUpsSent: r.NewCounter(prometheus.CounterOpts{
			Name: "cleanups_sent_total",
			Help: "CleanUp messages sent",
		}),
		GateWaits: r.NewCounter(prometheus.CounterOpts{
			Name: "gate_waits_total",
			Help: "Times a pending epoch had to wait for the readiness gate",
		}),
		GateChecks: r.NewCounter(prometheus.CounterOpts{
			Name: "gate_checks_total",
			Help: "Readiness re-checks triggered by gate notifications",
		}),
		ProtocolViolations: r.NewCounter(prometheus.CounterOpts{
			Name: "protocol_violations_total",
			Help: "Fatal protocol violations",
		}),
		ActiveEpochs: r.NewGauge(prometheus.GaugeOpts{
			Name: "active_epochs",
			Help: "Epochs currently requesting or accumulating points",
		}),
		PendingEpochs: r.NewGauge(prometheus.GaugeOpts{
			Name: "pending_epochs",
			Help: "Epochs waiting to become active",
		}),
		CompletionLatency: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "completion_latency_seconds",
			Help:    "Time from dispatch to completion callback",
			Buckets: metrics.DurationBuckets,
		}),
	}
}

// RecordCompletion records a fired completion callback.
func (m *Metrics) RecordCompletion(decision CleanupDecision, latency time.Duration) {
	m.EpochsCompleted.WithLabelValues(decision.String()).Inc()
	m.CompletionLatency.Observe(latency.Seconds())
}

// RecordQueues updates the queue gauges.
func (m *Metrics) RecordQueues(active, pending int) {
	m.ActiveEpochs.Set(float64(active))
	m.PendingEpochs.Set(float64(pending))
}
