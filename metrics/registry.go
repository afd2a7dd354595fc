package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DurationBuckets covers sub-millisecond to minute-long waits.
	DurationBuckets = []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60}
	// CountBuckets is used for batch and point counts.
	CountBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}
)

// ComponentRegistry creates collectors sharing a namespace, subsystem and const labels.
type ComponentRegistry struct {
	namespace   string
	subsystem   string
	constLabels prometheus.Labels
	factory     promauto.Factory
}

// NewComponentRegistry registers against prometheus.DefaultRegisterer.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return NewComponentRegistryWith(prometheus.DefaultRegisterer, namespace, subsystem, nil)
}

// NewComponentRegistryWith registers against reg. A nil reg creates unregistered collectors.
func NewComponentRegistryWith(
	reg prometheus.Registerer,
	namespace, subsystem string,
	constLabels prometheus.Labels,
) *ComponentRegistry {
	return &ComponentRegistry{
		namespace:   namespace,
		subsystem:   subsystem,
		constLabels: constLabels,
		factory:     promauto.With(reg),
	}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = r.namespace, r.subsystem, r.labels(opts.ConstLabels)
	return r.factory.NewCounter(opts)
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = r.namespace, r.subsystem, r.labels(opts.ConstLabels)
	return r.factory.NewCounterVec(opts, labels)
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = r.namespace, r.subsystem, r.labels(opts.ConstLabels)
	return r.factory.NewGauge(opts)
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = r.namespace, r.subsystem, r.labels(opts.ConstLabels)
	return r.factory.NewGaugeVec(opts, labels)
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = r.namespace, r.subsystem, r.labels(opts.ConstLabels)
	return r.factory.NewHistogram(opts)
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem, opts.ConstLabels = r.namespace, r.subsystem, r.labels(opts.ConstLabels)
	return r.factory.NewHistogramVec(opts, labels)
}

func (r *ComponentRegistry) labels(extra prometheus.Labels) prometheus.Labels {
	if len(r.constLabels) == 0 {
		return extra
	}
	out := make(prometheus.Labels, len(r.constLabels)+len(extra))
	for k, v := range r.constLabels {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
