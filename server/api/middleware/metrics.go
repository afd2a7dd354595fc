package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/interpolation-target/metrics"
)

// Metrics counts requests and observes their latency per route, labelled by
// route name so path parameters do not explode cardinality.
func Metrics(reg prometheus.Registerer) func(next http.Handler) http.Handler {
	r := metrics.NewComponentRegistryWith(reg, "intrp", "http", nil)
	requests := r.NewCounterVec(prometheus.CounterOpts{
		Name: "requests_total",
		Help: "HTTP requests served",
	}, []string{"route", "method", "code"})
	latency := r.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: metrics.DurationBuckets,
	}, []string{"route", "method"})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			route, req := routeSink(req)
			next.ServeHTTP(rec, req)

			requests.WithLabelValues(*route, req.Method, strconv.Itoa(rec.status)).Inc()
			latency.WithLabelValues(*route, req.Method).Observe(time.Since(start).Seconds())
		})
	}
}
