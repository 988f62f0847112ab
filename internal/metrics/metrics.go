// Package metrics exposes Prometheus counters for OCR runs on a private
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry *prometheus.Registry

	itemsTotal       *prometheus.CounterVec
	itemDuration     *prometheus.HistogramVec
	itemsInFlight    prometheus.Gauge
	upstreamTotal    *prometheus.CounterVec
	rateLimitRetries *prometheus.CounterVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()

	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dococr",
			Name:      "items_total",
			Help:      "Processed items by operation and status.",
		},
		[]string{"operation", "status"},
	)
	itemDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dococr",
			Name:      "item_duration_seconds",
			Help:      "End-to-end item processing time in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)
	itemsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dococr",
			Name:      "items_in_flight",
			Help:      "Items currently being processed.",
		},
	)
	upstreamTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dococr",
			Name:      "upstream_requests_total",
			Help:      "Provider calls by call name and outcome.",
		},
		[]string{"call", "outcome"},
	)
	rateLimitRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dococr",
			Name:      "rate_limit_retries_total",
			Help:      "Backoff retries caused by provider rate limiting.",
		},
		[]string{"call"},
	)

	registry.MustRegister(itemsTotal, itemDuration, itemsInFlight, upstreamTotal, rateLimitRetries)

	return &Recorder{
		registry:         registry,
		itemsTotal:       itemsTotal,
		itemDuration:     itemDuration,
		itemsInFlight:    itemsInFlight,
		upstreamTotal:    upstreamTotal,
		rateLimitRetries: rateLimitRetries,
	}
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) StartItem() {
	if r == nil {
		return
	}
	r.itemsInFlight.Inc()
}

func (r *Recorder) FinishItem(operation string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.itemsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	r.itemsTotal.WithLabelValues(operation, status).Inc()
	r.itemDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *Recorder) UpstreamRequest(call, outcome string) {
	if r == nil {
		return
	}
	r.upstreamTotal.WithLabelValues(call, outcome).Inc()
}

func (r *Recorder) RateLimitRetry(call string) {
	if r == nil {
		return
	}
	r.rateLimitRetries.WithLabelValues(call).Inc()
}
