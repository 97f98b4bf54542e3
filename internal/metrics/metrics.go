// Package metrics exposes Prometheus collectors for the prerender gateway.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	renderTotal           *prometheus.CounterVec
	renderDurationSeconds *prometheus.HistogramVec
	cacheResultTotal      *prometheus.CounterVec
	activeRenders         prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		renderTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderx_render_total",
				Help: "Total number of render attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renderx_render_duration_seconds",
				Help:    "Histogram of render durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"host"},
		)

		cacheResultTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderx_cache_result_total",
				Help: "Total number of cache lookups, labeled by hit or miss.",
			},
			[]string{"result"},
		)

		activeRenders = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "renderx_active_renders",
				Help: "Number of renders currently admitted.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderx_http_requests_total",
				Help: "Total number of HTTP requests, labeled by route and HTTP status text.",
			},
			[]string{"route", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renderx_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"route"},
		)
	})
}

// Handler returns an http.Handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRender records one render attempt's outcome and duration.
func ObserveRender(host, outcome string, d time.Duration) {
	renderTotal.WithLabelValues(outcome).Inc()
	renderDurationSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveCacheResult records a cache hit or miss.
func ObserveCacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheResultTotal.WithLabelValues(result).Inc()
}

// SetActiveRenders sets the active-render gauge to the current count.
func SetActiveRenders(n int32) {
	activeRenders.Set(float64(n))
}

// ObserveHTTPRequest records one HTTP request's route, status, and duration.
func ObserveHTTPRequest(route string, code int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, http.StatusText(code)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
