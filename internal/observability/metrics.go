// Package observability holds the Prometheus metrics of the API server.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"surfcast/internal/types"
)

const namespace = "surfcast"

// Metrics holds the Prometheus counters and histograms of the API server. It
// satisfies the forecast service's metrics hook.
type Metrics struct {
	// Forecast metrics.
	ForecastFetches       *prometheus.CounterVec   // labels: source, outcome={success,pending,exhausted,error}
	ForecastFetchDuration *prometheus.HistogramVec // labels: source
	ForecastCache         *prometheus.CounterVec   // labels: tier={memory,store}, result={hit,miss}

	// HTTP metrics.
	HTTPRequests        *prometheus.CounterVec   // labels: method, route, status
	HTTPRequestDuration *prometheus.HistogramVec // labels: method, route
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newMetrics()
	reg.MustRegister(
		m.ForecastFetches,
		m.ForecastFetchDuration,
		m.ForecastCache,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ForecastFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_fetches_total",
			Help:      "Forecast fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		ForecastFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_fetch_duration_seconds",
			Help:      "Duration of a single forecast fetch attempt, browser session included.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"source"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method and route pattern.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"method", "route"}),
	}
}

// FetchCompleted records one forecast fetch attempt.
func (m *Metrics) FetchCompleted(source types.SourceID, outcome string, elapsed time.Duration) {
	m.ForecastFetches.WithLabelValues(string(source), outcome).Inc()
	m.ForecastFetchDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// CacheLookup records a forecast cache hit or miss.
func (m *Metrics) CacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ForecastCache.WithLabelValues(tier, result).Inc()
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
