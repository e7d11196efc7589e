package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine metrics
var (
	// Connector calls by outcome status (success, failure, timeout)
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workyterm",
			Name:      "provider_calls_total",
			Help:      "Total connector invocations by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "workyterm",
			Name:      "provider_call_duration_seconds",
			Help:      "Connector invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// Cache lookups by result (hit, miss, error)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workyterm",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"},
	)

	CouncilRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "workyterm",
			Name:      "council_rounds",
			Help:      "Deliberation rounds executed per council session",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "workyterm",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	// Provider health gauge (1=reachable, 0=unreachable)
	ProviderUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "workyterm",
			Name:      "provider_up",
			Help:      "Provider probe result (1=reachable, 0=unreachable)",
		},
		[]string{"provider"},
	)
)

// RecordCall records one connector invocation.
func RecordCall(provider, status string, elapsed time.Duration) {
	ProviderCallsTotal.WithLabelValues(provider, status).Inc()
	ProviderCallDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordCacheLookup records a cache lookup result.
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordRequest records a finished request.
func RecordRequest(status string, elapsed time.Duration) {
	RequestDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RecordProbe records a provider probe result.
func RecordProbe(provider string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	ProviderUp.WithLabelValues(provider).Set(v)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
