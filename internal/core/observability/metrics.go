package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"upstream", "op"},
	)

	upstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Upstream calls that failed after retries.",
		},
		[]string{"upstream", "op"},
	)

	upstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Retried upstream attempts.",
		},
		[]string{"upstream"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_breaker_state",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open).",
		},
		[]string{"upstream"},
	)

	quotaWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_quota_wait_seconds",
			Help:    "Time spent waiting for an upstream call slot.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"quota"},
	)

	fanoutTaskSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fanout_task_duration_seconds",
			Help:    "Duration of parallel fetch tasks.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"task", "outcome"},
	)

	pivotDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pivot_duplicate_values_total",
			Help: "Indicator values dropped because the same geography and indicator appeared twice.",
		},
	)

	featuresServed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geojson_features_served",
			Help:    "Number of features per GeoJSON response.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"view"},
	)

	usageEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_events_dropped_total",
			Help: "Usage events dropped because the publish queue was full.",
		},
	)
)

// Collectors returns every collector of this package so a private registry
// can expose them next to the runtime collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		upstreamErrorsTotal,
		upstreamRetriesTotal,
		breakerState,
		quotaWaitSeconds,
		fanoutTaskSeconds,
		pivotDuplicatesTotal,
		featuresServed,
		usageEventsDropped,
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstream(upstream, op string, err error, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, op).Observe(durationSeconds)
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(upstream, op).Inc()
	}
}

func IncUpstreamRetry(upstream string) {
	upstreamRetriesTotal.WithLabelValues(upstream).Inc()
}

func SetBreakerState(upstream string, state int) {
	breakerState.WithLabelValues(upstream).Set(float64(state))
}

func ObserveQuotaWait(name string, durationSeconds float64) {
	quotaWaitSeconds.WithLabelValues(name).Observe(durationSeconds)
}

func ObserveFanoutTask(task string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	fanoutTaskSeconds.WithLabelValues(task, outcome).Observe(durationSeconds)
}

func AddPivotDuplicates(n int) {
	if n > 0 {
		pivotDuplicatesTotal.Add(float64(n))
	}
}

func ObserveFeatures(view string, n int) {
	featuresServed.WithLabelValues(view).Observe(float64(n))
}

func IncUsageDropped() {
	usageEventsDropped.Inc()
}
