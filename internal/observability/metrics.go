package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/uv-alert-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// AccuWeather call rate per endpoint (geoposition, conditions) and status class.
	UpstreamCallsTotal *prometheus.CounterVec

	// AccuWeather latency per call. Watch for: p99 approaching the 15s per-call timeout.
	UpstreamDuration *prometheus.HistogramVec

	// Upstream failures by category. quota_exhausted means the daily API allowance is gone.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Pipeline outcomes by status (success, quota_exhausted, failed).
	PipelineRunsTotal *prometheus.CounterVec

	// Pipeline failures by step.
	PipelineFailuresTotal *prometheus.CounterVec

	// End-to-end pipeline latency (both upstream calls plus parsing).
	PipelineDuration prometheus.Histogram

	// Runs whose outcome was discarded because a newer run started.
	PipelineSupersededTotal prometheus.Counter

	// Synchronous /uv requests that joined a run already in flight for the same coordinates.
	PipelineCoalescedTotal prometheus.Counter

	// Classified readings by UV risk category.
	UVCategoryTotal *prometheus.CounterVec

	// Latest UV index delivered to the session listener (-1 when unknown).
	UVIndexGauge prometheus.Gauge

	// Reminder notifications armed.
	RemindersArmedTotal prometheus.Counter

	// Circuit breaker transitions and current state (0 closed, 1 open, 2 half_open).
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
	CircuitBreakerState            *prometheus.GaugeVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of AccuWeather API calls",
		},
		[]string{"endpoint", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "AccuWeather API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"endpoint", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "AccuWeather API failures by error category",
		},
		[]string{"endpoint", "category"},
	)
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineRunsTotal",
			Help: "Conditions pipeline runs by outcome status",
		},
		[]string{"status"},
	)
	PipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineFailuresTotal",
			Help: "Conditions pipeline failures by failing step",
		},
		[]string{"step"},
	)
	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipelineDurationSeconds",
			Help:    "Conditions pipeline end-to-end latency in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 15, 30},
		},
	)
	PipelineSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipelineSupersededTotal",
			Help: "Pipeline outcomes discarded because a newer run was started",
		},
	)
	PipelineCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipelineCoalescedTotal",
			Help: "Synchronous runs served by joining an in-flight run for the same coordinates",
		},
	)
	UVCategoryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uvCategoryTotal",
			Help: "Classified readings by UV risk category",
		},
		[]string{"category"},
	)
	UVIndexGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uvIndexCurrent",
			Help: "Most recent UV index delivered to the session (-1 when unknown)",
		},
	)
	RemindersArmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remindersArmedTotal",
			Help: "Daily UV reminder notifications armed",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half_open)",
		},
		[]string{"component"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal,
		PipelineRunsTotal, PipelineFailuresTotal, PipelineDuration, PipelineSupersededTotal, PipelineCoalescedTotal,
		UVCategoryTotal, UVIndexGauge, RemindersArmedTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
		RateLimitDeniedTotal,
	)
}

// RegisterTrafficGauges exposes the sliding-window pipeline error rate used by /health.
// Call from main after config load with the degraded window.
func RegisterTrafficGauges(window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "pipelineErrorsInWindow",
					Help: "Failed pipeline runs in the degraded window",
				},
				func() float64 {
					errs, _ := traffic.ErrorRate(window)
					return float64(errs)
				},
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the degraded window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordCircuitBreakerTransition records a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
