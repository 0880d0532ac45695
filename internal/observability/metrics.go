package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream provider call rate by provider and status. Watch for: error vs success ratio per provider.
	ProviderCallsTotal *prometheus.CounterVec

	// Upstream provider latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	ProviderDuration *prometheus.HistogramVec

	// Subscriptions accepted at intake. Watch for: registration volume.
	SubscriptionsStartedTotal prometheus.Counter

	// Alert loops currently running. Watch for: unbounded growth from duplicate registrations.
	SubscriptionsActive prometheus.Gauge

	// Alert loops that exited, by reason. Watch for: city_not_found spikes (bad input), geocode_error (upstream down).
	SubscriptionsTerminatedTotal *prometheus.CounterVec

	// Delivery cycle outcomes. Watch for: sustained non-success results during the alert hour.
	DeliveryCyclesTotal *prometheus.CounterVec

	// Emails handed to the email provider, by status. Watch for: rejected vs accepted ratio.
	EmailsSentTotal *prometheus.CounterVec

	// Rate limit denials at intake. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
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
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of upstream provider calls (geocode, weather, air_quality, email)",
		},
		[]string{"provider", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerDurationSeconds",
			Help:    "Upstream provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	SubscriptionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptionsStartedTotal",
			Help: "Total number of subscriptions accepted at intake",
		},
	)
	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptionsActive",
			Help: "Number of alert loops currently running",
		},
	)
	SubscriptionsTerminatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptionsTerminatedTotal",
			Help: "Total number of alert loops that exited, by reason",
		},
		[]string{"reason"},
	)
	DeliveryCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveryCyclesTotal",
			Help: "Total number of delivery cycle attempts, by result",
		},
		[]string{"result"},
	)
	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailsSentTotal",
			Help: "Total number of emails handed to the email provider, by status",
		},
		[]string{"status"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderDuration,
		SubscriptionsStartedTotal, SubscriptionsActive, SubscriptionsTerminatedTotal,
		DeliveryCyclesTotal, EmailsSentTotal,
		RateLimitDeniedTotal,
	)
}

// ObserveProviderCall records one upstream call for the given provider with its
// outcome label and duration in seconds. Providers: geocode, weather, air_quality, email.
func ObserveProviderCall(provider, status string, seconds float64) {
	ProviderCallsTotal.WithLabelValues(provider, status).Inc()
	ProviderDuration.WithLabelValues(provider, status).Observe(seconds)
}

// StatusLabel maps an HTTP status code to a stable metric label.
func StatusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
