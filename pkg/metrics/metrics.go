package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector provides application metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Weather provider metrics
	WeatherFetchTotal    *prometheus.CounterVec
	WeatherFetchDuration prometheus.Histogram

	// Advisory metrics
	DecisionsTotal    *prometheus.CounterVec
	RuleMatchesTotal  *prometheus.CounterVec
	FallbackTotal     *prometheus.CounterVec
	FallbackFragments prometheus.Counter
	ActiveChatStreams prometheus.Gauge
}

// NewCollector creates a collector backed by its own registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 15.0},
			},
			[]string{"endpoint"},
		),

		WeatherFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weather_fetch_total",
				Help:      "Weather provider fetches by outcome",
			},
			[]string{"outcome"},
		),

		WeatherFetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "weather_fetch_duration_seconds",
				Help:      "Weather provider fetch duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "irrigation_decisions_total",
				Help:      "Irrigation decisions computed, labelled by outcome",
			},
			[]string{"irrigate"},
		),

		RuleMatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_rule_matches_total",
				Help:      "Chat messages answered by a canned rule",
			},
			[]string{"rule"},
		),

		FallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_fallback_total",
				Help:      "Chat messages delegated to the generative fallback",
			},
			[]string{"outcome"},
		),

		FallbackFragments: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_fallback_fragments_total",
				Help:      "Streamed fragments received from the generative fallback",
			},
		),

		ActiveChatStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chat_active_streams",
				Help:      "Chat replies currently being streamed",
			},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordAPIRequest records a finished HTTP request.
func (c *Collector) RecordAPIRequest(endpoint, method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.APIRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	c.APIRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordWeatherFetch records a provider round trip.
func (c *Collector) RecordWeatherFetch(err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.WeatherFetchTotal.WithLabelValues(outcome).Inc()
	c.WeatherFetchDuration.Observe(elapsed.Seconds())
}

// RecordDecision counts a computed irrigation decision.
func (c *Collector) RecordDecision(irrigate bool) {
	if c == nil {
		return
	}
	c.DecisionsTotal.WithLabelValues(strconv.FormatBool(irrigate)).Inc()
}

// RecordRuleMatch counts a canned rule answer.
func (c *Collector) RecordRuleMatch(rule string) {
	if c == nil {
		return
	}
	c.RuleMatchesTotal.WithLabelValues(rule).Inc()
}

// RecordFallback counts a fallback invocation by outcome (ok, error, canceled).
func (c *Collector) RecordFallback(outcome string) {
	if c == nil {
		return
	}
	c.FallbackTotal.WithLabelValues(outcome).Inc()
}

// RecordFragments counts streamed fallback fragments.
func (c *Collector) RecordFragments(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.FallbackFragments.Add(float64(n))
}

// StreamStarted and the returned func bracket an active chat stream.
func (c *Collector) StreamStarted() func() {
	if c == nil {
		return func() {}
	}
	c.ActiveChatStreams.Inc()
	return c.ActiveChatStreams.Dec
}
