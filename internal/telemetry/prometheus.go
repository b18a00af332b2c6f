package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector exposes metrics for scraping.
type PrometheusCollector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	planEventsTotal  *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the metrics on registry. A nil registry
// gets a fresh one with the Go and process collectors.
func NewPrometheusCollector(registry *prometheus.Registry) *PrometheusCollector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &PrometheusCollector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seep_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seep_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		planEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seep_plan_events_total",
				Help: "Plan lifecycle events by plan and event",
			},
			[]string{"plan", "event"},
		),
		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seep_upstream_failures_total",
				Help: "Failed calls to upstream providers",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(c.requestsTotal, c.requestDuration, c.planEventsTotal, c.upstreamFailures)
	return c
}

func (c *PrometheusCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordPlanEvent(plan, event string) {
	c.planEventsTotal.WithLabelValues(plan, event).Inc()
}

func (c *PrometheusCollector) RecordExternalFailure(provider string) {
	c.upstreamFailures.WithLabelValues(provider).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *PrometheusCollector) Close(context.Context) error { return nil }
