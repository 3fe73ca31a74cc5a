package observability

import (
	"context"
	"net/http"

	"github.com/grvbrk/vidcatalog_server/internal/models"
	"github.com/grvbrk/vidcatalog_server/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP collectors. Each instance owns its registry so tests
// can build routers repeatedly.
type Metrics struct {
	registry *prometheus.Registry

	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Events   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidcatalog_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidcatalog_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidcatalog_catalog_events_total",
			Help: "Catalog events by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.Duration,
		m.Events,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CountEvents counts every event before handing it to next.
func (m *Metrics) CountEvents(next store.EventSink) store.EventSink {
	return &countingSink{next: next, events: m.Events}
}

type countingSink struct {
	next   store.EventSink
	events *prometheus.CounterVec
}

func (s *countingSink) Record(ctx context.Context, event models.CatalogEvent) error {
	s.events.WithLabelValues(string(event.Kind)).Inc()
	return s.next.Record(ctx, event)
}
