package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wildfire_alerts"

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Notifications
	ChannelSends    *prometheus.CounterVec   // labels: channel, outcome={success,error}
	ChannelDuration *prometheus.HistogramVec // labels: channel
	Dispatches      *prometheus.CounterVec   // labels: result={success,failure}

	// Incidents
	IncidentEvents  *prometheus.CounterVec // labels: type
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}

	SessionReady prometheus.Gauge

	// HTTP
	RequestTotal    *prometheus.CounterVec   // labels: method, route, status
	RequestDuration *prometheus.HistogramVec // labels: method, route
}

// New creates the collectors and registers them, plus the Go runtime
// collectors, on a private registry.
func New() *Metrics {
	m := newMetrics()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// NewForTesting returns collectors on a fresh registry without the runtime
// collectors.
func NewForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChannelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sends_total",
			Help:      "Alert sends by channel and outcome.",
		}, []string{"channel", "outcome"}),
		ChannelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_send_duration_seconds",
			Help:      "Time spent in a single channel send.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Alert dispatches by overall result.",
		}, []string{"result"}),
		IncidentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_events_total",
			Help:      "Committed incident changes by type.",
		}, []string{"type"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_events_published_total",
			Help:      "Incident events written to Kafka by outcome.",
		}, []string{"outcome"}),
		SessionReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_channel_ready",
			Help:      "1 when the session channel is ready to send, 0 otherwise.",
		}),
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.ChannelSends,
		m.ChannelDuration,
		m.Dispatches,
		m.IncidentEvents,
		m.EventsPublished,
		m.SessionReady,
		m.RequestTotal,
		m.RequestDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
