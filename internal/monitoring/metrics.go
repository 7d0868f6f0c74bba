package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the relay's prometheus surface. Gauges read the live stores
// through callbacks so nothing in the hot path touches prometheus except the
// two counters.
type Metrics struct {
	registry *prometheus.Registry

	// InboundEvents counts accepted inbound frames by event name.
	InboundEvents *prometheus.CounterVec
	// DroppedEvents counts silently dropped frames by drop reason.
	DroppedEvents *prometheus.CounterVec
}

// New builds the metric set. The three callbacks report open connections,
// live sessions, and live rooms.
func New(connections, sessions, rooms func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liverelay",
			Name:      "inbound_events_total",
			Help:      "Inbound frames accepted for routing, by event.",
		}, []string{"event"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liverelay",
			Name:      "dropped_events_total",
			Help:      "Inbound frames dropped without a reply, by reason.",
		}, []string{"reason"}),
	}

	registry.MustRegister(
		m.InboundEvents,
		m.DroppedEvents,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "liverelay",
			Name:      "open_connections",
			Help:      "Currently open WebSocket connections.",
		}, connections),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "liverelay",
			Name:      "live_sessions",
			Help:      "Broadcast sessions currently in memory.",
		}, sessions),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "liverelay",
			Name:      "live_rooms",
			Help:      "Chat rooms currently in memory.",
		}, rooms),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler exposes the metric set for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
