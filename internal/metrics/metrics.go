package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	sessions   prometheus.Gauge
	rooms      prometheus.Gauge
	inbound    *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	deliveries prometheus.Counter
	evictions  prometheus.Counter
}

// New registers collectors on a fresh registry (plus Go/process collectors).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "wireboard",
			Name:      "sessions",
			Help:      "Connections currently joined to a room.",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "wireboard",
			Name:      "rooms_active",
			Help:      "Rooms with at least one member.",
		}),
		inbound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wireboard",
			Name:      "inbound_events_total",
			Help:      "Inbound envelopes by kind and outcome.",
		}, []string{"kind", "result"}),
		broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wireboard",
			Name:      "broadcasts_total",
			Help:      "Fan-outs by event type.",
		}, []string{"type"}),
		deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "wireboard",
			Name:      "deliveries_total",
			Help:      "Frames delivered to peers.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "wireboard",
			Name:      "evictions_total",
			Help:      "Peers evicted after a failed or timed-out send.",
		}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) Inbound(kind, result string) {
	if m != nil {
		m.inbound.WithLabelValues(kind, result).Inc()
	}
}

// Broadcast records one fan-out and its per-peer outcome.
func (m *Metrics) Broadcast(eventType string, delivered, evicted int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(eventType).Inc()
	m.deliveries.Add(float64(delivered))
	m.evictions.Add(float64(evicted))
}
