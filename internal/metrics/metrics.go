// Package metrics exposes Prometheus instrumentation for the gateway and
// zone servers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors both server roles share. Unused collectors
// simply stay at zero.
type Metrics struct {
	registry *prometheus.Registry

	TickDuration     *prometheus.HistogramVec
	ZoneEntities     *prometheus.GaugeVec
	BusPublishes     *prometheus.CounterVec
	EnvelopesHandled *prometheus.CounterVec
	CombatActions    *prometheus.CounterVec
	ConnectedSockets prometheus.Gauge
	RosterDeltas     prometheus.Counter
}

// New creates a Metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riftwalk",
			Name:      "zone_tick_duration_seconds",
			Help:      "Time spent processing one zone tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"zone"}),
		ZoneEntities: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "riftwalk",
			Name:      "zone_entities",
			Help:      "Entities currently tracked per zone, by kind.",
		}, []string{"zone", "kind"}),
		BusPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riftwalk",
			Name:      "bus_publishes_total",
			Help:      "Envelopes published to the message bus.",
		}, []string{"channel_kind"}),
		EnvelopesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riftwalk",
			Name:      "envelopes_handled_total",
			Help:      "Envelopes dispatched by the world manager, by type.",
		}, []string{"type"}),
		CombatActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riftwalk",
			Name:      "combat_actions_total",
			Help:      "Combat actions resolved, by outcome.",
		}, []string{"outcome"}),
		ConnectedSockets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "riftwalk",
			Name:      "gateway_connected_sockets",
			Help:      "Client sockets currently connected to this gateway.",
		}),
		RosterDeltas: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riftwalk",
			Name:      "roster_deltas_published_total",
			Help:      "Non-empty proximity roster deltas published.",
		}),
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
