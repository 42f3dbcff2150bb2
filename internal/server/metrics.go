// Package server exposes Prometheus instrumentation for the relay.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the relay's Prometheus collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	RoomsActive       prometheus.Gauge
	EventsRelayed     *prometheus.CounterVec
}

// NewMetrics registers the relay's collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connections_active",
			Help:      "Number of live WebSocket connections.",
		}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "rooms_active",
			Help:      "Number of rooms with at least one member.",
		}),
		EventsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_total",
			Help:      "Inbound events processed, by event name.",
		}, []string{"event"}),
	}
}
