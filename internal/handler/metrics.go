package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the real-time channel.
var (
	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_ws_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	wsBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_ws_broadcasts_total",
			Help: "Item collection snapshots fanned out to clients",
		},
	)

	wsDroppedClientsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_ws_dropped_clients_total",
			Help: "Clients disconnected because their send queue was full",
		},
	)

	wsEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_ws_events_total",
			Help: "Client events received over WebSocket by outcome",
		},
		[]string{"event", "result"},
	)
)
