// Package metrics holds the process-wide Prometheus instruments, exposed on
// /metrics by the HTTP router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks open websocket connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avalon_connections_active",
		Help: "Current number of open websocket connections",
	})

	// GamesActive tracks games held in the in-memory registry.
	GamesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avalon_games_active",
		Help: "Current number of games in the in-memory registry",
	})

	// EventsProcessed counts inbound client events by event name.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avalon_events_processed_total",
		Help: "Total inbound client events processed",
	}, []string{"event"})

	// EventErrors counts inbound events rejected with an error reply.
	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avalon_event_errors_total",
		Help: "Total inbound client events rejected with an error",
	}, []string{"event"})

	// SnapshotFailures counts game snapshots that could not be written to the
	// cache. In-memory state stays authoritative when this fires.
	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avalon_snapshot_failures_total",
		Help: "Total game snapshot writes that failed",
	})

	// GamesRestored counts games rehydrated from cache snapshots.
	GamesRestored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avalon_games_restored_total",
		Help: "Total games rehydrated from cache snapshots",
	})
)
