package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_hub_frames_total",
		Help: "Frames broadcast, by frame type",
	}, []string{"type"})

	sendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_hub_send_failures_total",
		Help: "Spectator sends that failed and evicted the connection",
	})

	staleEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_hub_stale_evictions_total",
		Help: "Spectators evicted for missing heartbeats",
	})

	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_hub_connections_total",
		Help: "Spectator connections accepted",
	})

	spectatorsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_hub_spectators",
		Help: "Currently connected spectators",
	})

	activeMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_hub_active_matches",
		Help: "Matches currently accepting broadcasts",
	})
)
