package leaderboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_leaderboard_snapshot_requests_total",
		Help: "Snapshot reads, by cache result",
	}, []string{"result"})

	updatesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_leaderboard_updates_published_total",
		Help: "Leaderboard updates published to other instances",
	})

	updatesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_leaderboard_updates_received_total",
		Help: "Leaderboard updates received from other instances",
	})

	malformedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_leaderboard_malformed_total",
		Help: "Stored or published payloads that could not be decoded",
	}, []string{"source"})

	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_leaderboard_subscribers",
		Help: "Local leaderboard subscribers",
	})
)
