package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arena_match_results_total",
	Help: "Match results handled, by outcome",
}, []string{"outcome"})
