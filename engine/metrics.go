package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "parrot_cycle_duration_sec",
	Help:    "Total duration of one polling cycle",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
})

var cycleCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parrot_cycles",
	Help: "Number of polling cycles run, by outcome",
}, []string{"status"})

var cycleState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "parrot_cycle_state",
	Help: "Current coordinator state (0=idle 1=fetching 2=planning 3=executing 4=committing)",
})

var fetchErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parrot_fetch_errors",
	Help: "Number of account fetches which failed",
}, []string{"source"})

var actionPlannedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parrot_actions_planned",
	Help: "Number of actions planned",
}, []string{"type"})

var actionResultCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parrot_action_results",
	Help: "Number of actions dispatched, by outcome",
}, []string{"type", "result"})
