package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconcileAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_attempts_total",
		Help: "Reconciliation attempts per network.",
	}, []string{"network"})

	ExplorerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_explorer_errors_total",
		Help: "Failed explorer API calls per network.",
	}, []string{"network"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_status_transitions_total",
		Help: "Payments moved into a terminal status.",
	}, []string{"status"})

	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_poll_cycles_total",
		Help: "Completed background poll cycles.",
	})

	PollSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_poll_cycles_skipped_total",
		Help: "Poll ticks skipped because the previous cycle was still running.",
	})
)
