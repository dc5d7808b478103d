// Package metrics holds the prometheus collectors for the session service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chess"

var (
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Game sessions and trainings created, by mode",
	}, []string{"mode"})

	Moves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moves_total",
		Help:      "Moves accepted by the rules oracle",
	})

	MoveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "move_duration_seconds",
		Help:      "Time spent validating, committing and publishing a move",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	GamesEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_ended_total",
		Help:      "Finished game sessions, by reason",
	}, []string{"reason"})

	Invitations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invitations_total",
		Help:      "Invitation transitions, by outcome",
	}, []string{"outcome"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Background sweep passes, by sweep",
	}, []string{"sweep"})

	BroadcastEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_evictions_total",
		Help:      "Subscribers dropped for falling behind",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Open websocket connections",
	})
)
