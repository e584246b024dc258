package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GameActions records player actions by type (roll|move|end_turn|undo) and result (ok|rejected|error).
	GameActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecube_game_actions_total",
			Help: "Total number of player-initiated game actions",
		},
		[]string{"action", "result"},
	)

	// AITurns counts automated turns by outcome (completed|paused|failed).
	AITurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecube_ai_turns_total",
			Help: "Total number of automated turns executed",
		},
		[]string{"outcome"},
	)

	// DoubleOffers counts cube offers by resolution (offered|accepted|declined).
	DoubleOffers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecube_double_offers_total",
			Help: "Total number of doubling cube offers",
		},
		[]string{"resolution"},
	)

	// SnapshotSaves counts background snapshot persistence attempts (ok|retry|dead_letter).
	SnapshotSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doublecube_snapshot_saves_total",
			Help: "Total number of background snapshot save attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks sessions currently resident in memory.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doublecube_active_sessions",
			Help: "Number of live game sessions",
		},
	)

	// SuspendedSessions tracks sessions quarantined after an integrity violation.
	SuspendedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doublecube_suspended_sessions",
			Help: "Number of sessions suspended pending operator review",
		},
	)

	// ActionLatency measures validate+mutate latency per action while the session lock is held.
	ActionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doublecube_action_duration_seconds",
			Help:    "Game action processing latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// APILatency measures HTTP request latency by method, route and status.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doublecube_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// TimeoutForfeits counts games forfeited by the turn-timeout sweeper.
	TimeoutForfeits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doublecube_timeout_forfeits_total",
			Help: "Total number of games forfeited due to turn timeout",
		},
	)
)
