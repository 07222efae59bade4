package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationTransitions counts invitation lifecycle operations by action and result
	// (success|rejected|error).
	InvitationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewline_invitation_transitions_total",
			Help: "Total number of invitation lifecycle operations",
		},
		[]string{"action", "result"},
	)

	// InvitationsExpired counts pending invitations flipped to expired, by detection path (lazy|sweep).
	InvitationsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewline_invitations_expired_total",
			Help: "Total number of invitations marked expired",
		},
		[]string{"path"},
	)

	// RosterBackfills counts user id backfills performed during roster resolution (success|error).
	RosterBackfills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewline_roster_backfills_total",
			Help: "Total number of invitation user id backfills performed while resolving rosters",
		},
		[]string{"result"},
	)

	// RosterSize observes the number of entries returned per roster resolution.
	RosterSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crewline_roster_size",
			Help:    "Number of entries in resolved team rosters",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// NotificationDispatch counts invitation side-effect deliveries by channel and result.
	NotificationDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewline_notification_dispatch_total",
			Help: "Total number of invitation notification deliveries",
		},
		[]string{"channel", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewline_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
