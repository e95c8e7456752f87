package mailsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessagesSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsync_messages_synced_total",
			Help: "Messages fetched, stored and queued for indexing.",
		},
	)
	metricPoisonMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsync_poison_messages_total",
			Help: "Messages skipped because they could not be fetched or parsed.",
		},
	)
	metricSyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_sync_failures_total",
			Help: "Synchronizer failures by kind.",
		},
		[]string{
			"kind", // connection, auth, storage, other
		},
	)
	metricFlagPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_flag_pushes_total",
			Help: "Flag changes written to the server.",
		},
		[]string{
			"result", // ok, error
		},
	)
	metricSynchronizers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailsync_synchronizers",
			Help: "Synchronizers per lifecycle state.",
		},
		[]string{
			"state",
		},
	)
	metricPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsync_sync_pass_duration_seconds",
			Help:    "Duration of a full pass over an account's folders.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
	)
)
