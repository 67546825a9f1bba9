package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RewardsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rewards_applied_total",
			Help: "Total number of reward candidates applied",
		},
		[]string{"source"},
	)

	RewardsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rewards_failed_total",
			Help: "Total number of reward candidates that were not applied",
		},
		[]string{"source", "reason"},
	)

	RewardsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rewards_skipped_total",
			Help: "Total number of reward candidates skipped because they were already paid",
		},
		[]string{"source"},
	)

	RewardsAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rewards_amount_total",
			Help: "Total amount credited by primary rewards",
		},
		[]string{"source"},
	)

	// Run metrics
	RewardRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_reward_runs_total",
			Help: "Total number of distribution runs",
		},
		[]string{"trigger", "status"},
	)

	RewardRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_reward_run_duration_seconds",
			Help:    "Duration of distribution runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~102s
		},
		[]string{"trigger"},
	)

	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_queue_jobs_total",
			Help: "Total number of background jobs processed",
		},
		[]string{"type", "status"},
	)
)
