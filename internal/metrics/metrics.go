// Package metrics holds the process-wide Prometheus collectors, served on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BetsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_bets_written_total",
		Help: "Bets placed or replaced, by operation.",
	}, []string{"op"})

	BetsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_bets_rejected_total",
		Help: "Bet writes refused by validation, by error code.",
	}, []string{"code"})

	ScoresCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podium_scores_created_total",
		Help: "Scores persisted by the settlement engine.",
	})

	RacesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podium_races_settled_total",
		Help: "Settlement runs that created at least one score.",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_notifications_sent_total",
		Help: "Messages delivered to participants, by kind and outcome.",
	}, []string{"kind", "outcome"})

	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_scheduler_runs_total",
		Help: "Scheduler action invocations, by action and outcome.",
	}, []string{"action", "outcome"})

	SchedulerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podium_scheduler_action_seconds",
		Help:    "Scheduler action duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podium_standings_cache_lookups_total",
		Help: "Standings cache lookups, by result.",
	}, []string{"result"})
)

// ObserveAction records one scheduler action run.
func ObserveAction(action string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SchedulerRuns.WithLabelValues(action, outcome).Inc()
	SchedulerDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
}
