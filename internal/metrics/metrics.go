// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyweaver_turns_total",
			Help: "Total number of resolved turns by response type.",
		},
		[]string{"response_type"},
	)

	ForcedIntroductionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyweaver_forced_introductions_total",
		Help: "Total number of turns turned into a companion introduction by the appearance threshold.",
	})

	ClassifierFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyweaver_classifier_fallbacks_total",
		Help: "Total number of turns classified by the keyword heuristic.",
	})

	BranchFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyweaver_branch_fallbacks_total",
			Help: "Total number of canned messages substituted for failed generation, by response type.",
		},
		[]string{"response_type"},
	)

	ImageFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyweaver_image_failures_total",
		Help: "Total number of failed image generations.",
	})

	SpeechFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyweaver_speech_failures_total",
		Help: "Total number of failed speech syntheses or playbacks.",
	})

	SessionsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyweaver_sessions_started_total",
			Help: "Total number of adventures started by genre.",
		},
		[]string{"genre"},
	)

	QuotaTerminationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyweaver_quota_terminations_total",
		Help: "Total number of sessions ended because a backend quota ran out.",
	})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storyweaver_turn_duration_seconds",
		Help:    "Time taken to process a turn, including narration.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})
)
