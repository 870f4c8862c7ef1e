package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuizRunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khojney_quiz_runs_started_total",
		Help: "Number of quiz runs started.",
	})

	QuizRunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khojney_quiz_runs_completed_total",
		Help: "Number of quiz runs that reached a final score.",
	})

	QuizRunsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khojney_quiz_runs_abandoned_total",
		Help: "Number of quiz runs abandoned before completion.",
	})

	ActiveQuizRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "khojney_quiz_runs_active",
		Help: "Quiz runs currently in progress.",
	})

	SubmissionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khojney_attempt_submission_failures_total",
		Help: "Finalize calls to attempt persistence that failed.",
	})
)
