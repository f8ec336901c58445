// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "examvault"

var (
	// ExamTransitions counts committed lifecycle transitions by target status.
	ExamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exam_transitions_total",
		Help:      "Exam lifecycle transitions by resulting status.",
	}, []string{"status"})

	// ExamSubmissions counts accepted exam submissions.
	ExamSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exam_submissions_total",
		Help:      "Question sets accepted for review.",
	})

	// Attempts counts attempt submissions by outcome.
	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_total",
		Help:      "Attempt submissions by outcome.",
	}, []string{"outcome"})

	// ArtifactRequests counts artifact store calls by operation and outcome.
	ArtifactRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_requests_total",
		Help:      "Artifact store calls by operation and outcome.",
	}, []string{"op", "outcome"})

	// ArtifactDuration observes artifact store call latency including retries.
	ArtifactDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "artifact_request_duration_seconds",
		Help:      "Artifact store call latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// Notifications counts notification sends by kind and outcome.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification sends by kind and outcome.",
	}, []string{"kind", "outcome"})
)
