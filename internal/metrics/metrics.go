// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "sessions_created_total",
		Help:      "Attendance sessions created.",
	})

	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "sessions_ended_total",
		Help:      "Attendance sessions ended, by trigger.",
	}, []string{"trigger"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "attendance_submissions_total",
		Help:      "Attendance submissions, by result.",
	}, []string{"result"})

	WizardTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "wizard_transitions_total",
		Help:      "Wizard state changes, by target state.",
	}, []string{"state"})

	CodeResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "code_resolutions_total",
		Help:      "Session code lookups, by outcome.",
	}, []string{"outcome"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edutrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	DashboardPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "dashboard_polls_total",
		Help:      "Dashboard store polls, by result.",
	}, []string{"result"})
)
