// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendsheets"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by limiter name.",
	}, []string{"limiter"})

	Signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Verification codes issued and accounts created, by role and stage.",
	}, []string{"role", "stage"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	MailFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_failures_total",
		Help:      "Emails that could not be delivered, by kind.",
	}, []string{"kind"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrollment_changes_total",
		Help:      "Enrollment transitions: enrolled, re-enrolled, unenrolled, removed.",
	}, []string{"kind"})

	QRSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qr_session_events_total",
		Help:      "QR session lifecycle events: started, refreshed, rotated, stopped.",
	}, []string{"event"})

	QRScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qr_scans_total",
		Help:      "QR scans by result.",
	}, []string{"result"})

	MarkedAbsent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qr_marked_absent_total",
		Help:      "Attendance entries written as absent when a QR session stops.",
	})
)
