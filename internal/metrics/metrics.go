// Package metrics exposes Prometheus counters for HTTP traffic and exam
// activity.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoexam_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoexam_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoexam_active_sessions",
		Help: "Exam sessions currently running",
	})

	StudentsRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoexam_students_registered_total",
		Help: "Students registered into an exam session",
	})

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoexam_submissions_total",
			Help: "Exam submissions by grading outcome",
		},
		[]string{"outcome"},
	)

	CheatEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoexam_cheat_events_total",
			Help: "Cheating attempts reported by student browsers",
		},
		[]string{"type"},
	)

	ArchiveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoexam_archive_failures_total",
			Help: "Rows the archive workers failed to persist",
		},
		[]string{"queue"},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			ActiveSessions,
			StudentsRegistered,
			Submissions,
			CheatEvents,
			ArchiveFailures,
		)
	})
}

// Submission outcomes.
const (
	OutcomeScored  = "scored"
	OutcomePending = "pending"
)

// ObserveSubmission counts a submission by whether it could be auto-graded.
func ObserveSubmission(score int) {
	if score < 0 {
		Submissions.WithLabelValues(OutcomePending).Inc()
		return
	}
	Submissions.WithLabelValues(OutcomeScored).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
