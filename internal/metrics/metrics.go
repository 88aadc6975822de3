// Package metrics registers the Prometheus collectors for the pipeline,
// the workers, and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned" // context cancelled mid-run
)

// Segment results.
const (
	SegmentOK      = "ok"
	SegmentFailed  = "failed"
	SegmentSkipped = "skipped"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_jobs_total",
			Help: "Pipeline runs by terminal outcome.",
		},
		[]string{"outcome"},
	)

	segmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_segments_total",
			Help: "Audio segments by transcription result.",
		},
		[]string{"result"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minutes_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	summaryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_summary_fallbacks_total",
			Help: "Meetings completed with a fallback summary, by reason.",
		},
		[]string{"reason"},
	)

	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minutes_jobs_in_flight",
			Help: "Pipeline runs currently executing in this process.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)
)

// JobFinished counts one run ending with outcome.
func JobFinished(outcome string) { jobsTotal.WithLabelValues(outcome).Inc() }

// SegmentTranscribed counts one segment with result.
func SegmentTranscribed(result string) { segmentsTotal.WithLabelValues(result).Inc() }

// ObserveStage records how long stage took since start.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// SummaryFallback counts a fallback summary written for reason.
func SummaryFallback(reason string) { summaryFallbacks.WithLabelValues(reason).Inc() }

// JobStarted bumps the in-flight gauge and returns the matching decrement.
func JobStarted() (done func()) {
	jobsInFlight.Inc()
	return jobsInFlight.Dec
}

// GinMiddleware counts requests by route template so IDs do not explode
// label cardinality.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
