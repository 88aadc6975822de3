package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobFinished(t *testing.T) {
	before := testutil.ToFloat64(jobsTotal.WithLabelValues(OutcomeCompleted))
	JobFinished(OutcomeCompleted)
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues(OutcomeCompleted)); got != before+1 {
		t.Errorf("jobs_total{completed} = %v, want %v", got, before+1)
	}
}

func TestSegmentAndFallbackCounters(t *testing.T) {
	seg := testutil.ToFloat64(segmentsTotal.WithLabelValues(SegmentFailed))
	fb := testutil.ToFloat64(summaryFallbacks.WithLabelValues("api_error"))
	SegmentTranscribed(SegmentFailed)
	SummaryFallback("api_error")
	if got := testutil.ToFloat64(segmentsTotal.WithLabelValues(SegmentFailed)); got != seg+1 {
		t.Errorf("segments_total{failed} = %v, want %v", got, seg+1)
	}
	if got := testutil.ToFloat64(summaryFallbacks.WithLabelValues("api_error")); got != fb+1 {
		t.Errorf("summary_fallbacks_total{api_error} = %v, want %v", got, fb+1)
	}
}

func TestJobStarted_Gauge(t *testing.T) {
	before := testutil.ToFloat64(jobsInFlight)
	done := JobStarted()
	if got := testutil.ToFloat64(jobsInFlight); got != before+1 {
		t.Errorf("in flight = %v, want %v", got, before+1)
	}
	done()
	if got := testutil.ToFloat64(jobsInFlight); got != before {
		t.Errorf("in flight after done = %v, want %v", got, before)
	}
}

func TestObserveStage(t *testing.T) {
	ObserveStage("normalize", time.Now().Add(-time.Second))
	if n := testutil.CollectAndCount(stageDuration, "minutes_stage_duration_seconds"); n == 0 {
		t.Error("no stage duration series collected")
	}
}

func TestGinMiddleware_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/meetings/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/meetings/:id", "204"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/meetings/mtg-1234abcd", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/meetings/:id", "204")); got != before+1 {
		t.Errorf("http_requests_total = %v, want %v", got, before+1)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	JobFinished(OutcomeFailed)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "minutes_jobs_total") {
		t.Error("metrics output missing minutes_jobs_total")
	}
}
