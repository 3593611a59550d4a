package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	modRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	modRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moderation_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	modAnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_analyses_total",
		Help: "Total content analyses by content type and risk level.",
	}, []string{"content_type", "level"})

	modVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_automod_verdicts_total",
		Help: "Total auto-moderation verdicts by stage, outcome, and degradation.",
	}, []string{"stage", "outcome", "degraded"})

	modFlagUpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_flag_upserts_total",
		Help: "Total flag upserts by content type and whether a new flag was created.",
	}, []string{"content_type", "result"})

	modReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_reviews_total",
		Help: "Total flag reviews by disposition.",
	}, []string{"disposition"})

	modAuditEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moderation_audit_entries_total",
		Help: "Total audit log entries appended.",
	})

	modWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_webhook_deliveries_total",
		Help: "Total webhook deliveries by event type and success status.",
	}, []string{"event", "status"})

	modHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_health_checks_total",
		Help: "Total dependency health probes by dependency and result.",
	}, []string{"dependency", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		modRequestsTotal.WithLabelValues(method, path, status).Inc()
		modRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// PrometheusRecorder feeds engine events into the package's collectors.
type PrometheusRecorder struct{}

// ObserveAnalysis records one analysis.
func (PrometheusRecorder) ObserveAnalysis(ct model.ContentType, level model.RiskLevel) {
	modAnalysesTotal.WithLabelValues(string(ct), string(level)).Inc()
}

// ObserveVerdict records one auto-moderation verdict.
func (PrometheusRecorder) ObserveVerdict(stage string, allowed, degraded bool) {
	outcome := "blocked"
	if allowed {
		outcome = "allowed"
	}
	modVerdictsTotal.WithLabelValues(stage, outcome, strconv.FormatBool(degraded)).Inc()
}

// ObserveFlagUpsert records a flag creation or merge.
func (PrometheusRecorder) ObserveFlagUpsert(ct model.ContentType, created bool) {
	result := "merged"
	if created {
		result = "created"
	}
	modFlagUpsertsTotal.WithLabelValues(string(ct), result).Inc()
}

// ObserveReview records a completed review.
func (PrometheusRecorder) ObserveReview(d model.Disposition) {
	modReviewsTotal.WithLabelValues(string(d)).Inc()
}

// ObserveAuditAppend records an audit log append.
func (PrometheusRecorder) ObserveAuditAppend() {
	modAuditEntriesTotal.Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(eventType string, success bool) {
	modWebhookDeliveriesTotal.WithLabelValues(eventType, result(success)).Inc()
}

// RecordHealthCheck records a dependency probe result.
func RecordHealthCheck(dependency string, success bool) {
	modHealthChecksTotal.WithLabelValues(dependency, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
