package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	portfoliosTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "careerledger_portfolios",
		Help: "Indexed portfolios by review status, as of the last stats query.",
	}, []string{"status"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "careerledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerledger_ledger_ops_total",
		Help: "Ledger calls by operation and result (ok, empty, error).",
	}, []string{"op", "result"})

	ledgerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "careerledger_ledger_op_duration_seconds",
		Help:    "Ledger call latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	publishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerledger_publishes_total",
		Help: "Publish attempts by result (ok, orphaned, error).",
	}, []string{"result"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerledger_transitions_total",
		Help: "Review decisions by action and result.",
	}, []string{"action", "result"})

	orphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "careerledger_orphans_total",
		Help: "Records written whose index append failed.",
	})

	healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerledger_health_checks_total",
		Help: "Ledger health probes by result.",
	}, []string{"result"})

	ledgerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "careerledger_ledger_up",
		Help: "1 while the ledger is healthy, 0 once it is degraded.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveLedgerOp records one ledger call. It matches ledger.ObserveFunc.
func ObserveLedgerOp(op, result string, elapsed time.Duration) {
	ledgerOpsTotal.WithLabelValues(op, result).Inc()
	ledgerOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordPublish records a publish attempt.
func RecordPublish(result string) {
	publishesTotal.WithLabelValues(result).Inc()
}

// RecordTransition records a review decision.
func RecordTransition(action, result string) {
	transitionsTotal.WithLabelValues(action, result).Inc()
}

// RecordOrphan records a record left out of the index.
func RecordOrphan() {
	orphansTotal.Inc()
}

// RecordHealthCheck records a ledger health probe result.
func RecordHealthCheck(success bool) {
	if success {
		healthChecksTotal.WithLabelValues("success").Inc()
	} else {
		healthChecksTotal.WithLabelValues("failure").Inc()
	}
}

// SetLedgerUp sets the ledger health gauge.
func SetLedgerUp(up bool) {
	if up {
		ledgerUp.Set(1)
	} else {
		ledgerUp.Set(0)
	}
}

// SetPortfoliosGauge publishes the counts from a stats query.
func SetPortfoliosGauge(s model.Stats) {
	portfoliosTotal.WithLabelValues(string(model.StatusPending)).Set(float64(s.Pending))
	portfoliosTotal.WithLabelValues(string(model.StatusVerified)).Set(float64(s.Verified))
	portfoliosTotal.WithLabelValues(string(model.StatusRejected)).Set(float64(s.Rejected))
}
