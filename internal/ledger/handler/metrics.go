package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

var (
	sovereignRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sovereign_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	sovereignRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sovereign_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	sovereignMintedUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sovereign_minted_units_total",
		Help: "Token units minted through this process.",
	})

	sovereignTotalMinted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sovereign_total_minted",
		Help: "Ledger running total after the last committed mint.",
	})

	sovereignMintOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sovereign_mint_operations_total",
		Help: "Mint operations by kind and result.",
	}, []string{"op", "result"})

	sovereignWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sovereign_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	sovereignAuditEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sovereign_audit_entries_total",
		Help: "Total audit log entries appended.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		sovereignRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		sovereignRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordMintOperation counts a mint attempt by its outcome: "ok", the error
// code of a rejection, or "error" for store faults.
func RecordMintOperation(op string, err error) {
	sovereignMintOperationsTotal.WithLabelValues(op, resultOf(err)).Inc()
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "error"
}

// RecordMinted records the units and running total of a committed mint.
func RecordMinted(r *ledger.Receipt) {
	sovereignMintedUnitsTotal.Add(float64(r.Amount))
	sovereignTotalMinted.Set(float64(r.TotalMinted))
}

// SetTotalMinted sets the running total gauge, e.g. at startup.
func SetTotalMinted(total uint64) {
	sovereignTotalMinted.Set(float64(total))
}

// RecordAuditAppend records an audit log append.
func RecordAuditAppend() {
	sovereignAuditEntriesTotal.Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		sovereignWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		sovereignWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
