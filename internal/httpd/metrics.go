package httpd

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	bunstore "github.com/kartikbazzad/bunstore"
)

var (
	// requestTotal counts HTTP requests by method, route, and status.
	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// requestDuration is the latency of HTTP requests.
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bunstore_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	// operationTotal counts store operations received over HTTP
	// (get, put, delete, search, list_namespaces).
	operationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunstore_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"op", "status"},
	)
)

// metricsMiddleware records request count and duration per route.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// recordOps counts every operation in a batch under one outcome.
func recordOps(ops []bunstore.Op, status string) {
	for _, op := range ops {
		operationTotal.WithLabelValues(opLabel(op), status).Inc()
	}
}

func opLabel(op bunstore.Op) string {
	switch op := op.(type) {
	case bunstore.GetOp:
		return "get"
	case bunstore.PutOp:
		if op.Value == nil {
			return "delete"
		}
		return "put"
	case bunstore.SearchOp:
		return "search"
	case bunstore.ListNamespacesOp:
		return "list_namespaces"
	default:
		return "unknown"
	}
}
