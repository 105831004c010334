// Package metrics provides Prometheus metrics for the WebDAV gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerdav_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerdav_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Remote RPC metrics
	rpcOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerdav_mfs_operation_duration_seconds",
			Help:    "MFS RPC operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	rpcOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerdav_mfs_operations_total",
			Help: "Total MFS RPC operations",
		},
		[]string{"operation", "status"},
	)

	// Content transfer metrics
	bytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerdav_content_bytes_read_total",
			Help: "Total bytes fetched from the remote store",
		},
	)

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerdav_content_bytes_written_total",
			Help: "Total bytes committed to the remote store",
		},
	)

	// Lock metrics
	activeLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerdav_active_locks",
			Help: "Number of live entries in the lock table",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRPCOperation records one remote MFS operation.
func RecordRPCOperation(operation string, duration time.Duration, success bool) {
	rpcOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	rpcOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordBytesRead records bytes fetched from the remote store.
func RecordBytesRead(n int64) {
	bytesRead.Add(float64(n))
}

// RecordBytesWritten records bytes committed to the remote store.
func RecordBytesWritten(n int64) {
	bytesWritten.Add(float64(n))
}

// SetActiveLocks sets the live lock count.
func SetActiveLocks(count int) {
	activeLocks.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, rw.statusCode, time.Since(start))
	})
}
