package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securetalk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "securetalk_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Crypto metrics
	EncryptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securetalk_encrypt_operations_total",
			Help: "Total number of message encryption operations",
		},
		[]string{"result"},
	)

	DecryptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securetalk_decrypt_operations_total",
			Help: "Total number of message decryption operations",
		},
		[]string{"result"},
	)

	SessionKeysCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "securetalk_session_keys_created_total",
			Help: "Total number of conversation session keys generated",
		},
	)

	SessionKeysHealed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "securetalk_session_keys_healed_total",
			Help: "Total number of invalid session keys replaced in place",
		},
	)

	KeyUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securetalk_key_uploads_total",
			Help: "Total number of key upload operations",
		},
		[]string{"kind"},
	)
)

// Middleware records request counts and latencies per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
