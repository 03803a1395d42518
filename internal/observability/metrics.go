package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionEncode = "encode"
	DirectionDecode = "decode"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsonctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsonctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	codecMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsonctl",
			Subsystem: "codec",
			Name:      "messages_total",
			Help:      "Documents encoded or decoded, by message name.",
		},
		[]string{"direction", "message"},
	)
	codecErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsonctl",
			Subsystem: "codec",
			Name:      "errors_total",
			Help:      "Failed encode or decode calls, by reason.",
		},
		[]string{"direction", "reason"},
	)
	documentBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsonctl",
			Subsystem: "codec",
			Name:      "document_bytes",
			Help:      "Size of encoded or decoded documents in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, codecMessages, codecErrors, documentBytes)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCodecMessage counts one successful encode or decode of size bytes.
func RecordCodecMessage(direction, message string, size int) {
	RegisterMetrics()
	codecMessages.WithLabelValues(direction, message).Inc()
	documentBytes.WithLabelValues(direction).Observe(float64(size))
}

// RecordCodecError counts one failure; reason comes from protocol.Reason.
func RecordCodecError(direction, reason string) {
	RegisterMetrics()
	codecErrors.WithLabelValues(direction, reason).Inc()
}
