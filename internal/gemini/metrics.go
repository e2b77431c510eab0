package gemini

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recommendation_service",
		Subsystem: "gemini",
		Name:      "request_duration_seconds",
		Help:      "Latency of generateContent calls, labeled by HTTP status.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"status"})

	attemptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "gemini",
		Name:      "attempt_failures_total",
		Help:      "Number of failed generateContent attempts, including retried ones.",
	})
)

func init() {
	prometheus.MustRegister(requestDuration, attemptFailures)
}

func observeRequest(status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func recordAttemptFailed() {
	attemptFailures.Inc()
}
