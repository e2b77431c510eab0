package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recommendationStoredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "pipeline",
		Name:      "last_recommendation_stored_timestamp_seconds",
		Help:      "Unix timestamp of the most recent recommendation upserted into Postgres.",
	})
	analysesFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "pipeline",
		Name:      "analyses_failed_total",
		Help:      "Number of activities whose analysis exhausted the retry budget.",
	})
)

func init() {
	prometheus.MustRegister(recommendationStoredGauge, analysesFailedCounter)
}

// RecordRecommendationStored updates the storage watermark gauge.
func RecordRecommendationStored(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recommendationStoredGauge.Set(float64(ts.Unix()))
}

// RecordAnalysisFailed counts a terminal analysis failure.
func RecordAnalysisFailed() {
	analysesFailedCounter.Inc()
}
