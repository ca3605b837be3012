package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydock_queries_started_total",
			Help: "Total number of queries handed to the driver.",
		},
		[]string{"datasource", "mode"},
	)
	queriesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydock_queries_completed_total",
			Help: "Total number of terminal query outcomes by kind.",
		},
		[]string{"datasource", "outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydock_query_duration_seconds",
			Help:    "Wall-clock time from session creation to terminal outcome.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"datasource"},
	)
	artifactBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querydock_artifact_bytes",
			Help:    "Size of completed result artifacts in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 8, 8),
		},
	)
	sinkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydock_sink_failures_total",
			Help: "Total number of swallowed history/telemetry write failures.",
		},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesStartedTotal,
		queriesCompletedTotal,
		queryDurationSeconds,
		artifactBytes,
		sinkFailuresTotal,
	)
}

func ObserveQueryStarted(datasource, mode string) {
	queriesStartedTotal.WithLabelValues(datasource, mode).Inc()
}

func ObserveQueryCompleted(datasource, outcome string, elapsed time.Duration) {
	queriesCompletedTotal.WithLabelValues(datasource, outcome).Inc()
	queryDurationSeconds.WithLabelValues(datasource).Observe(elapsed.Seconds())
}

func ObserveArtifactSize(bytes int64) {
	if bytes < 0 {
		return
	}
	artifactBytes.Observe(float64(bytes))
}

func IncrementSinkFailure(sink string) {
	sinkFailuresTotal.WithLabelValues(sink).Inc()
}
