package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics covers content store queries and the expiry reaper.
type StoreMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
	ReapRuns      *prometheus.CounterVec
	SlidesReaped  prometheus.Counter
}

func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Duration of content store queries, by statement kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_errors_total",
			Help:      "Total number of failed content store queries, by statement kind.",
		}, []string{"query"}),
		ReapRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "runs_total",
			Help:      "Total number of expiry reaper ticks, by result.",
		}, []string{"result"}),
		SlidesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "slides_deleted_total",
			Help:      "Total number of expired slides deleted by the reaper.",
		}),
	}

	register(reg, m.QueryDuration, m.QueryErrors, m.ReapRuns, m.SlidesReaped)
	return m
}
