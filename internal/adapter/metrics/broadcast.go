package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics covers the session registry, publishes and heartbeats.
type BroadcastMetrics struct {
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsClosed  *prometheus.CounterVec
	Publishes       *prometheus.CounterVec
	PublishDuration prometheus.Histogram
	ValidSlides     prometheus.Gauge
	FramesSent      *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	Heartbeats      prometheus.Counter
}

// NewBroadcastMetrics creates broadcast metrics and registers them on reg (if non-nil).
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "active_sessions",
			Help:      "Number of totem sessions currently registered.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "sessions_opened_total",
			Help:      "Total number of totem sessions registered.",
		}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "sessions_closed_total",
			Help:      "Total number of totem sessions closed, by reason.",
		}, []string{"reason"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "publishes_total",
			Help:      "Total number of publish cycles, by result.",
		}, []string{"result"}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "publish_duration_seconds",
			Help:      "Time to read, filter, serialize and enqueue one publish.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		ValidSlides: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "valid_slides",
			Help:      "Number of slides in the last published frame.",
		}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "frames_sent_total",
			Help:      "Total number of frames written to totem sinks, by event.",
		}, []string{"event"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames not delivered, by reason.",
		}, []string{"reason"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeat ticks.",
		}),
	}

	register(reg, m.ActiveSessions, m.SessionsOpened, m.SessionsClosed, m.Publishes,
		m.PublishDuration, m.ValidSlides, m.FramesSent, m.FramesDropped, m.Heartbeats)
	return m
}
