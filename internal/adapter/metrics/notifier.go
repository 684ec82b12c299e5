package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotifierMetrics covers change notifications between mutation endpoints and hubs.
type NotifierMetrics struct {
	Sent     *prometheus.CounterVec
	Received prometheus.Counter
	// CircuitState is 0 closed, 1 half-open, 2 open.
	CircuitState prometheus.Gauge
}

func NewNotifierMetrics(reg prometheus.Registerer) *NotifierMetrics {
	m := &NotifierMetrics{
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "sent_total",
			Help:      "Total number of slide change notifications, by transport and result.",
		}, []string{"transport", "result"}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "received_total",
			Help:      "Total number of slide change notifications received over Redis.",
		}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "redis_circuit_state",
			Help:      "Redis circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
	}

	register(reg, m.Sent, m.Received, m.CircuitState)
	return m
}
