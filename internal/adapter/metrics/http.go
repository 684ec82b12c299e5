package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Transport label values for totem streams.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// streamRoutes maps the totem stream routes to their transport label.
var streamRoutes = map[string]string{
	"/api/events":    TransportSSE,
	"/api/events/ws": TransportWebSocket,
}

// HTTPMetrics keeps management API calls and totem streams in separate series: a
// stream stays open for hours, an API call for milliseconds.
type HTTPMetrics struct {
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
	APIInFlight prometheus.Gauge

	StreamsOpened  *prometheus.CounterVec
	StreamsOpen    *prometheus.GaugeVec
	StreamLifetime *prometheus.HistogramVec
}

// NewHTTPMetrics creates HTTP metrics and registers them on reg (if non-nil).
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests, by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		APIInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of API requests currently being processed.",
		}),
		StreamsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "totem",
			Name:      "stream_requests_total",
			Help:      "Total number of totem stream requests, by transport and outcome.",
		}, []string{"transport", "outcome"}),
		StreamsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "totem",
			Name:      "open_streams",
			Help:      "Number of totem streams currently held open, by transport.",
		}, []string{"transport"}),
		StreamLifetime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "totem",
			Name:      "stream_lifetime_seconds",
			Help:      "How long accepted totem streams stayed open.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
		}, []string{"transport"}),
	}

	register(reg, m.APIRequests, m.APILatency, m.APIInFlight,
		m.StreamsOpened, m.StreamsOpen, m.StreamLifetime)
	return m
}

// Middleware returns an Echo middleware that records every route except /metrics and
// /health/*. Totem stream routes go to the totem series, everything else to the API
// series.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "/metrics" || strings.HasPrefix(route, "/health/") {
				return next(c)
			}
			if transport, ok := streamRoutes[route]; ok {
				return m.observeStream(c, next, transport)
			}
			if route == "" {
				route = "unmatched"
			}

			m.APIInFlight.Inc()
			defer m.APIInFlight.Dec()

			start := time.Now()
			err := next(c)
			m.APILatency.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			m.APIRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(responseStatus(c, err))).Inc()
			return err
		}
	}
}

func (m *HTTPMetrics) observeStream(c echo.Context, next echo.HandlerFunc, transport string) error {
	open := m.StreamsOpen.WithLabelValues(transport)
	open.Inc()
	start := time.Now()

	err := next(c)

	open.Dec()
	// A rejected stream never wrote a response; the limiter error carries the status.
	if err != nil || c.Response().Status >= http.StatusBadRequest {
		m.StreamsOpened.WithLabelValues(transport, "rejected").Inc()
		return err
	}
	m.StreamsOpened.WithLabelValues(transport, "accepted").Inc()
	m.StreamLifetime.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	return nil
}

// responseStatus is the status the error handler will write for err, or the status
// already committed when the handler succeeded.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	var coded interface{ HTTPStatus() int }
	if errors.As(err, &coded) {
		return coded.HTTPStatus()
	}
	return http.StatusInternalServerError
}
