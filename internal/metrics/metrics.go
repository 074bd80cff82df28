package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bb",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service starts.",
		}, []string{"service"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bb",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of service stop operations.",
		}, []string{"service"},
	)
	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bb",
			Subsystem: "service",
			Name:      "health_checks_total",
			Help:      "Health probe outcomes per service.",
		}, []string{"service", "result"},
	)
	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bb",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxied requests by status class.",
		}, []string{"class"},
	)
	proxyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bb",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Latency of proxied HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	wsSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bb",
			Subsystem: "proxy",
			Name:      "websocket_sessions",
			Help:      "Currently open proxied WebSocket sessions.",
		},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// calls after the first success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceStops, healthChecks,
		proxyRequests, proxyDuration, wsSessions,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncServiceStart(service string) { serviceStarts.WithLabelValues(service).Inc() }
func IncServiceStop(service string)  { serviceStops.WithLabelValues(service).Inc() }

func IncHealthCheck(service string, healthy bool) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	healthChecks.WithLabelValues(service, result).Inc()
}

// ObserveProxyRequest records one proxied request outcome.
func ObserveProxyRequest(status int, seconds float64) {
	proxyRequests.WithLabelValues(statusClass(status)).Inc()
	proxyDuration.Observe(seconds)
}

func WSSessionOpened() { wsSessions.Inc() }
func WSSessionClosed() { wsSessions.Dec() }

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
