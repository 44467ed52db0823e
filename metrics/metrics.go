package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the marketplace collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SlotClaims           *prometheus.CounterVec
	Settlements          *prometheus.CounterVec
	WalletMutations      *prometheus.CounterVec
	NotificationFailures prometheus.Counter
	ExternalLatency      *prometheus.HistogramVec
	HTTPRequests         *prometheus.CounterVec
	HTTPLatency          *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		SlotClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "slot_claims_total",
			Help:      "Reporter slot claims by entity kind and outcome",
		}, []string{"kind", "outcome"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "settlements_total",
			Help:      "Wallet settlements by kind",
		}, []string{"kind"}),
		WalletMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "wallet_mutations_total",
			Help:      "Wallet credits and debits by type and outcome",
		}, []string{"type", "outcome"}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered",
		}),
		ExternalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketplace",
			Name:      "external_call_duration_seconds",
			Help:      "Latency of calls to external collaborators",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketplace",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.SlotClaims,
		m.Settlements,
		m.WalletMutations,
		m.NotificationFailures,
		m.ExternalLatency,
		m.HTTPRequests,
		m.HTTPLatency,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// The helpers below are safe on a nil *Metrics.

func (m *Metrics) ObserveClaim(kind, outcome string) {
	if m == nil {
		return
	}
	m.SlotClaims.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveSettlement(kind string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveWallet(txType, outcome string) {
	if m == nil {
		return
	}
	m.WalletMutations.WithLabelValues(txType, outcome).Inc()
}

func (m *Metrics) ObserveNotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}

// ObserveExternal records the duration since start for service.
func (m *Metrics) ObserveExternal(service string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ExternalLatency.WithLabelValues(service, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
