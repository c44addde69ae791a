// Package observability collects Prometheus metrics for the storage engine.
// A nil *Metrics is a valid no-op collector so embedding callers never have
// to branch.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcome labels.
const (
	OutcomeCommit   = "commit"
	OutcomeRollback = "rollback"
)

// Metrics holds the engine's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	txTotal         *prometheus.CounterVec
	txDuration      *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	schemaVersion   prometheus.Gauge
	fallbackActive  prometheus.Gauge
}

// NewMetrics initialises the registry and the engine collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	txTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counterbook_transactions_total",
		Help: "Storage transactions by backend and outcome.",
	}, []string{"backend", "outcome"})
	txDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "counterbook_transaction_duration_seconds",
		Help:    "Storage transaction duration by backend.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counterbook_events_published_total",
		Help: "Change events published by topic.",
	}, []string{"topic"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counterbook_events_dropped_total",
		Help: "Change events dropped on saturated subscribers by topic.",
	}, []string{"topic"})
	schemaVersion := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "counterbook_schema_version",
		Help: "Schema version of the active store.",
	})
	fallbackActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "counterbook_fallback_active",
		Help: "1 when the key-value fallback backend is active.",
	})
	registry.MustRegister(txTotal, txDuration, published, dropped, schemaVersion, fallbackActive)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		txTotal:         txTotal,
		txDuration:      txDuration,
		eventsPublished: published,
		eventsDropped:   dropped,
		schemaVersion:   schemaVersion,
		fallbackActive:  fallbackActive,
	}
}

// Handler returns the http.Handler for a /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveTransaction records one finished storage transaction.
func (m *Metrics) ObserveTransaction(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.txTotal.WithLabelValues(backend, outcome).Inc()
	m.txDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// EventPublished records one delivered change event.
func (m *Metrics) EventPublished(topic string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(topic).Inc()
}

// EventDropped records one change event dropped on a full subscriber.
func (m *Metrics) EventDropped(topic string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(topic).Inc()
}

// SetSchemaVersion publishes the store's schema version.
func (m *Metrics) SetSchemaVersion(version int) {
	if m == nil {
		return
	}
	m.schemaVersion.Set(float64(version))
}

// SetFallbackActive flags whether the key-value fallback carries the store.
func (m *Metrics) SetFallbackActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.fallbackActive.Set(1)
	} else {
		m.fallbackActive.Set(0)
	}
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}
