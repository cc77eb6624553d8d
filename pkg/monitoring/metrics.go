// Package monitoring exposes Prometheus metrics for the chat server.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes recorded per turn.
const (
	OutcomeAnswered              = "answered"
	OutcomeOutOfScope            = "out_of_scope"
	OutcomeInsufficientSelection = "insufficient_selection"
	OutcomeRefusedHighRisk       = "refused_high_risk"
	OutcomeError                 = "error"
)

// Metrics holds the server's instrument set on its own registry so tests can
// create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal     *prometheus.CounterVec
	citationsPerTurn prometheus.Histogram
	retrievalSeconds prometheus.Histogram
	firstTokenSec    prometheus.Histogram
	turnSeconds      prometheus.Histogram
	wsConnections    prometheus.Gauge
}

// NewMetrics creates and registers the instrument set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_queries_total",
			Help: "Chat turns by query type and outcome.",
		}, []string{"query_type", "outcome"}),
		citationsPerTurn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_citations_per_turn",
			Help:    "Citations surfaced per answered turn.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
		retrievalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_retrieval_duration_seconds",
			Help:    "Embed plus vector search latency.",
			Buckets: prometheus.DefBuckets,
		}),
		firstTokenSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_first_token_seconds",
			Help:    "Time from request receipt to first streamed token.",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13},
		}),
		turnSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "Full turn latency including generation.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_websocket_connections",
			Help: "Open WebSocket chat connections.",
		}),
	}

	registry.MustRegister(
		m.queriesTotal,
		m.citationsPerTurn,
		m.retrievalSeconds,
		m.firstTokenSec,
		m.turnSeconds,
		m.wsConnections,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery counts one finished turn.
func (m *Metrics) RecordQuery(queryType, outcome string) {
	m.queriesTotal.WithLabelValues(queryType, outcome).Inc()
}

// RecordCitations observes the citation count of an answered turn.
func (m *Metrics) RecordCitations(count int) {
	m.citationsPerTurn.Observe(float64(count))
}

// RecordRetrieval observes retrieval latency.
func (m *Metrics) RecordRetrieval(d time.Duration) {
	m.retrievalSeconds.Observe(d.Seconds())
}

// RecordFirstToken observes time to first streamed token.
func (m *Metrics) RecordFirstToken(d time.Duration) {
	m.firstTokenSec.Observe(d.Seconds())
}

// RecordTurn observes full turn latency.
func (m *Metrics) RecordTurn(d time.Duration) {
	m.turnSeconds.Observe(d.Seconds())
}

// WSConnected tracks a WebSocket connection opening.
func (m *Metrics) WSConnected() {
	m.wsConnections.Inc()
}

// WSDisconnected tracks a WebSocket connection closing.
func (m *Metrics) WSDisconnected() {
	m.wsConnections.Dec()
}
