// ABOUTME: Prometheus instrumentation for connections, events and reconciliation
// ABOUTME: A nil *Metrics is valid and records nothing

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handshake results recorded by HandshakeResult.
const (
	HandshakeAccepted     = "accepted"
	HandshakeUnauthorized = "unauthorized"
	HandshakeForbidden    = "forbidden"
	HandshakeError        = "error"
)

// Metrics holds parley's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive  prometheus.Gauge
	handshakes         *prometheus.CounterVec
	eventsInbound      *prometheus.CounterVec
	broadcasts         prometheus.Counter
	deliveryFailures   prometheus.Counter
	messagesPersisted  prometheus.Counter
	duplicatesRemoved  prometheus.Counter
	relayEnvelopesSeen *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_connections_active",
			Help: "Number of joined chat connections.",
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_handshakes_total",
			Help: "Chat connection handshakes by result.",
		}, []string{"result"}),
		eventsInbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_events_inbound_total",
			Help: "Inbound client events by type.",
		}, []string{"type"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_broadcasts_total",
			Help: "Events fanned out to a conversation group.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_delivery_failures_total",
			Help: "Recipients closed because their outbound queue was full or closed.",
		}),
		messagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_messages_persisted_total",
			Help: "Chat messages saved to the store.",
		}),
		duplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_duplicates_removed_total",
			Help: "Duplicate one-to-one conversations removed by reconciliation.",
		}),
		relayEnvelopesSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_relay_envelopes_total",
			Help: "Envelopes received from the cross-instance relay by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.connectionsActive,
		m.handshakes,
		m.eventsInbound,
		m.broadcasts,
		m.deliveryFailures,
		m.messagesPersisted,
		m.duplicatesRemoved,
		m.relayEnvelopesSeen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// HandshakeResult counts a handshake outcome.
func (m *Metrics) HandshakeResult(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

// InboundEvent counts an inbound event of the given type.
func (m *Metrics) InboundEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsInbound.WithLabelValues(eventType).Inc()
}

// Broadcast counts a group fan-out.
func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

// DeliveryFailure counts a recipient dropped during fan-out.
func (m *Metrics) DeliveryFailure() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

// MessagePersisted counts a saved chat message.
func (m *Metrics) MessagePersisted() {
	if m == nil {
		return
	}
	m.messagesPersisted.Inc()
}

// DuplicatesRemoved adds n removed duplicate conversations.
func (m *Metrics) DuplicatesRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicatesRemoved.Add(float64(n))
}

// RelayEnvelope counts relay envelopes by outcome: "delivered", "duplicate"
// or "publish_failed".
func (m *Metrics) RelayEnvelope(outcome string) {
	if m == nil {
		return
	}
	m.relayEnvelopesSeen.WithLabelValues(outcome).Inc()
}
