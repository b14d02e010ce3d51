package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.HandshakeResult(HandshakeAccepted)
		m.InboundEvent("message")
		m.Broadcast()
		m.DeliveryFailure()
		m.MessagePersisted()
		m.DuplicatesRemoved(3)
		m.RelayEnvelope("delivered")
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsActive))

	m.HandshakeResult(HandshakeForbidden)
	m.HandshakeResult(HandshakeForbidden)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.handshakes.WithLabelValues(HandshakeForbidden)))

	m.DuplicatesRemoved(0)
	m.DuplicatesRemoved(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.duplicatesRemoved))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.MessagePersisted()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "parley_messages_persisted_total 1"))
}
