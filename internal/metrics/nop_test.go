package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

func TestNewNop(t *testing.T) {
	metrics := NewNop()

	require.NotNil(t, metrics)
	require.IsType(t, &NopMetrics{}, metrics)
}

func TestNopMetrics_DoesNotPanic(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordClientConnected()
		metrics.RecordClientDisconnected(types.DisconnectNormal)
		metrics.RecordClientDisconnected(types.DisconnectReason("bogus"))
		metrics.SetConnectedClients(0)
		metrics.SetConnectedClients(-1)
		metrics.RecordBroadcast(7)
		metrics.RecordRequestSent("roll")
		metrics.RecordRequestResolved("roll", "timeout", -1.0)
		metrics.RecordStrayResult("")
		metrics.SetPendingRequests(3)
		metrics.RecordPresenceOperation("resolve", false)
		metrics.SetDirectoryMode(true)
		metrics.RecordHandshakeCreated()
		metrics.RecordHandshakeConsumed("nonce_mismatch")
		metrics.RecordSessionStarted("success")
		metrics.RecordSessionEnded("idle")
		metrics.SetActiveSessions(2)
	})
}

func TestPrometheusCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewPrometheus(reg, "relay_test")

	// Exercise every instrumented method twice; duplicate registration
	// would panic via MustRegister.
	for range 2 {
		collector.RecordClientConnected()
		collector.RecordClientDisconnected(types.DisconnectHeartbeat)
		collector.SetConnectedClients(4)
		collector.RecordBroadcast(2)
		collector.RecordRequestSent("roll")
		collector.RecordRequestResolved("roll", "result", 0.42)
		collector.RecordStrayResult("roll-result")
		collector.SetPendingRequests(1)
		collector.RecordPresenceOperation("publish", true)
		collector.SetDirectoryMode(false)
		collector.RecordHandshakeCreated()
		collector.RecordHandshakeConsumed("success")
		collector.RecordSessionStarted("timeout")
		collector.RecordSessionEnded("api")
		collector.SetActiveSessions(1)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["relay_test_registry_connected_clients"])
	require.True(t, names["relay_test_correlator_request_duration_seconds"])
	require.True(t, names["relay_test_presence_operations_total"])
	require.True(t, names["relay_test_session_handshakes_created_total"])
}

func TestPrometheusCollector_DefaultNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewPrometheus(reg, "")
	collector.SetConnectedClients(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "relay_registry_connected_clients", families[0].GetName())
}

func BenchmarkNopMetrics_RecordRequestSent(b *testing.B) {
	metrics := NewNop()
	for b.Loop() {
		metrics.RecordRequestSent("roll")
	}
}
