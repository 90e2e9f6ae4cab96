package metrics

import "github.com/ssjmarx/The-Gold-Box-sub002/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RegistryMetrics implementation

// RecordClientConnected discards the connect event.
func (n *NopMetrics) RecordClientConnected() {
	// No-op
}

// RecordClientDisconnected discards the disconnect event.
func (n *NopMetrics) RecordClientDisconnected(_ /* reason */ types.DisconnectReason) {
	// No-op
}

// SetConnectedClients discards the connection gauge.
func (n *NopMetrics) SetConnectedClients(_ /* count */ int) {
	// No-op
}

// RecordBroadcast discards the broadcast fan-out metric.
func (n *NopMetrics) RecordBroadcast(_ /* delivered */ int) {
	// No-op
}

// CorrelatorMetrics implementation

// RecordRequestSent discards the request counter.
func (n *NopMetrics) RecordRequestSent(_ /* kind */ string) {
	// No-op
}

// RecordRequestResolved discards the request outcome metric.
func (n *NopMetrics) RecordRequestResolved(_ /* kind */ string, _ /* outcome */ string, _ /* duration */ float64) {
	// No-op
}

// RecordStrayResult discards the stray result counter.
func (n *NopMetrics) RecordStrayResult(_ /* kind */ string) {
	// No-op
}

// SetPendingRequests discards the pending request gauge.
func (n *NopMetrics) SetPendingRequests(_ /* count */ int) {
	// No-op
}

// PresenceMetrics implementation

// RecordPresenceOperation discards the directory operation metric.
func (n *NopMetrics) RecordPresenceOperation(_ /* operation */ string, _ /* success */ bool) {
	// No-op
}

// SetDirectoryMode discards the directory mode gauge.
func (n *NopMetrics) SetDirectoryMode(_ /* localOnly */ bool) {
	// No-op
}

// SessionMetrics implementation

// RecordHandshakeCreated discards the handshake counter.
func (n *NopMetrics) RecordHandshakeCreated() {
	// No-op
}

// RecordHandshakeConsumed discards the handshake consumption metric.
func (n *NopMetrics) RecordHandshakeConsumed(_ /* outcome */ string) {
	// No-op
}

// RecordSessionStarted discards the session start metric.
func (n *NopMetrics) RecordSessionStarted(_ /* outcome */ string) {
	// No-op
}

// RecordSessionEnded discards the session end metric.
func (n *NopMetrics) RecordSessionEnded(_ /* reason */ string) {
	// No-op
}

// SetActiveSessions discards the active session gauge.
func (n *NopMetrics) SetActiveSessions(_ /* count */ int) {
	// No-op
}
