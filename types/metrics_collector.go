package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	RegistryMetrics
	CorrelatorMetrics
	PresenceMetrics
	SessionMetrics
}

// RegistryMetrics defines metrics for client connection bookkeeping.
type RegistryMetrics interface {
	// RecordClientConnected records a successful registration.
	RecordClientConnected()

	// RecordClientDisconnected records a deregistration with its reason.
	//
	// Parameters:
	//   - reason: Disconnect reason ("normal", "read_error", "heartbeat", "shutdown")
	RecordClientDisconnected(reason DisconnectReason)

	// SetConnectedClients sets the current live connection count (gauge metric).
	SetConnectedClients(count int)

	// RecordBroadcast records a token-group broadcast fan-out.
	//
	// Parameters:
	//   - delivered: Number of group members the frame reached
	RecordBroadcast(delivered int)
}

// CorrelatorMetrics defines metrics for REST-to-WebSocket request correlation.
type CorrelatorMetrics interface {
	// RecordRequestSent records a request frame written to a client.
	//
	// Parameters:
	//   - kind: Request kind (e.g. "roll", "download")
	RecordRequestSent(kind string)

	// RecordRequestResolved records a terminal request outcome.
	//
	// Parameters:
	//   - kind: Request kind
	//   - outcome: "result", "error", "timeout", "canceled", or "send_failure"
	//   - duration: Seconds between send and resolution
	RecordRequestResolved(kind string, outcome string, duration float64)

	// RecordStrayResult records a result frame that matched no pending request.
	RecordStrayResult(kind string)

	// SetPendingRequests sets the current in-flight request count (gauge metric).
	SetPendingRequests(count int)
}

// PresenceMetrics defines metrics for the shared presence directory.
type PresenceMetrics interface {
	// RecordPresenceOperation records one directory operation.
	//
	// Parameters:
	//   - operation: Operation type ("publish", "refresh", "remove", "resolve")
	//   - success: false when Redis failed and the call degraded to local data
	RecordPresenceOperation(operation string, success bool)

	// SetDirectoryMode reports whether the directory is distributed or local-only.
	//
	// Parameters:
	//   - localOnly: true when Redis is absent or unreachable
	SetDirectoryMode(localOnly bool)
}

// SessionMetrics defines metrics for handshakes and headless sessions.
type SessionMetrics interface {
	// RecordHandshakeCreated records a new handshake issued.
	RecordHandshakeCreated()

	// RecordHandshakeConsumed records a handshake consumption attempt.
	//
	// Parameters:
	//   - outcome: "success", "expired", "key_mismatch", "nonce_mismatch", or "decrypt_failure"
	RecordHandshakeConsumed(outcome string)

	// RecordSessionStarted records a start-session attempt reaching a terminal state.
	//
	// Parameters:
	//   - outcome: "success", "timeout", "unauthorized", or "error"
	RecordSessionStarted(outcome string)

	// RecordSessionEnded records a session teardown.
	//
	// Parameters:
	//   - reason: "api", "idle", or "shutdown"
	RecordSessionEnded(reason string)

	// SetActiveSessions sets the current headless session count (gauge metric).
	SetActiveSessions(count int)
}
