package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the relay.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Relay, Registry, Correlator, Handshake, etc.)
//   - Use consistent messages across similar error types

// Relay errors - Public API errors returned by the Relay component.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAlreadyStarted is returned when Start is called on an already running relay.
	ErrAlreadyStarted = errors.New("relay already started")

	// ErrNotStarted is returned when operations require a started relay.
	ErrNotStarted = errors.New("relay not started")

	// ErrShuttingDown is returned when an operation arrives during graceful shutdown.
	ErrShuttingDown = errors.New("relay shutting down")

	// ErrConnectivity indicates a Redis connectivity issue.
	// This is used to distinguish network failures from application errors
	// and triggers local-only operation for the presence directory.
	ErrConnectivity = errors.New("connectivity issue")
)

// Registry errors - Client registry component errors.
var (
	// ErrDuplicateClient is returned when registering a client ID that already
	// has a live connection on this instance. The existing connection is left
	// untouched; the caller must reject the new socket.
	ErrDuplicateClient = errors.New("client ID already connected")

	// ErrClientNotFound is returned when a client ID has no live connection here.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientServedElsewhere is returned when the presence directory shows the
	// client connected to a different relay instance.
	ErrClientServedElsewhere = errors.New("client connected to another instance")
)

// RemoteClientError reports a client served by a different relay instance.
// It unwraps to ErrClientServedElsewhere for errors.Is checks and names
// the owning instance so the caller can be handed a routing hint.
type RemoteClientError struct {
	ClientID   string
	InstanceID string
}

func (e *RemoteClientError) Error() string {
	return fmt.Sprintf("client %s connected to instance %s", e.ClientID, e.InstanceID)
}

func (e *RemoteClientError) Unwrap() error {
	return ErrClientServedElsewhere
}

// Correlator errors - Request/response correlation component errors.
var (
	// ErrRequestTimeout is returned when a correlated request receives no
	// matching result before its deadline.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrUpstreamSend is returned when writing a request frame to the client
	// socket fails. Sends are never retried.
	ErrUpstreamSend = errors.New("failed to send request to client")
)

// Handshake errors - Session handshake and headless session component errors.
var (
	// ErrHandshakeNotFound is returned when a handshake token is unknown or
	// already consumed. Handshakes are single use.
	ErrHandshakeNotFound = errors.New("handshake not found or already used")

	// ErrHandshakeExpired is returned when a handshake record outlived its TTL.
	ErrHandshakeExpired = errors.New("handshake expired")

	// ErrAPIKeyMismatch is returned when the api key presented does not match
	// the one the handshake or session was created with.
	ErrAPIKeyMismatch = errors.New("api key mismatch")

	// ErrNonceMismatch is returned when the decrypted payload carries a nonce
	// that does not match the handshake record.
	ErrNonceMismatch = errors.New("nonce mismatch")

	// ErrDecryptFailed is returned when the encrypted credential payload cannot
	// be decrypted with the handshake private key.
	ErrDecryptFailed = errors.New("failed to decrypt credentials")

	// ErrSessionNotFound is returned when a session ID is unknown or already ended.
	ErrSessionNotFound = errors.New("session not found")

	// ErrClientWaitTimeout is returned when the headless client does not appear
	// in the registry within the session start window.
	ErrClientWaitTimeout = errors.New("timed out waiting for client connection")

	// ErrRemoteWaitTimeout is returned when a handshake owned by another
	// instance yields no start-session result within the remote wait window.
	ErrRemoteWaitTimeout = errors.New("timed out waiting for remote instance")
)

// IsTimeoutError checks if an error indicates an expired wait of any kind.
//
// Timeouts surface from several layers: the correlator's per-request timer,
// the session start window, the remote completion window, or a plain
// context deadline from a Redis or HTTP call.
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates a timeout, false otherwise
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrClientWaitTimeout) ||
		errors.Is(err, ErrRemoteWaitTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Handles wrapped third-party timeouts that don't expose a sentinel
	return strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "timed out")
}
