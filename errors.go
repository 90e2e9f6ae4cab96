package relay

import "github.com/ssjmarx/The-Gold-Box-sub002/types"

// Sentinel errors returned by the Relay.
//
// These alias the types subpackage definitions so errors.Is matches the
// same values whether callers import the root package or types directly.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrAlreadyStarted is returned when Start is called on a running relay.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when Stop is called on a relay that hasn't been started.
	ErrNotStarted = types.ErrNotStarted

	// ErrShuttingDown is returned when an operation arrives during shutdown.
	ErrShuttingDown = types.ErrShuttingDown

	// ErrDuplicateClient is returned when a client ID is already connected here.
	ErrDuplicateClient = types.ErrDuplicateClient

	// ErrClientNotFound is returned when a client ID is connected nowhere.
	ErrClientNotFound = types.ErrClientNotFound

	// ErrClientServedElsewhere is returned when a client ID is connected to
	// a different relay instance.
	ErrClientServedElsewhere = types.ErrClientServedElsewhere

	// ErrRequestTimeout is returned when a relayed request's correlation
	// window elapses without a client result.
	ErrRequestTimeout = types.ErrRequestTimeout

	// ErrUpstreamSend is returned when writing a request to the client
	// socket fails.
	ErrUpstreamSend = types.ErrUpstreamSend

	// ErrHandshakeNotFound is returned when a session token is unknown or
	// already consumed.
	ErrHandshakeNotFound = types.ErrHandshakeNotFound

	// ErrHandshakeExpired is returned when a session token outlived its TTL.
	ErrHandshakeExpired = types.ErrHandshakeExpired

	// ErrAPIKeyMismatch is returned when a session operation presents the
	// wrong API key.
	ErrAPIKeyMismatch = types.ErrAPIKeyMismatch

	// ErrNonceMismatch is returned when decrypted credentials carry a nonce
	// that does not match the handshake.
	ErrNonceMismatch = types.ErrNonceMismatch

	// ErrDecryptFailed is returned when an encrypted payload cannot be
	// decrypted with the handshake's private key.
	ErrDecryptFailed = types.ErrDecryptFailed

	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = types.ErrSessionNotFound

	// ErrClientWaitTimeout is returned when the headless client never
	// connects after login.
	ErrClientWaitTimeout = types.ErrClientWaitTimeout

	// ErrRemoteWaitTimeout is returned when the instance owning a handshake
	// never serves a parked start attempt.
	ErrRemoteWaitTimeout = types.ErrRemoteWaitTimeout
)
