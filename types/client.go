package types

import (
	"sync/atomic"
	"time"
)

// ClientConn abstracts the WebSocket connection owned by a client.
//
// Implementations must serialize writes: frames sent to one client are
// delivered in call order. Close must be idempotent and safe to call
// concurrently with writes.
//
// The concrete gorilla-backed implementation lives in the root relay
// package; this interface keeps types free of transport dependencies and
// lets tests substitute in-memory connections.
type ClientConn interface {
	// WriteJSON marshals v and writes it as a single text frame.
	WriteJSON(v any) error

	// Ping sends a protocol-level ping frame with the given write deadline.
	Ping(deadline time.Time) error

	// Close sends a close frame with the given code and reason, then closes
	// the underlying connection. Subsequent calls are no-ops.
	Close(code CloseCode, reason string) error

	// IsOpen reports whether the connection has not been closed yet.
	IsOpen() bool
}

// ClientMetadata carries the optional descriptive fields a game client
// announces on connect. All fields may be empty.
type ClientMetadata struct {
	WorldID        string `json:"worldId,omitempty"`
	WorldTitle     string `json:"worldTitle,omitempty"`
	FoundryVersion string `json:"foundryVersion,omitempty"`
	SystemID       string `json:"systemId,omitempty"`
	SystemTitle    string `json:"systemTitle,omitempty"`
	SystemVersion  string `json:"systemVersion,omitempty"`
	CustomName     string `json:"customName,omitempty"`
}

// Client is one connected game-client process.
//
// A client is owned exclusively by the relay instance that accepted its
// socket. ID and Token are fixed at registration; LastSeen advances on
// every pong and is read by the liveness sweep.
type Client struct {
	// ID is the opaque client identifier, unique per live connection.
	ID string

	// Token is the shared auth token that groups sibling clients.
	Token string

	// Metadata holds the optional descriptive fields from the upgrade request.
	Metadata ClientMetadata

	// Conn is the write-serialized socket handle.
	Conn ClientConn

	// ConnectedAt is when the socket finished registration.
	ConnectedAt time.Time

	lastSeen atomic.Int64 // unix nanos
}

// NewClient creates a client with LastSeen initialized to now.
//
// Parameters:
//   - id: Opaque client identifier
//   - token: Auth token shared by the client's group
//   - conn: Write-serialized socket handle
//   - md: Optional descriptive metadata
//
// Returns:
//   - *Client: Initialized client
func NewClient(id, token string, conn ClientConn, md ClientMetadata) *Client {
	c := &Client{
		ID:          id,
		Token:       token,
		Metadata:    md,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	c.lastSeen.Store(time.Now().UnixNano())

	return c
}

// TouchLastSeen records activity from the client (pong or in-band message).
func (c *Client) TouchLastSeen() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the most recent activity from the client.
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Alive reports whether the socket is open and activity was seen within grace.
//
// Parameters:
//   - grace: Maximum tolerated silence since the last pong
//
// Returns:
//   - bool: true if the client should be considered live
func (c *Client) Alive(grace time.Duration) bool {
	return c.Conn.IsOpen() && time.Since(c.LastSeen()) <= grace
}

// DisconnectReason explains why a client left the registry.
type DisconnectReason string

const (
	// DisconnectNormal is a clean close initiated by the client.
	DisconnectNormal DisconnectReason = "normal"

	// DisconnectReadError is a socket read failure or abrupt drop.
	DisconnectReadError DisconnectReason = "read_error"

	// DisconnectHeartbeat is removal by the liveness sweep.
	DisconnectHeartbeat DisconnectReason = "heartbeat"

	// DisconnectShutdown is removal during relay shutdown.
	DisconnectShutdown DisconnectReason = "shutdown"
)
