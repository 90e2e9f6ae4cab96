package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/token"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

const (
	// writeWait bounds every socket write, control frames included.
	writeWait = 10 * time.Second

	// maxFrameBytes caps inbound frames. Download results carry base64 file
	// payloads, so the cap is generous.
	maxFrameBytes = 32 << 20
)

// upgrader accepts any origin. Game clients are headless processes, not
// browser pages; the auth token is the access control.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to types.ClientConn.
//
// A mutex serializes data writes so frames reach the client in call order.
// Control frames (ping, close) go through WriteControl, which gorilla allows
// concurrently with writers, so pings are never stuck behind a slow write.
type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

var _ types.ClientConn = (*wsConn)(nil)

// WriteJSON marshals v and writes it as a single text frame.
func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("connection closed")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.conn.WriteJSON(v)
}

// Ping sends a protocol-level ping frame.
func (c *wsConn) Ping(deadline time.Time) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// Close sends a close frame with the given code, then closes the socket.
// Subsequent calls are no-ops.
func (c *wsConn) Close(code types.CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(int(code), reason)
	// Best effort; the peer may already be gone.
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))

	return c.conn.Close()
}

// IsOpen reports whether Close has not been called yet.
func (c *wsConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed
}

// handleWS upgrades a game-client connection and runs its read loop.
//
// The id and token query parameters are validated after the upgrade so the
// client receives the specific application close code instead of an opaque
// handshake failure.
func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	if r.State() != StateReady {
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		return
	}

	query := req.URL.Query()
	id := query.Get("id")
	tok := query.Get("token")

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		r.logger.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	sock := newWSConn(conn)

	if id == "" {
		_ = sock.Close(CloseNoClientID, CloseNoClientID.String())
		return
	}
	if tok == "" {
		_ = sock.Close(CloseNoAuth, CloseNoAuth.String())
		return
	}

	client := types.NewClient(id, tok, sock, metadataFromQuery(query))
	if err := r.registry.Register(client); err != nil {
		// The original connection wins; only the new socket is closed.
		_ = sock.Close(CloseDuplicateConnection, CloseDuplicateConnection.String())
		r.logger.Warn("duplicate client connection rejected", "client_id", id)
		return
	}

	conn.SetPongHandler(func(string) error {
		client.TouchLastSeen()
		return nil
	})

	r.metrics.RecordClientConnected()
	r.metrics.SetConnectedClients(r.registry.Len())
	r.publishPresence(client)
	r.logger.Info("client connected",
		"client_id", client.ID,
		"world", client.Metadata.WorldTitle,
		"system", client.Metadata.SystemID,
	)
	r.fireConnected(client)

	r.readLoop(client, conn)
}

// metadataFromQuery pulls the optional descriptive fields a game client
// announces on connect.
func metadataFromQuery(query map[string][]string) types.ClientMetadata {
	get := func(name string) string {
		if vs := query[name]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	return types.ClientMetadata{
		WorldID:        get("worldId"),
		WorldTitle:     get("worldTitle"),
		FoundryVersion: get("foundryVersion"),
		SystemID:       get("systemId"),
		SystemTitle:    get("systemTitle"),
		SystemVersion:  get("systemVersion"),
		CustomName:     get("customName"),
	}
}

// readLoop consumes frames until the socket dies, dispatching each to its
// handler. Every inbound frame counts as liveness.
//
// The deregistration race is settled by Unregister: shutdown sweep, liveness
// expiry, and this exit path all call it, and only the caller that gets the
// client back runs the disconnect side effects.
func (r *Relay) readLoop(client *types.Client, conn *websocket.Conn) {
	reason := types.DisconnectReadError

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = types.DisconnectNormal
			}
			break
		}
		client.TouchLastSeen()

		msg, err := types.ParseInbound(data)
		if err != nil {
			r.logger.Debug("malformed frame", "client_id", client.ID, "error", err)
			continue
		}

		switch m := msg.(type) {
		case *types.ResultMessage:
			// Stray results are counted and logged by the correlator.
			r.correlator.Resolve(m)
		case *types.BroadcastMessage:
			delivered := r.registry.Broadcast(client.ID, m.Payload)
			r.metrics.RecordBroadcast(delivered)
		case *types.PingMessage:
			if err := client.Conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				r.logger.Debug("pong reply failed", "client_id", client.ID, "error", err)
			}
		case *types.PongMessage:
			// Liveness already stamped above.
		case *types.UnknownMessage:
			r.logger.Debug("unhandled frame kind", "client_id", client.ID, "kind", m.Kind)
		}
	}

	if removed := r.registry.Unregister(client.ID); removed == nil {
		// Shutdown sweep or liveness expiry got here first and ran the
		// side effects already.
		return
	}

	_ = client.Conn.Close(CloseNormal, CloseNormal.String())
	r.removePresence(client)
	r.metrics.RecordClientDisconnected(reason)
	r.metrics.SetConnectedClients(r.registry.Len())
	r.logger.Info("client disconnected", "client_id", client.ID, "reason", string(reason))
	r.fireDisconnected(client, reason)
}

// publishPresence records the client in the shared directory so sibling
// instances can resolve it. Failures degrade to local-only resolution and
// are logged by the directory itself.
func (r *Relay) publishPresence(client *types.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.OperationTimeout)
	defer cancel()

	_ = r.presence.Publish(ctx, client.ID, token.Digest(client.Token))
}
