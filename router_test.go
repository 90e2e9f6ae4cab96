package relay

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/redisutil"
	"github.com/ssjmarx/The-Gold-Box-sub002/route"
	relaytest "github.com/ssjmarx/The-Gold-Box-sub002/testing"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// doJSON performs one HTTP request with an optional JSON body and decodes
// the JSON response.
func doJSON(t *testing.T, method, url string, headers map[string]string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}

	return resp.StatusCode, decoded
}

// autoRespond answers correlated requests on a game-client socket. fn
// returns the frames to write back, none to leave the request pending.
func autoRespond(conn *websocket.Conn, fn func(req map[string]any) []any) {
	go func() {
		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			for _, frame := range fn(req) {
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}
		}
	}()
}

// connectRespondingClient dials a game client that answers every correlated
// request via fn.
func connectRespondingClient(t *testing.T, r *Relay, connected chan *types.Client, query string, fn func(req map[string]any) []any) *websocket.Conn {
	t.Helper()

	conn := dialWS(t, r, query)
	waitConnected(t, connected)
	autoRespond(conn, fn)

	return conn
}

func TestRouter_RollRoundTrip(t *testing.T) {
	hooks, connected, _ := clientHooks()
	r := startTestRelay(t, slowHeartbeatConfig(), WithHooks(hooks))

	requests := make(chan map[string]any, 1)
	conn := dialWS(t, r, "id=c1&token=tok1")
	waitConnected(t, connected)
	autoRespond(conn, func(req map[string]any) []any {
		select {
		case requests <- req:
		default:
		}
		return []any{map[string]any{
			"type":      "roll-result",
			"requestId": req["requestId"],
			"result":    map[string]any{"total": 14},
		}}
	})

	status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "c1",
		"formula":  "2d6+3",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "roll-result", body["type"])

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(14), result["total"])
	require.Equal(t, 0, r.correlator.Outstanding())

	// The 200 means the round trip finished, so the relayed frame is
	// already buffered.
	sent := <-requests
	require.Equal(t, "roll", sent["type"])
	require.NotEmpty(t, sent["requestId"])
	require.Equal(t, "2d6+3", sent["formula"])
	// clientId is routing metadata and must not reach the client.
	require.NotContains(t, sent, "clientId")
}

func TestRouter_ValidationErrors(t *testing.T) {
	r := startTestRelay(t, slowHeartbeatConfig())
	base := "http://" + r.Addr()

	t.Run("missing required parameter", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, base+"/api/roll", nil, map[string]any{
			"clientId": "c1",
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "missing required parameter: formula", body["error"])
	})

	t.Run("type mismatch", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, base+"/api/roll", nil, map[string]any{
			"clientId": "c1",
			"formula":  123,
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "parameter formula must be a string", body["error"])
	})

	t.Run("boolean coercion from the query string", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, base+"/api/roll?createChatMessage=yes", nil, map[string]any{
			"clientId": "c1",
			"formula":  "1d6",
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "parameter createChatMessage must be a boolean", body["error"])
	})

	t.Run("forbidden macro script", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, base+"/api/macro", nil, map[string]any{
			"clientId": "c1",
			"script":   "fetch('https://evil.example')",
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Contains(t, body["error"], "forbidden call")
	})

	t.Run("malformed json body", func(t *testing.T) {
		resp, err := http.Post(base+"/api/roll", "application/json", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRouter_UnknownClient(t *testing.T) {
	r := startTestRelay(t, slowHeartbeatConfig())

	status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "missing",
		"formula":  "1d4",
	})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Invalid client ID", body["error"])
}

func TestRouter_RequestTimeoutAndLateResult(t *testing.T) {
	cfg := slowHeartbeatConfig()
	cfg.RequestTimeout = 300 * time.Millisecond

	hooks, connected, _ := clientHooks()
	r := startTestRelay(t, cfg, WithHooks(hooks))

	// The responder forwards every frame and answers none, so the relay's
	// window runs out. One reader goroutine owns the socket for the whole
	// test; the pong to the in-band ping below arrives on the same channel.
	frames := make(chan map[string]any, 4)
	conn := dialWS(t, r, "id=c1&token=tok1")
	waitConnected(t, connected)
	autoRespond(conn, func(req map[string]any) []any {
		frames <- req
		return nil
	})

	status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "c1",
		"formula":  "1d20",
	})
	require.Equal(t, http.StatusRequestTimeout, status)
	require.Equal(t, "Request timed out", body["error"])
	require.Equal(t, 0, r.correlator.Outstanding())

	var relayed map[string]any
	select {
	case relayed = <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the client")
	}
	require.Equal(t, "roll", relayed["type"])
	requestID, _ := relayed["requestId"].(string)
	require.NotEmpty(t, requestID)

	// A result arriving after the timeout is dropped without disturbing
	// anything; the relay keeps serving.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":      "roll-result",
		"requestId": requestID,
		"result":    map[string]any{"total": 20},
	}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	select {
	case frame := <-frames:
		require.Equal(t, "pong", frame["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("relay stopped answering after the late result")
	}
	require.Equal(t, 0, r.correlator.Outstanding())
}

func TestRouter_UpstreamErrorMapsTo400(t *testing.T) {
	hooks, connected, _ := clientHooks()
	r := startTestRelay(t, slowHeartbeatConfig(), WithHooks(hooks))

	connectRespondingClient(t, r, connected, "id=c1&token=tok1", func(req map[string]any) []any {
		return []any{map[string]any{
			"type":      "roll-result",
			"requestId": req["requestId"],
			"error":     "invalid formula",
		}}
	})

	status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "c1",
		"formula":  "nonsense",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid formula", body["error"])
}

func TestRouter_ActorSheet(t *testing.T) {
	hooks, connected, _ := clientHooks()
	r := startTestRelay(t, slowHeartbeatConfig(), WithHooks(hooks))

	connectRespondingClient(t, r, connected, "id=c1&token=tok1", func(req map[string]any) []any {
		if req["type"] != "actor-sheet" {
			return nil
		}
		// A render for a different entity must not satisfy the request.
		return []any{
			map[string]any{
				"type":      "actor-sheet-result",
				"requestId": req["requestId"],
				"uuid":      "Actor.other",
				"html":      "<div>wrong sheet</div>",
			},
			map[string]any{
				"type":      "actor-sheet-result",
				"requestId": req["requestId"],
				"uuid":      req["uuid"],
				"html":      "<div>sheet</div>",
			},
		}
	})

	t.Run("uuid-matched correlation", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/actor-sheet", nil, map[string]any{
			"clientId": "c1",
			"uuid":     "Actor.abc",
		})
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "Actor.abc", body["uuid"])
	})

	t.Run("html format returns a page", func(t *testing.T) {
		raw, err := json.Marshal(map[string]any{
			"clientId": "c1",
			"uuid":     "Actor.abc",
			"format":   "html",
		})
		require.NoError(t, err)

		resp, err := http.Post("http://"+r.Addr()+"/api/actor-sheet", "application/json", bytes.NewReader(raw))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

		page, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "<div>sheet</div>", string(page))
	})

	t.Run("invalid format rejected", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/actor-sheet", nil, map[string]any{
			"clientId": "c1",
			"uuid":     "Actor.abc",
			"format":   "pdf",
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "format must be html or json", body["error"])
	})
}

func TestRouter_SanitizedResponse(t *testing.T) {
	hooks, connected, _ := clientHooks()
	r := startTestRelay(t, slowHeartbeatConfig(), WithHooks(hooks))

	connectRespondingClient(t, r, connected, "id=c1&token=tok1", func(req map[string]any) []any {
		return []any{map[string]any{
			"type":      "roll-result",
			"requestId": req["requestId"],
			"apiKey":    "secret-key",
			"password":  "hunter2",
			"world": map[string]any{
				"privateKey": "pem",
				"name":       "Barovia",
			},
		}}
	})

	status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "c1",
		"formula":  "1d6",
	})
	require.Equal(t, http.StatusOK, status)
	require.NotContains(t, body, "apiKey")
	require.NotContains(t, body, "password")

	world, ok := body["world"].(map[string]any)
	require.True(t, ok)
	require.NotContains(t, world, "privateKey")
	require.Equal(t, "Barovia", world["name"])
}

func TestRouter_NotServedHere(t *testing.T) {
	_, redisClient := relaytest.StartMiniRedis(t)

	hooksA, connectedA, _ := clientHooks()
	rA := startTestRelay(t, slowHeartbeatConfig(), WithHooks(hooksA), WithRedisClient(redisClient))
	rB := startTestRelay(t, slowHeartbeatConfig(), WithRedisClient(redisClient))

	dialWS(t, rA, "id=c1&token=tok1")
	waitConnected(t, connectedA)

	status, body := doJSON(t, http.MethodPost, "http://"+rB.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "c1",
		"formula":  "1d6",
	})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Client not served here", body["error"])
	require.Equal(t, rA.InstanceID(), body["instanceId"])
}

func TestRelay_LocateClient(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id yields the not-found sentinel", func(t *testing.T) {
		r := startTestRelay(t, TestConfig())

		_, err := r.locateClient(ctx, "ghost")
		require.ErrorIs(t, err, ErrClientNotFound)
	})

	t.Run("sibling ownership yields the remote sentinel", func(t *testing.T) {
		_, redisClient := relaytest.StartMiniRedis(t)
		r := startTestRelay(t, TestConfig(), WithRedisClient(redisClient))

		require.NoError(t, redisClient.Set(ctx, redisutil.PresenceClientKey("c9"), "relay-other", time.Minute).Err())

		_, err := r.locateClient(ctx, "c9")
		require.ErrorIs(t, err, ErrClientServedElsewhere)

		var remote *RemoteClientError
		require.ErrorAs(t, err, &remote)
		require.Equal(t, "relay-other", remote.InstanceID)
		require.Equal(t, "c9", remote.ClientID)
	})
}

func TestStartSessionStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"consumed handshake", types.ErrHandshakeNotFound, http.StatusUnauthorized},
		{"expired handshake", types.ErrHandshakeExpired, http.StatusUnauthorized},
		{"key mismatch", types.ErrAPIKeyMismatch, http.StatusUnauthorized},
		{"nonce mismatch", types.ErrNonceMismatch, http.StatusUnauthorized},
		{"decrypt failure", types.ErrDecryptFailed, http.StatusUnauthorized},
		{"client wait window", types.ErrClientWaitTimeout, http.StatusGatewayTimeout},
		{"remote wait window", types.ErrRemoteWaitTimeout, http.StatusGatewayTimeout},
		{"redis deadline underneath", fmt.Errorf("park start attempt: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"anything else", errors.New("browser start: no usable browser"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, startSessionStatus(tc.err))
		})
	}
}

func TestRouter_MountedCustomRoute(t *testing.T) {
	hooks, connected, _ := clientHooks()

	browser := &fakeBrowser{userID: "u1"}
	r, err := New(TestConfig(), WithBrowser(browser), WithHooks(hooks))
	require.NoError(t, err)
	require.NoError(t, r.Mount(route.Spec{
		Kind: "scene-list",
		Required: []route.Param{
			{Name: "clientId", From: []route.Source{route.SourceQuery, route.SourceBody}, Type: route.TypeString},
		},
	}))
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})

	connectRespondingClient(t, r, connected, "id=c1&token=tok1", func(req map[string]any) []any {
		if req["type"] != "scene-list" {
			return nil
		}
		return []any{map[string]any{
			"type":      "scene-list-result",
			"requestId": req["requestId"],
			"scenes":    []any{"Docks", "Castle"},
		}}
	})

	status, body := doJSON(t, http.MethodPost, "http://"+r.Addr()+"/api/scene-list?clientId=c1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []any{"Docks", "Castle"}, body["scenes"])
}

// encryptSessionPayload does what the browser-side caller does: encrypt
// {password, nonce} against the handshake public key.
func encryptSessionPayload(t *testing.T, publicPEM, password, nonce string) string {
	t.Helper()

	block, _ := pem.Decode([]byte(publicPEM))
	require.NotNil(t, block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok)

	plain, err := json.Marshal(map[string]string{"password": password, "nonce": nonce})
	require.NoError(t, err)

	cipher, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, plain, nil)
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(cipher)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	hooks, connected, _ := clientHooks()
	browser := &fakeBrowser{userID: "u1"}
	r := startTestRelay(t, slowHeartbeatConfig(), WithHooks(hooks), WithBrowser(browser))
	base := "http://" + r.Addr()
	key := map[string]string{"x-api-key": "key1"}

	// The headless login produces a client that connects like any other,
	// with the api key as its token.
	dialWS(t, r, "id=foundry-u1&token=key1")
	waitConnected(t, connected)

	status, hs := doJSON(t, http.MethodPost, base+"/session-handshake", key, map[string]any{
		"foundryUrl": "http://game.internal:30000",
		"worldName":  "barovia",
		"username":   "gm",
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, hs["token"])
	require.NotEmpty(t, hs["publicKey"])
	require.NotEmpty(t, hs["nonce"])

	encrypted := encryptSessionPayload(t, hs["publicKey"].(string), "hunter2", hs["nonce"].(string))

	status, started := doJSON(t, http.MethodPost, base+"/start-session", key, map[string]any{
		"handshakeToken":    hs["token"],
		"encryptedPassword": encrypted,
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, started["success"])
	require.Equal(t, "foundry-u1", started["clientId"])
	sessionID, _ := started["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	t.Run("handshake is single use", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, base+"/start-session", key, map[string]any{
			"handshakeToken":    hs["token"],
			"encryptedPassword": encrypted,
		})
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, false, body["success"])
	})

	t.Run("session listing", func(t *testing.T) {
		status, body := doJSON(t, http.MethodGet, base+"/session", key, nil)
		require.Equal(t, http.StatusOK, status)

		sessions, ok := body["sessions"].([]any)
		require.True(t, ok)
		require.Len(t, sessions, 1)

		info, ok := sessions[0].(map[string]any)
		require.True(t, ok)
		require.Equal(t, sessionID, info["sessionId"])
		require.Equal(t, "foundry-u1", info["clientId"])
	})

	t.Run("only the owning key may end the session", func(t *testing.T) {
		status, _ := doJSON(t, http.MethodDelete, base+"/end-session?sessionId="+sessionID,
			map[string]string{"x-api-key": "key2"}, nil)
		require.Equal(t, http.StatusForbidden, status)
	})

	t.Run("end and idempotent re-end", func(t *testing.T) {
		status, body := doJSON(t, http.MethodDelete, base+"/end-session?sessionId="+sessionID, key, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, true, body["success"])
		require.True(t, browser.handle(0).closed.Load())

		status, body = doJSON(t, http.MethodDelete, base+"/end-session?sessionId="+sessionID, key, nil)
		require.Equal(t, http.StatusNotFound, status)
		require.Equal(t, false, body["success"])
	})
}

func TestRouter_StartSessionRejectsWrongKey(t *testing.T) {
	r := startTestRelay(t, slowHeartbeatConfig())
	base := "http://" + r.Addr()

	status, hs := doJSON(t, http.MethodPost, base+"/session-handshake",
		map[string]string{"x-api-key": "key1"}, map[string]any{
			"foundryUrl": "http://game.internal:30000",
			"username":   "gm",
		})
	require.Equal(t, http.StatusOK, status)

	encrypted := encryptSessionPayload(t, hs["publicKey"].(string), "hunter2", hs["nonce"].(string))

	// Consumption with a mismatched key fails and burns the handshake.
	status, _ = doJSON(t, http.MethodPost, base+"/start-session",
		map[string]string{"x-api-key": "key2"}, map[string]any{
			"handshakeToken":    hs["token"],
			"encryptedPassword": encrypted,
		})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, http.MethodPost, base+"/start-session",
		map[string]string{"x-api-key": "key1"}, map[string]any{
			"handshakeToken":    hs["token"],
			"encryptedPassword": encrypted,
		})
	require.Equal(t, http.StatusUnauthorized, status)
}
