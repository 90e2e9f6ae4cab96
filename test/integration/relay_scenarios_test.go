package integration_test

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
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	relay "github.com/ssjmarx/The-Gold-Box-sub002"
	relaytest "github.com/ssjmarx/The-Gold-Box-sub002/testing"
)

// startRelay boots a relay on an ephemeral port and stops it with the test.
func startRelay(t *testing.T, cfg relay.Config, opts ...relay.Option) *relay.Relay {
	t.Helper()

	r, err := relay.New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})

	return r
}

// slowHeartbeat loosens liveness timings so clients that idle between
// assertions are not expired mid-test.
func slowHeartbeat() relay.Config {
	cfg := relay.TestConfig()
	cfg.Heartbeat.Interval = time.Second
	cfg.Heartbeat.Grace = 5 * time.Second
	cfg.Heartbeat.SweepInterval = time.Second
	cfg.PresenceTTL = 10 * time.Second

	return cfg
}

func connectHooks() (*relay.Hooks, chan *relay.Client) {
	connected := make(chan *relay.Client, 8)
	hooks := &relay.Hooks{
		OnClientConnected: func(_ context.Context, c *relay.Client) error {
			connected <- c
			return nil
		},
	}

	return hooks, connected
}

func awaitClient(t *testing.T, ch <-chan *relay.Client) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client registration")
	}
}

type httpOutcome struct {
	status int
	body   map[string]any
	err    error
}

// postJSON performs one request without touching testing.T, so storm workers
// can run it from their own goroutines.
func postJSON(method, url string, headers map[string]string, body any) httpOutcome {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return httpOutcome{err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return httpOutcome{err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return httpOutcome{err: err}
	}
	defer resp.Body.Close()

	out := httpOutcome{status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		out.err = err
		return out
	}
	if len(raw) > 0 {
		out.err = json.Unmarshal(raw, &out.body)
	}

	return out
}

func doJSON(t *testing.T, method, url string, headers map[string]string, body any) (int, map[string]any) {
	t.Helper()

	out := postJSON(method, url, headers, body)
	require.NoError(t, out.err)

	return out.status, out.body
}

// gameClient plays the browser-side plugin: it answers correlated requests
// when respond is set, records broadcast frames, forwards unanswered request
// frames, and reports its terminal read error.
type gameClient struct {
	id         string
	conn       *websocket.Conn
	requests   chan map[string]any
	broadcasts chan map[string]any
	readErr    chan error
}

func dialGameClient(t *testing.T, r *relay.Relay, id, token string, respond bool) *gameClient {
	t.Helper()

	url := "ws://" + r.Addr() + "/relay?id=" + id + "&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	gc := &gameClient{
		id:         id,
		conn:       conn,
		requests:   make(chan map[string]any, 4),
		broadcasts: make(chan map[string]any, 4),
		readErr:    make(chan error, 1),
	}

	go func() {
		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				gc.readErr <- err
				return
			}
			if requestID, ok := frame["requestId"].(string); ok {
				if respond {
					_ = conn.WriteJSON(map[string]any{
						"type":      "roll-result",
						"requestId": requestID,
						"servedBy":  id,
					})
					continue
				}
				select {
				case gc.requests <- frame:
				default:
				}
				continue
			}
			if frame["type"] == "broadcast" {
				select {
				case gc.broadcasts <- frame:
				default:
				}
			}
		}
	}()

	return gc
}

// TestIntegration_MixedWorkloadAcrossTokenGroups verifies concurrent REST
// traffic and group broadcasts share one relay without interference.
//
// Scenario:
//   - Four clients connect: c1, c2, c4 share a token, c3 holds another
//   - Twelve REST rolls run concurrently across c1, c2, c3
//   - c4 fans a broadcast out to its token group
//
// Expected Behavior:
//   - Every roll resolves 200 against exactly the addressed client
//   - The broadcast reaches c1 and c2 only: not c3, not the sender
//   - The token listing agrees with broadcast membership
func TestIntegration_MixedWorkloadAcrossTokenGroups(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	t.Parallel()

	hooks, connected := connectHooks()
	r := startRelay(t, slowHeartbeat(), relay.WithHooks(hooks))

	c1 := dialGameClient(t, r, "c1", "groupA", true)
	c2 := dialGameClient(t, r, "c2", "groupA", true)
	c3 := dialGameClient(t, r, "c3", "groupB", true)
	c4 := dialGameClient(t, r, "c4", "groupA", false)
	for range 4 {
		awaitClient(t, connected)
	}

	targets := []string{"c1", "c2", "c3"}
	const perTarget = 4
	outcomes := make([]httpOutcome, len(targets)*perTarget)

	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = postJSON(http.MethodPost, "http://"+r.Addr()+"/api/roll", nil, map[string]any{
				"clientId": targets[i%len(targets)],
				"formula":  "1d20",
			})
		}(i)
	}
	wg.Wait()

	for i, out := range outcomes {
		require.NoError(t, out.err)
		require.Equal(t, http.StatusOK, out.status)
		require.Equal(t, targets[i%len(targets)], out.body["servedBy"])
	}

	require.NoError(t, c4.conn.WriteJSON(map[string]any{"type": "broadcast", "event": "combat-start"}))

	for _, gc := range []*gameClient{c1, c2} {
		select {
		case frame := <-gc.broadcasts:
			require.Equal(t, "combat-start", frame["event"])
		case <-time.After(2 * time.Second):
			t.Fatalf("client %s never saw the broadcast", gc.id)
		}
	}

	select {
	case frame := <-c3.broadcasts:
		t.Fatalf("broadcast crossed token groups: %v", frame)
	case frame := <-c4.broadcasts:
		t.Fatalf("sender received its own broadcast: %v", frame)
	case <-time.After(200 * time.Millisecond):
	}

	status, body := doJSON(t, http.MethodGet, "http://"+r.Addr()+"/clients?token=groupA", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.ElementsMatch(t, []any{"c1", "c2", "c4"}, body["clients"])
}

// TestIntegration_PresenceRoutingAcrossInstances verifies the shared
// directory routes callers toward the instance serving their client.
//
// Scenario:
//   - Two relay instances share one Redis
//   - A client connects to instance A
//   - REST calls for that client land on instance B
//   - Instance A stops gracefully
//
// Expected Behavior:
//   - Both instances report distributed mode
//   - B answers 404 with A's instance id while A serves the client
//   - After A's graceful stop the hint is gone, not stale
func TestIntegration_PresenceRoutingAcrossInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	t.Parallel()

	_, redisClient := relaytest.StartMiniRedis(t)

	hooks, connected := connectHooks()
	rA := startRelay(t, slowHeartbeat(), relay.WithHooks(hooks), relay.WithRedisClient(redisClient))
	rB := startRelay(t, slowHeartbeat(), relay.WithRedisClient(redisClient))

	for _, r := range []*relay.Relay{rA, rB} {
		status, body := doJSON(t, http.MethodGet, "http://"+r.Addr()+"/healthz", nil, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "distributed", body["mode"])
	}

	dialGameClient(t, rA, "c1", "tok1", true)
	awaitClient(t, connected)

	status, body := doJSON(t, http.MethodPost, "http://"+rB.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "c1",
		"formula":  "1d6",
	})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Client not served here", body["error"])
	require.Equal(t, rA.InstanceID(), body["instanceId"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rA.Stop(ctx))

	status, body = doJSON(t, http.MethodPost, "http://"+rB.Addr()+"/api/roll", nil, map[string]any{
		"clientId": "c1",
		"formula":  "1d6",
	})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Invalid client ID", body["error"])
}

// TestIntegration_GracefulShutdownUnderLoad verifies Stop drains in-flight
// REST work and closes every client socket with the shutdown code.
//
// Scenario:
//   - Three clients connect; none answers requests
//   - One REST roll parks waiting for a result
//   - Stop runs while the request is parked
//
// Expected Behavior:
//   - Stop returns without error inside its deadline
//   - The parked caller gets its 408, not a dropped connection
//   - Every client observes close code 4005
//   - The registry is empty afterwards
func TestIntegration_GracefulShutdownUnderLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	t.Parallel()

	cfg := slowHeartbeat()
	cfg.RequestTimeout = 300 * time.Millisecond

	hooks, connected := connectHooks()
	r := startRelay(t, cfg, relay.WithHooks(hooks))

	clients := make([]*gameClient, 0, 3)
	for i := range 3 {
		clients = append(clients, dialGameClient(t, r, fmt.Sprintf("c%d", i), "tok1", false))
	}
	for range 3 {
		awaitClient(t, connected)
	}

	resultCh := make(chan httpOutcome, 1)
	go func() {
		resultCh <- postJSON(http.MethodPost, "http://"+r.Addr()+"/api/roll", nil, map[string]any{
			"clientId": "c0",
			"formula":  "1d20",
		})
	}()

	select {
	case <-clients[0].requests:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.Equal(t, relay.StateShutdown, r.State())
	require.Equal(t, 0, r.ConnectedClients())

	select {
	case out := <-resultCh:
		require.NoError(t, out.err)
		require.Equal(t, http.StatusRequestTimeout, out.status)
		require.Equal(t, "Request timed out", out.body["error"])
	case <-time.After(2 * time.Second):
		t.Fatal("parked caller never got a response")
	}

	for _, gc := range clients {
		select {
		case err := <-gc.readErr:
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			require.Equal(t, 4005, closeErr.Code)
		case <-time.After(2 * time.Second):
			t.Fatalf("client %s never saw the shutdown close", gc.id)
		}
	}
}

type fakeHandle struct {
	userID string
	closed atomic.Bool
}

func (h *fakeHandle) UserID() string { return h.userID }

func (h *fakeHandle) Close(context.Context) error {
	h.closed.Store(true)
	return nil
}

type fakeBrowser struct {
	mu      sync.Mutex
	userID  string
	handles []*fakeHandle
}

func (b *fakeBrowser) Start(_ context.Context, _ relay.BrowserCredentials) (relay.BrowserHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := &fakeHandle{userID: b.userID}
	b.handles = append(b.handles, h)

	return h, nil
}

func encryptCredentials(t *testing.T, publicPEM, password, nonce string) string {
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

// TestIntegration_CrossInstanceSessionStart verifies a start attempt landing
// on the wrong instance is served by the handshake's owner.
//
// Scenario:
//   - Two relay instances share one Redis
//   - The handshake is created on A; its private key never leaves A
//   - The headless client connects to A
//   - POST /start-session lands on B
//
// Expected Behavior:
//   - B parks the attempt; A decrypts, launches, and publishes the outcome
//   - B answers 200 with the session and client ids
//   - The session lives on A only, and ending it closes the browser handle
func TestIntegration_CrossInstanceSessionStart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	t.Parallel()

	_, redisClient := relaytest.StartMiniRedis(t)

	browser := &fakeBrowser{userID: "gm1"}
	hooks, connected := connectHooks()
	rA := startRelay(t, slowHeartbeat(),
		relay.WithHooks(hooks),
		relay.WithRedisClient(redisClient),
		relay.WithBrowser(browser),
	)
	rB := startRelay(t, slowHeartbeat(), relay.WithRedisClient(redisClient))

	key := map[string]string{"x-api-key": "key1"}

	status, hs := doJSON(t, http.MethodPost, "http://"+rA.Addr()+"/session-handshake", key, map[string]any{
		"foundryUrl": "http://game.internal:30000",
		"worldName":  "barovia",
		"username":   "gm",
	})
	require.Equal(t, http.StatusOK, status)

	dialGameClient(t, rA, "foundry-gm1", "key1", true)
	awaitClient(t, connected)

	encrypted := encryptCredentials(t, hs["publicKey"].(string), "hunter2", hs["nonce"].(string))

	status, started := doJSON(t, http.MethodPost, "http://"+rB.Addr()+"/start-session", key, map[string]any{
		"handshakeToken":    hs["token"],
		"encryptedPassword": encrypted,
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, started["success"])
	require.Equal(t, "foundry-gm1", started["clientId"])

	status, body := doJSON(t, http.MethodGet, "http://"+rA.Addr()+"/session", key, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["sessions"], 1)

	status, body = doJSON(t, http.MethodGet, "http://"+rB.Addr()+"/session", key, nil)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, body["sessions"])

	sessionID, _ := started["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	status, _ = doJSON(t, http.MethodDelete, "http://"+rA.Addr()+"/end-session?sessionId="+sessionID, key, nil)
	require.Equal(t, http.StatusOK, status)

	browser.mu.Lock()
	require.Len(t, browser.handles, 1)
	handle := browser.handles[0]
	browser.mu.Unlock()
	require.True(t, handle.closed.Load())
}
