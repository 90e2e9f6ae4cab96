package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/correlate"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/handshake"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/headless"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/heartbeat"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/hooks"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/logging"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/metrics"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/presence"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/redisutil"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/registry"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/token"
	"github.com/ssjmarx/The-Gold-Box-sub002/route"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// Relay bridges REST callers to game-client processes connected over
// WebSocket.
//
// Relay is the main entry point of the library. It handles:
//   - WebSocket client registration with token-based grouping
//   - REST-to-WebSocket request correlation with per-request timeouts
//   - Cross-instance client presence through a shared Redis directory
//   - Encrypted session handshakes and headless browser logins
//   - Heartbeat-driven liveness detection and expiry
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - State transitions are atomic and linearizable
//
// Lifecycle:
//   - Create with New()
//   - Call Start() to connect Redis, begin monitoring, and serve HTTP
//   - Use hooks to react to client connects and disconnects
//   - Call Stop() for graceful shutdown
type Relay struct {
	cfg Config

	// Optional dependencies
	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger
	browser Browser

	// Internal components
	registry   *registry.Registry
	correlator *correlate.Correlator
	presence   *presence.Directory
	monitor    *heartbeat.Monitor
	sessions   *handshake.Service

	// Route table, frozen once Start builds the router
	routes map[string]route.Spec

	// Redis connection; nil in local-only mode
	redisClient *redis.Client
	ownsRedis   bool

	// HTTP surface, built by Start
	router     http.Handler
	httpServer *http.Server
	listener   net.Listener

	// State management
	state atomic.Int32 // State

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// New creates a new Relay instance with the provided configuration.
//
// Returns a concrete *Relay struct following the "accept interfaces,
// return structs" principle. Consumers can define their own interfaces
// for testing if needed.
//
// Parameters:
//   - cfg: Runtime configuration with parsed durations
//   - opts: Optional configuration (hooks, metrics, logger, browser, redis client)
//
// Returns:
//   - *Relay: Initialized relay instance
//   - error: Validation error if configuration is invalid
//
// Example:
//
//	cfg := relay.DefaultConfig()
//	cfg.Redis.Addr = "127.0.0.1:6379"
//	r, err := relay.New(cfg, relay.WithLogger(logger))
func New(cfg Config, opts ...Option) (*Relay, error) {
	// Fill in missing configuration values with defaults
	SetDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = "relay-" + uuid.NewString()[:8]
	}

	// Apply options
	options := &relayOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Provide safe defaults for optional dependencies to avoid nil checks everywhere
	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	// Validate with warnings after logger is available
	cfg.ValidateWithWarnings(loggerInstance)

	hooksInstance := options.hooks
	if hooksInstance == nil {
		nopHooks := hooks.NewNop()
		hooksInstance = &nopHooks
	}

	browserInstance := options.browser
	if browserInstance == nil {
		chrome := headless.NewChrome(headless.ChromeConfig{
			ExecPath:     cfg.Headless.ExecPath,
			Headful:      cfg.Headless.Headful,
			NoSandbox:    cfg.Headless.NoSandbox,
			LoginTimeout: cfg.Headless.LoginTimeout,
		})
		chrome.SetLogger(loggerInstance)
		browserInstance = chrome
	}

	r := &Relay{
		cfg:         cfg,
		hooks:       hooksInstance,
		metrics:     metricsCollector,
		logger:      loggerInstance,
		browser:     browserInstance,
		registry:    registry.New(),
		correlator:  correlate.New(cfg.RequestTimeout),
		routes:      make(map[string]route.Spec),
		redisClient: options.redisClient,
	}

	r.correlator.SetLogger(loggerInstance)
	r.correlator.SetMetrics(metricsCollector)

	for _, spec := range route.Builtin() {
		r.routes[spec.Kind] = spec
	}

	// Initialize state
	r.state.Store(int32(StateInit))

	return r, nil
}

// Mount registers a correlated route served at POST /api/{kind}.
//
// Built-in routes are mounted by construction; Mount replaces a built-in
// when the kind collides. Must be called before Start.
//
// Parameters:
//   - spec: Route specification
//
// Returns:
//   - error: ErrAlreadyStarted if the relay is running, or a spec problem
func (r *Relay) Mount(spec route.Spec) error {
	if spec.Kind == "" {
		return fmt.Errorf("%w: route kind must not be empty", ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return ErrAlreadyStarted
	}
	r.routes[spec.Kind] = spec

	return nil
}

// Start connects the shared store, starts background monitoring, and
// serves the REST and WebSocket surface on the configured address.
//
// A Redis deployment that is configured but unreachable downgrades the
// relay to local-only mode with a warning; it never fails startup.
//
// Parameters:
//   - ctx: Context bounding startup work (Redis dial, presence announce)
//
// Returns:
//   - error: ErrAlreadyStarted, listener failure, or component startup failure
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.ctx != nil {
		r.mu.Unlock()

		return ErrAlreadyStarted
	}

	// Create relay context with parent
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	r.transitionState(r.State(), StateStarting)

	// Step 1: Shared store. Unreachable Redis means local-only, not failure.
	r.connectRedis(ctx)

	directory := presence.New(r.redisClient, r.cfg.InstanceID, r.cfg.PresenceTTL)
	directory.SetLogger(r.logger)
	directory.SetMetrics(r.metrics)
	directory.SetOperationTimeout(r.cfg.OperationTimeout)
	r.metrics.SetDirectoryMode(directory.LocalOnly())

	if err := directory.AnnounceInstance(ctx); err != nil {
		r.logger.Warn("failed to announce instance in presence directory", "error", err)
	}

	r.mu.Lock()
	r.presence = directory
	r.mu.Unlock()

	// Step 2: Liveness monitoring.
	monitor := heartbeat.NewMonitor(
		r.registry,
		r.cfg.Heartbeat.Interval,
		r.cfg.Heartbeat.Grace,
		r.cfg.Heartbeat.SweepInterval,
	)
	monitor.SetLogger(r.logger)
	monitor.SetMetrics(r.metrics)
	monitor.SetExpireHandler(r.onClientExpired)
	monitor.SetRefreshHandler(r.onPresenceRefresh)
	if err := monitor.Start(); err != nil {
		return fmt.Errorf("failed to start heartbeat monitor: %w", err)
	}

	r.mu.Lock()
	r.monitor = monitor
	r.mu.Unlock()

	// Step 3: Session handshakes and the remote-start listener.
	sessions := handshake.NewService(handshake.Config{
		InstanceID:         r.cfg.InstanceID,
		HandshakeTTL:       r.cfg.Handshake.TTL,
		StartTimeout:       r.cfg.Handshake.StartTimeout,
		ClientPollInterval: r.cfg.Handshake.ClientPollInterval,
		RemoteWaitTimeout:  r.cfg.Handshake.RemoteWaitTimeout,
		RemotePollInterval: r.cfg.Handshake.RemotePollInterval,
		IdleTimeout:        r.cfg.Handshake.IdleTimeout,
		ReapInterval:       r.cfg.Handshake.ReapInterval,
		OperationTimeout:   r.cfg.OperationTimeout,
	}, r.redisClient, r.browser, r.registry)
	sessions.SetLogger(r.logger)
	sessions.SetMetrics(r.metrics)
	if err := sessions.Start(); err != nil {
		return fmt.Errorf("failed to start handshake service: %w", err)
	}

	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()

	// Step 4: HTTP surface.
	router := r.buildRouter()

	ln, err := net.Listen("tcp", r.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.cfg.HTTPAddr, err)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.mu.Lock()
	r.router = router
	r.listener = ln
	r.httpServer = srv
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			r.logError("http server exited", "error", serveErr)
		}
	}()

	r.transitionState(r.State(), StateReady)
	r.logger.Info("relay started",
		"instance_id", r.cfg.InstanceID,
		"addr", ln.Addr().String(),
		"local_only", directory.LocalOnly(),
	)

	return nil
}

// connectRedis resolves the shared Redis client: an injected one wins,
// an empty address means deliberate local-only mode, and a connect
// failure downgrades to local-only (warn when unreachable, error when
// the server rejects us).
func (r *Relay) connectRedis(ctx context.Context) {
	if r.redisClient != nil {
		return
	}
	if r.cfg.Redis.Addr == "" {
		r.logger.Info("no redis configured, running local-only")
		return
	}

	client, err := redisutil.Connect(ctx, redisutil.Options{
		Addr:        r.cfg.Redis.Addr,
		Password:    r.cfg.Redis.Password,
		DB:          r.cfg.Redis.DB,
		DialTimeout: r.cfg.Redis.DialTimeout,
	}, 3)
	if err != nil {
		if redisutil.IsConnectivityError(err) {
			r.logger.Warn("redis unreachable, running local-only",
				"addr", r.cfg.Redis.Addr,
				"error", err,
			)
		} else {
			// Rejections point at configuration, not an outage.
			r.logger.Error("redis rejected connection, running local-only",
				"addr", r.cfg.Redis.Addr,
				"error", err,
			)
		}

		return
	}

	r.redisClient = client
	r.ownsRedis = true
}

// Stop gracefully shuts down the relay.
//
// Safe to call multiple times - subsequent calls will return ErrNotStarted.
//
// Parameters:
//   - ctx: Context for shutdown timeout
//
// Returns:
//   - error: Shutdown error or timeout
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()

	// Check if already stopped or never started
	if r.ctx == nil {
		r.mu.Unlock()

		return ErrNotStarted
	}

	// Check if already in shutdown state (concurrent Stop() call)
	currentState := r.State()
	if currentState == StateShutdown {
		r.mu.Unlock()

		return ErrNotStarted
	}

	// Transition to shutdown state
	r.transitionState(currentState, StateShutdown)

	// Cancel relay context to stop all background goroutines
	r.cancel()

	// Note: Keep r.ctx (even though cancelled) instead of setting to nil
	// so background goroutines can still use it in their select statements
	httpServer := r.httpServer
	sessions := r.sessions
	monitor := r.monitor
	r.mu.Unlock()

	// Shutdown sequence (reverse of startup)
	var shutdownErr error

	// Step 1: Stop accepting HTTP work. Hijacked WebSocket connections are
	// not covered by Shutdown; step 4 closes those explicitly.
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			r.logError("failed to shut down http server", "error", err)
			shutdownErr = fmt.Errorf("http shutdown failed: %w", err)
		}
	}

	// Step 2: Stop the handshake service; closes live browser sessions.
	if sessions != nil {
		if err := sessions.Stop(); err != nil && !errors.Is(err, handshake.ErrNotStarted) {
			r.logError("failed to stop handshake service", "error", err)
			if shutdownErr == nil {
				shutdownErr = fmt.Errorf("handshake stop failed: %w", err)
			}
		}
	}

	// Step 3: Stop the liveness monitor (ignore ErrNotStarted)
	if monitor != nil {
		if err := monitor.Stop(); err != nil && !errors.Is(err, heartbeat.ErrNotStarted) {
			r.logError("failed to stop heartbeat monitor", "error", err)
			if shutdownErr == nil {
				shutdownErr = fmt.Errorf("heartbeat stop failed: %w", err)
			}
		}
	}

	// Step 4: Close every live socket and clear our presence records.
	for _, client := range r.registry.Snapshot() {
		if removed := r.registry.Unregister(client.ID); removed == nil {
			continue
		}
		_ = client.Conn.Close(CloseServerShutdown, CloseServerShutdown.String())
		r.removePresence(client)
		r.metrics.RecordClientDisconnected(types.DisconnectShutdown)
		r.fireDisconnected(client, types.DisconnectShutdown)
	}
	r.metrics.SetConnectedClients(r.registry.Len())

	// Step 5: Wait for all background goroutines with timeout
	r.logger.Debug("waiting for goroutines to exit...", "instance_id", r.cfg.InstanceID)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logError("shutdown timeout exceeded, some goroutines may still be running")
		if shutdownErr == nil {
			shutdownErr = ctx.Err()
		} else {
			shutdownErr = fmt.Errorf("shutdown timeout: %w; additional error: %w", ctx.Err(), shutdownErr)
		}
	}

	// Step 6: Close the Redis connection if we opened it.
	if r.ownsRedis && r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.logError("failed to close redis client", "error", err)
		}
	}

	if shutdownErr == nil {
		r.logger.Info("relay stopped gracefully", "instance_id", r.cfg.InstanceID)
	}

	return shutdownErr
}

// InstanceID returns this relay's unique id.
//
// Returns:
//   - string: Instance ID (generated at construction when not configured)
func (r *Relay) InstanceID() string {
	return r.cfg.InstanceID
}

// Addr returns the bound listen address, valid after Start.
//
// With HTTPAddr ":0" this is the kernel-assigned address tests dial.
//
// Returns:
//   - string: Listen address (empty before Start)
func (r *Relay) Addr() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.listener == nil {
		return ""
	}

	return r.listener.Addr().String()
}

// Handler returns the HTTP handler serving the REST and WebSocket surface,
// valid after Start.
//
// Returns:
//   - http.Handler: Router (nil before Start)
func (r *Relay) Handler() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.router
}

// ConnectedClients returns the number of locally connected clients.
//
// Returns:
//   - int: Live registry size
func (r *Relay) ConnectedClients() int {
	return r.registry.Len()
}

// State returns the current relay state.
//
// Returns:
//   - State: Current state
func (r *Relay) State() State {
	return State(r.state.Load())
}

// WaitState waits for the relay to reach the expected state within the
// timeout period.
//
// This method is useful for testing and synchronization scenarios where you
// need to wait for the relay to reach a specific state before proceeding.
//
// The method returns a read-only channel that will receive exactly one value:
//   - nil if the expected state is reached within the timeout
//   - context.DeadlineExceeded if the timeout expires before reaching the state
//
// The channel is closed after sending the result, allowing safe use in
// select statements.
//
// Parameters:
//   - expectedState: The state to wait for
//   - timeout: Maximum duration to wait for the state
//
// Returns:
//   - <-chan error: A channel that receives the result (nil on success, error on timeout)
//
// Example:
//
//	errCh := r.WaitState(relay.StateReady, 10*time.Second)
//	if err := <-errCh; err != nil {
//	    log.Printf("relay never became ready: %v", err)
//	}
func (r *Relay) WaitState(expectedState State, timeout time.Duration) <-chan error {
	ch := make(chan error, 1) // Buffered to prevent goroutine leak

	go func() {
		defer close(ch)

		// Check if already in expected state
		if r.State() == expectedState {
			ch <- nil
			return
		}

		// Poll for state changes
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		timeoutTimer := time.NewTimer(timeout)
		defer timeoutTimer.Stop()

		for {
			select {
			case <-ticker.C:
				if r.State() == expectedState {
					ch <- nil
					return
				}
			case <-timeoutTimer.C:
				ch <- context.DeadlineExceeded
				return
			}
		}
	}()

	return ch
}

// onClientExpired is the liveness sweep's expiry callback: the client
// failed the grace window and leaves the registry.
func (r *Relay) onClientExpired(client *types.Client) {
	removed := r.registry.Unregister(client.ID)
	if removed == nil {
		return
	}

	_ = client.Conn.Close(CloseNormal, "heartbeat expired")
	r.removePresence(client)

	r.metrics.RecordClientDisconnected(types.DisconnectHeartbeat)
	r.metrics.SetConnectedClients(r.registry.Len())
	r.logger.Info("client expired",
		"client_id", client.ID,
		"last_seen", client.LastSeen(),
	)
	r.fireDisconnected(client, types.DisconnectHeartbeat)
}

// onPresenceRefresh is the liveness sweep's survivor callback: every live
// group gets its presence TTLs re-applied.
func (r *Relay) onPresenceRefresh(groups map[string][]string) {
	if len(groups) == 0 {
		return
	}

	digested := make(map[string][]string, len(groups))
	for tok, ids := range groups {
		digested[token.Digest(tok)] = ids
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.OperationTimeout)
	defer cancel()

	// Directory unavailability is logged and metered inside the directory.
	_ = r.presence.Refresh(ctx, digested)
}

// removePresence clears a client's directory records. Uses a background
// context so shutdown-path removals still run after r.ctx is cancelled.
func (r *Relay) removePresence(client *types.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.OperationTimeout)
	defer cancel()

	_ = r.presence.Remove(ctx, client.ID, token.Digest(client.Token))
}

// fireConnected triggers the connect hook in the background.
func (r *Relay) fireConnected(client *types.Client) {
	if r.hooks.OnClientConnected == nil {
		return
	}

	go func() {
		if err := r.hooks.OnClientConnected(r.ctx, client); err != nil {
			r.logError("client connected hook error", "client_id", client.ID, "error", err)
		}
	}()
}

// fireDisconnected triggers the disconnect hook in the background.
func (r *Relay) fireDisconnected(client *types.Client, reason types.DisconnectReason) {
	if r.hooks.OnClientDisconnected == nil {
		return
	}

	go func() {
		if err := r.hooks.OnClientDisconnected(r.ctx, client, reason); err != nil {
			r.logError("client disconnected hook error", "client_id", client.ID, "error", err)
		}
	}()
}

// transitionState transitions to a new state and triggers hooks.
func (r *Relay) transitionState(from, to State) {
	// Validate state transition
	if !r.isValidTransition(from, to) {
		r.logError("invalid state transition attempted",
			"from", from.String(),
			"to", to.String(),
		)

		return
	}

	r.state.Store(int32(to)) //nolint:gosec // State values are controlled enum

	r.logger.Info("state transition",
		"from", from.String(),
		"to", to.String(),
		"instance_id", r.cfg.InstanceID,
	)

	// Trigger state change hook
	if r.hooks.OnStateChanged != nil {
		// Run hook in background to avoid blocking lifecycle paths
		go func() {
			if err := r.hooks.OnStateChanged(r.ctx, from, to); err != nil {
				r.logError("state change hook error", "from", from, "to", to, "error", err)
			}
		}()
	}
}

// isValidTransition validates that a state transition is allowed.
//
// Returns:
//   - bool: true if transition is valid, false otherwise
func (r *Relay) isValidTransition(from, to State) bool {
	// Define valid state transitions
	validTransitions := map[State][]State{
		StateInit:     {StateStarting, StateShutdown},
		StateStarting: {StateReady, StateShutdown},
		StateReady:    {StateShutdown},
		StateShutdown: {}, // Terminal state - no transitions allowed
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}

	return false
}

// logError logs an error message.
func (r *Relay) logError(msg string, keysAndValues ...any) {
	// Logger is always non-nil (defaults to nopLogger)
	r.logger.Error(msg, keysAndValues...)
}
