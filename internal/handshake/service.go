package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/logging"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/metrics"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/redisutil"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// Common errors for handshake service lifecycle operations.
var (
	ErrNotStarted     = errors.New("handshake service not started")
	ErrAlreadyStarted = errors.New("handshake service already started")
	ErrNoBrowser      = errors.New("browser launcher not set")
	ErrNoClientLookup = errors.New("client lookup not set")
)

// ClientLookup finds live clients by id. The registry satisfies this.
type ClientLookup interface {
	Get(id string) (*types.Client, bool)
}

// Config holds the handshake service's timing knobs.
type Config struct {
	// InstanceID is this relay instance's unique id, written into shared
	// handshake records as the owner.
	InstanceID string

	// HandshakeTTL bounds the window between Create and StartSession.
	HandshakeTTL time.Duration

	// StartTimeout bounds the wait for the headless client to appear in
	// the registry after login.
	StartTimeout time.Duration

	// ClientPollInterval paces the registry checks during StartTimeout.
	ClientPollInterval time.Duration

	// RemoteWaitTimeout bounds a start attempt parked for another
	// instance, and doubles as the TTL on parked and result records.
	RemoteWaitTimeout time.Duration

	// RemotePollInterval paces result polling for a parked attempt. It is
	// also the worst-case extra latency when a wake message is lost,
	// because every poll re-publishes the wake.
	RemotePollInterval time.Duration

	// IdleTimeout ends sessions with no API activity.
	IdleTimeout time.Duration

	// ReapInterval paces the idle-session and expired-handshake sweep.
	ReapInterval time.Duration

	// OperationTimeout bounds individual Redis round trips.
	OperationTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.HandshakeTTL <= 0 {
		c.HandshakeTTL = 5 * time.Minute
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 5 * time.Minute
	}
	if c.ClientPollInterval <= 0 {
		c.ClientPollInterval = 2 * time.Second
	}
	if c.RemoteWaitTimeout <= 0 {
		c.RemoteWaitTimeout = 10 * time.Minute
	}
	if c.RemotePollInterval <= 0 {
		c.RemotePollInterval = 2 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 5 * time.Second
	}
}

// session is one live browser-backed client connection.
type session struct {
	id           string
	clientID     string
	apiKey       string
	handle       types.BrowserHandle
	startedAt    time.Time
	lastActivity atomic.Int64
}

func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *session) activity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Service implements the session handshake protocol.
//
// A handshake is a short-lived RSA keypair plus a nonce. The caller
// encrypts credentials against the public key and presents them once;
// the record is consumed on first use whether or not the attempt
// succeeds. The private key exists only in the owning instance's memory,
// so attempts that land on another instance are parked in Redis and
// served by the owner via its wake channel.
type Service struct {
	cfg     Config
	redis   *redis.Client
	browser types.Browser
	clients ClientLookup
	logger  types.Logger
	metrics types.MetricsCollector

	local    *xsync.Map[string, *record]
	sessions *xsync.Map[string, *session]
	inflight *xsync.Map[string, struct{}]

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	pubsub  *redis.PubSub
}

// NewService creates a handshake service.
//
// Parameters:
//   - cfg: Timing knobs; zero values take defaults
//   - redisClient: Shared store, or nil for single-instance operation
//   - browser: Headless login launcher
//   - clients: Live client lookup, normally the registry
//
// Returns:
//   - *Service: Initialized service with nop logger and metrics
func NewService(cfg Config, redisClient *redis.Client, browser types.Browser, clients ClientLookup) *Service {
	cfg.setDefaults()

	return &Service{
		cfg:      cfg,
		redis:    redisClient,
		browser:  browser,
		clients:  clients,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		local:    xsync.NewMap[string, *record](),
		sessions: xsync.NewMap[string, *session](),
		inflight: xsync.NewMap[string, struct{}](),
		stopCh:   make(chan struct{}),
	}
}

// SetLogger sets the logger. Optional.
func (s *Service) SetLogger(logger types.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics sets the metrics collector. Optional.
func (s *Service) SetMetrics(m types.MetricsCollector) {
	if m != nil {
		s.metrics = m
	}
}

// Start launches the idle reaper and, when Redis is available, the
// remote-start listener on this instance's wake channel.
//
// Returns:
//   - error: ErrAlreadyStarted if running, ErrNoBrowser or ErrNoClientLookup
//     if wiring is incomplete
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.browser == nil {
		return ErrNoBrowser
	}
	if s.clients == nil {
		return ErrNoClientLookup
	}
	s.started = true

	s.wg.Add(1)
	go s.reapLoop()

	if s.redis != nil {
		s.pubsub = s.redis.Subscribe(context.Background(), redisutil.WakeChannel(s.cfg.InstanceID))
		s.wg.Add(1)
		go s.wakeLoop(s.pubsub.Channel())
	}

	return nil
}

// Stop stops the background loops and closes every live session.
//
// Blocks until in-flight parked starts finish or bail on the stop signal.
//
// Returns:
//   - error: ErrNotStarted if not running
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	close(s.stopCh)
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.sessions.Range(func(id string, sess *session) bool {
		s.sessions.Delete(id)
		s.closeSession(context.Background(), sess, "shutdown")

		return true
	})

	return nil
}

// Create issues a new handshake for the given api key.
//
// The full record, private key included, lives in this instance's memory.
// When Redis is available a projection without the private key is shared
// so other instances can route start attempts back here.
//
// Parameters:
//   - ctx: Context for the Redis write
//   - apiKey: Caller's api key; StartSession must present the same one
//   - foundryURL: Game server to log into
//   - worldName: World to launch if the server is on its setup screen
//   - username: Player name in the world's user list
//
// Returns:
//   - *Handshake: Token, public key PEM, nonce, and expiry
//   - error: Validation or key generation failure
func (s *Service) Create(ctx context.Context, apiKey, foundryURL, worldName, username string) (*Handshake, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if foundryURL == "" {
		return nil, fmt.Errorf("foundry url is required")
	}
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	privateKey, publicPEM, err := generateKeyPair()
	if err != nil {
		return nil, err
	}

	rec := &record{
		apiKey:     apiKey,
		foundryURL: foundryURL,
		worldName:  worldName,
		username:   username,
		publicKey:  publicPEM,
		privateKey: privateKey,
		nonce:      uuid.NewString(),
		expiresAt:  time.Now().Add(s.cfg.HandshakeTTL),
	}
	token := uuid.NewString()
	s.local.Store(token, rec)

	if s.redis != nil {
		shared := sharedRecord{
			APIKey:     rec.apiKey,
			FoundryURL: rec.foundryURL,
			WorldName:  rec.worldName,
			Username:   rec.username,
			PublicKey:  rec.publicKey,
			Nonce:      rec.nonce,
			ExpiresAt:  rec.expiresAt,
			Owner:      s.cfg.InstanceID,
		}
		if err := s.writeShared(ctx, token, shared); err != nil {
			s.logger.Warn("handshake not shared, cross-instance start unavailable for it",
				"token", token,
				"error", err,
			)
		}
	}

	s.metrics.RecordHandshakeCreated()
	s.logger.Info("handshake created", "token", token, "expires", rec.expiresAt)

	return &Handshake{
		Token:        token,
		PublicKeyPEM: publicPEM,
		Nonce:        rec.nonce,
		ExpiresAt:    rec.expiresAt,
	}, nil
}

// StartSession consumes a handshake and brings up a browser-backed client.
//
// The handshake is deleted before the attempt is judged: success or
// failure, a token works exactly once. Attempts against a handshake owned
// by another instance are parked in Redis and polled until the owner
// writes an outcome or RemoteWaitTimeout passes.
//
// Parameters:
//   - ctx: Caller's context; cancellation abandons the attempt
//   - token: Handshake token from Create
//   - encryptedPayload: Base64 RSA-OAEP ciphertext of {password, nonce}
//   - apiKey: Must match the handshake's api key
//
// Returns:
//   - *StartResult: Session and client ids on success
//   - error: ErrHandshakeNotFound, ErrHandshakeExpired, ErrAPIKeyMismatch,
//     ErrNonceMismatch, ErrDecryptFailed, ErrClientWaitTimeout, or
//     ErrRemoteWaitTimeout
func (s *Service) StartSession(ctx context.Context, token, encryptedPayload, apiKey string) (*StartResult, error) {
	if token == "" || encryptedPayload == "" {
		return nil, fmt.Errorf("handshake token and encrypted payload are required")
	}

	if rec, ok := s.consumeLocal(ctx, token); ok {
		return s.startWithRecord(ctx, rec, encryptedPayload, apiKey)
	}

	if s.redis == nil {
		return nil, types.ErrHandshakeNotFound
	}

	shared, err := s.readShared(ctx, token)
	if err != nil {
		if redisutil.IsNotFound(err) {
			return nil, types.ErrHandshakeNotFound
		}

		return nil, fmt.Errorf("handshake lookup: %w", err)
	}

	if shared.Owner == s.cfg.InstanceID {
		// Shared record says we own it but the private key is gone,
		// typically after a restart. The handshake is unusable.
		s.deleteShared(ctx, token)
		return nil, types.ErrHandshakeNotFound
	}

	return s.parkAndWait(ctx, token, shared.Owner, encryptedPayload, apiKey)
}

// EndSession closes a session's browser and removes its records.
//
// Only the api key that started the session may end it. A second call
// finds nothing and reports ErrSessionNotFound, which callers treat as
// already-ended rather than a failure.
func (s *Service) EndSession(ctx context.Context, sessionID, apiKey string) error {
	sess, ok := s.sessions.Load(sessionID)
	if !ok {
		return types.ErrSessionNotFound
	}
	if sess.apiKey != apiKey {
		return types.ErrAPIKeyMismatch
	}
	if _, ok := s.sessions.LoadAndDelete(sessionID); !ok {
		return types.ErrSessionNotFound
	}

	s.closeSession(ctx, sess, "api")
	s.logger.Info("session ended", "session_id", sessionID, "client_id", sess.clientID)

	return nil
}

// Sessions lists the caller's active sessions, oldest first.
func (s *Service) Sessions(apiKey string) []SessionInfo {
	var out []SessionInfo
	s.sessions.Range(func(_ string, sess *session) bool {
		if sess.apiKey == apiKey {
			out = append(out, SessionInfo{
				SessionID:    sess.id,
				ClientID:     sess.clientID,
				StartedAt:    sess.startedAt,
				LastActivity: sess.activity(),
			})
		}

		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })

	return out
}

// TouchActivity stamps the session owning the given client id, holding the
// idle reaper off. Called by the HTTP layer on every relayed request.
func (s *Service) TouchActivity(clientID string) {
	s.sessions.Range(func(_ string, sess *session) bool {
		if sess.clientID == clientID {
			sess.touch()
			return false
		}

		return true
	})
}

// ActiveSessions returns the number of live sessions on this instance.
func (s *Service) ActiveSessions() int {
	return s.sessions.Size()
}

// consumeLocal removes and returns the owner-side record. The shared
// projection is deleted too so other instances see the token as spent.
func (s *Service) consumeLocal(ctx context.Context, token string) (*record, bool) {
	rec, ok := s.local.LoadAndDelete(token)
	if !ok {
		return nil, false
	}
	if s.redis != nil {
		s.deleteShared(ctx, token)
	}

	return rec, true
}

// startWithRecord judges a consumed record and, if it passes, launches the
// browser and waits for its client to register.
func (s *Service) startWithRecord(ctx context.Context, rec *record, encryptedPayload, apiKey string) (*StartResult, error) {
	if rec.expired(time.Now()) {
		s.metrics.RecordHandshakeConsumed(outcomeExpired)
		return nil, types.ErrHandshakeExpired
	}
	if rec.apiKey != apiKey {
		s.metrics.RecordHandshakeConsumed(outcomeKeyMismatch)
		return nil, types.ErrAPIKeyMismatch
	}

	creds, err := decryptCredentials(rec.privateKey, encryptedPayload)
	if err != nil {
		s.metrics.RecordHandshakeConsumed(outcomeDecryptFailed)
		return nil, err
	}
	if creds.Nonce != rec.nonce {
		s.metrics.RecordHandshakeConsumed(outcomeNonceMismatch)
		return nil, types.ErrNonceMismatch
	}
	s.metrics.RecordHandshakeConsumed(outcomeSuccess)

	return s.launchAndAwait(ctx, rec, creds.Password, apiKey)
}

// launchAndAwait starts the browser login and polls the registry for the
// deterministic client id it should produce.
func (s *Service) launchAndAwait(ctx context.Context, rec *record, password, apiKey string) (*StartResult, error) {
	handle, err := s.browser.Start(ctx, types.BrowserCredentials{
		URL:       rec.foundryURL,
		WorldName: rec.worldName,
		Username:  rec.username,
		Password:  password,
	})
	if err != nil {
		s.metrics.RecordSessionStarted(outcomeError)
		return nil, fmt.Errorf("browser start: %w", err)
	}

	expectedID := "foundry-" + handle.UserID()
	s.logger.Info("waiting for headless client to register",
		"client_id", expectedID,
		"timeout", s.cfg.StartTimeout,
	)

	ticker := time.NewTicker(s.cfg.ClientPollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.StartTimeout)
	defer deadline.Stop()

	for {
		if client, ok := s.clients.Get(expectedID); ok {
			if client.Token != apiKey {
				// Someone else's connection grabbed the id. Kill the
				// browser before anything can ride on it.
				_ = handle.Close(context.Background())
				s.metrics.RecordSessionStarted(outcomeUnauthorized)
				s.logger.Warn("headless client registered with mismatched api key", "client_id", expectedID)

				return nil, types.ErrAPIKeyMismatch
			}

			return s.registerSession(expectedID, apiKey, handle), nil
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			_ = handle.Close(context.Background())
			s.metrics.RecordSessionStarted(outcomeTimeout)

			return nil, types.ErrClientWaitTimeout
		case <-ctx.Done():
			_ = handle.Close(context.Background())
			s.metrics.RecordSessionStarted(outcomeError)

			return nil, ctx.Err()
		case <-s.stopCh:
			_ = handle.Close(context.Background())
			s.metrics.RecordSessionStarted(outcomeError)

			return nil, types.ErrShuttingDown
		}
	}
}

// registerSession records a successful start.
func (s *Service) registerSession(clientID, apiKey string, handle types.BrowserHandle) *StartResult {
	sess := &session{
		id:        uuid.NewString(),
		clientID:  clientID,
		apiKey:    apiKey,
		handle:    handle,
		startedAt: time.Now(),
	}
	sess.touch()
	s.sessions.Store(sess.id, sess)

	s.metrics.RecordSessionStarted(outcomeSuccess)
	s.metrics.SetActiveSessions(s.sessions.Size())
	s.logger.Info("session started", "session_id", sess.id, "client_id", clientID)

	return &StartResult{SessionID: sess.id, ClientID: clientID}
}

// parkAndWait hands a start attempt to the owning instance and polls for
// its outcome. The wake is re-published on every poll so a lost message
// costs one poll interval, not the whole wait.
func (s *Service) parkAndWait(ctx context.Context, token, owner, encryptedPayload, apiKey string) (*StartResult, error) {
	parked, err := json.Marshal(pendingStart{EncryptedPayload: encryptedPayload, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("encode parked attempt: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	err = s.redis.Set(opCtx, redisutil.PendingSessionKey(token), parked, s.cfg.RemoteWaitTimeout).Err()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("park start attempt: %w", err)
	}

	s.logger.Info("start attempt parked for owning instance", "token", token, "owner", owner)

	ticker := time.NewTicker(s.cfg.RemotePollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.RemoteWaitTimeout)
	defer deadline.Stop()

	for {
		s.publishWake(ctx, owner, token)

		if outcome, ok := s.takeOutcome(ctx, token); ok {
			return resultFromOutcome(outcome)
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			s.discardParked(token)
			return nil, types.ErrRemoteWaitTimeout
		case <-ctx.Done():
			s.discardParked(token)
			return nil, ctx.Err()
		case <-s.stopCh:
			return nil, types.ErrShuttingDown
		}
	}
}

func (s *Service) publishWake(ctx context.Context, owner, token string) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	if err := s.redis.Publish(opCtx, redisutil.WakeChannel(owner), token).Err(); err != nil {
		s.logger.Debug("wake publish failed, poll carries the attempt", "owner", owner, "error", err)
	}
}

// takeOutcome consumes the result key for a parked attempt. GETDEL makes
// the read and the delete one command, so at most one waiter sees any
// given outcome.
func (s *Service) takeOutcome(ctx context.Context, token string) (*startOutcome, bool) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	raw, err := s.redis.GetDel(opCtx, redisutil.SessionResultKey(token)).Result()
	if err != nil {
		if !redisutil.IsNotFound(err) {
			s.logger.Warn("result poll failed", "token", token, "error", err)
		}

		return nil, false
	}

	var outcome startOutcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		s.logger.Error("undecodable start outcome", "token", token, "error", err)
		return nil, false
	}

	return &outcome, true
}

func (s *Service) discardParked(token string) {
	opCtx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	_ = s.redis.Del(opCtx, redisutil.PendingSessionKey(token)).Err()
}

// wakeLoop serves start attempts parked for this instance.
func (s *Service) wakeLoop(ch <-chan *redis.Message) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			token := msg.Payload
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serveParkedStart(token)
			}()
		}
	}
}

// serveParkedStart consumes one parked attempt and writes its outcome.
//
// Wakes are re-published every poll interval, so duplicates are routine;
// the inflight map collapses them to one attempt per token.
func (s *Service) serveParkedStart(token string) {
	ctx := context.Background()

	if _, loaded := s.inflight.LoadOrStore(token, struct{}{}); loaded {
		return
	}
	defer s.inflight.Delete(token)

	// GETDEL: a second wake for the same token finds nothing instead of
	// serving the attempt twice.
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	raw, err := s.redis.GetDel(opCtx, redisutil.PendingSessionKey(token)).Result()
	cancel()
	if err != nil {
		if !redisutil.IsNotFound(err) {
			s.logger.Warn("parked attempt read failed", "token", token, "error", err)
		}

		return
	}

	var parked pendingStart
	if err := json.Unmarshal([]byte(raw), &parked); err != nil {
		s.logger.Error("undecodable parked attempt", "token", token, "error", err)
		return
	}

	s.logger.Info("serving parked start attempt", "token", token)

	var outcome startOutcome
	if rec, ok := s.consumeLocal(ctx, token); ok {
		res, err := s.startWithRecord(ctx, rec, parked.EncryptedPayload, parked.APIKey)
		outcome = outcomeFromResult(res, err)
	} else {
		outcome = startOutcome{Kind: outcomeNotFound}
	}

	s.writeOutcome(token, outcome)
}

func (s *Service) writeOutcome(token string, outcome startOutcome) {
	raw, err := json.Marshal(outcome)
	if err != nil {
		s.logger.Error("encode start outcome", "token", token, "error", err)
		return
	}

	opCtx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	if err := s.redis.Set(opCtx, redisutil.SessionResultKey(token), raw, s.cfg.RemoteWaitTimeout).Err(); err != nil {
		s.logger.Error("start outcome not written, remote caller will time out",
			"token", token,
			"error", err,
		)
	}
}

// reapLoop sweeps idle sessions and expired handshake records.
func (s *Service) reapLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reapIdleSessions()
			s.purgeExpiredHandshakes()
		}
	}
}

func (s *Service) reapIdleSessions() {
	cutoff := time.Now().Add(-s.cfg.IdleTimeout)
	s.sessions.Range(func(id string, sess *session) bool {
		if sess.activity().Before(cutoff) {
			if _, ok := s.sessions.LoadAndDelete(id); ok {
				s.logger.Info("session idle, reaping",
					"session_id", id,
					"client_id", sess.clientID,
					"last_activity", sess.activity(),
				)
				s.closeSession(context.Background(), sess, "idle")
			}
		}

		return true
	})
}

func (s *Service) purgeExpiredHandshakes() {
	now := time.Now()
	s.local.Range(func(token string, rec *record) bool {
		if rec.expired(now) {
			if _, ok := s.local.LoadAndDelete(token); ok {
				s.logger.Debug("handshake expired unused", "token", token)
			}
		}

		return true
	})
}

func (s *Service) closeSession(ctx context.Context, sess *session, reason string) {
	if err := sess.handle.Close(ctx); err != nil {
		s.logger.Warn("browser close failed", "session_id", sess.id, "error", err)
	}
	s.metrics.RecordSessionEnded(reason)
	s.metrics.SetActiveSessions(s.sessions.Size())
}

func (s *Service) writeShared(ctx context.Context, token string, shared sharedRecord) error {
	raw, err := json.Marshal(shared)
	if err != nil {
		return fmt.Errorf("encode shared handshake: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	return s.redis.Set(opCtx, redisutil.HandshakeKey(token), raw, s.cfg.HandshakeTTL).Err()
}

func (s *Service) readShared(ctx context.Context, token string) (*sharedRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	raw, err := s.redis.Get(opCtx, redisutil.HandshakeKey(token)).Result()
	if err != nil {
		return nil, err
	}

	var shared sharedRecord
	if err := json.Unmarshal([]byte(raw), &shared); err != nil {
		return nil, fmt.Errorf("decode shared handshake: %w", err)
	}

	return &shared, nil
}

func (s *Service) deleteShared(ctx context.Context, token string) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	if err := s.redis.Del(opCtx, redisutil.HandshakeKey(token)).Err(); err != nil {
		s.logger.Debug("shared handshake delete failed, TTL will collect it",
			"token", token,
			"error", err,
		)
	}
}

// outcomeFromResult flattens a local start attempt into the wire form the
// parked caller polls for.
func outcomeFromResult(res *StartResult, err error) startOutcome {
	if err == nil {
		return startOutcome{Kind: outcomeSuccess, SessionID: res.SessionID, ClientID: res.ClientID}
	}

	kind := outcomeError
	switch {
	case errors.Is(err, types.ErrHandshakeExpired):
		kind = outcomeExpired
	case errors.Is(err, types.ErrAPIKeyMismatch):
		kind = outcomeKeyMismatch
	case errors.Is(err, types.ErrNonceMismatch):
		kind = outcomeNonceMismatch
	case errors.Is(err, types.ErrDecryptFailed):
		kind = outcomeDecryptFailed
	case errors.Is(err, types.ErrClientWaitTimeout):
		kind = outcomeTimeout
	case errors.Is(err, types.ErrHandshakeNotFound):
		kind = outcomeNotFound
	}

	return startOutcome{Kind: kind, Message: err.Error()}
}

// resultFromOutcome is the inverse mapping applied by the parked caller.
func resultFromOutcome(outcome *startOutcome) (*StartResult, error) {
	switch outcome.Kind {
	case outcomeSuccess:
		return &StartResult{SessionID: outcome.SessionID, ClientID: outcome.ClientID}, nil
	case outcomeNotFound:
		return nil, types.ErrHandshakeNotFound
	case outcomeExpired:
		return nil, types.ErrHandshakeExpired
	case outcomeKeyMismatch, outcomeUnauthorized:
		return nil, types.ErrAPIKeyMismatch
	case outcomeNonceMismatch:
		return nil, types.ErrNonceMismatch
	case outcomeDecryptFailed:
		return nil, types.ErrDecryptFailed
	case outcomeTimeout:
		return nil, types.ErrClientWaitTimeout
	default:
		return nil, fmt.Errorf("remote start failed: %s", outcome.Message)
	}
}
