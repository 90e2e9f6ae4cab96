package heartbeat

import (
	"errors"
	"sync"
	"time"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/logging"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/metrics"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// Common errors for heartbeat operations.
var (
	ErrNotStarted       = errors.New("monitor not started")
	ErrAlreadyStarted   = errors.New("monitor already started")
	ErrNoExpireHandler  = errors.New("expire handler not set")
	ErrNoClientProvider = errors.New("client provider not set")
)

// ClientProvider enumerates the clients the monitor watches.
//
// The registry satisfies this. The monitor never mutates registry state
// itself; expirations go through the handler so the owner controls
// unregistration order.
type ClientProvider interface {
	Snapshot() []*types.Client
}

// Monitor drives protocol-level pings and the liveness sweep.
//
// Every ping interval it sends a WebSocket ping to each connected client;
// the socket layer stamps the client's last-seen time when the pong comes
// back. Every sweep interval it partitions clients into live and expired:
// a client is live while its socket is open and its last pong is within
// the grace window. Expired clients are handed to the expire handler, and
// the surviving token groups are handed to the refresh handler so their
// shared directory records keep their TTL ahead of expiry.
type Monitor struct {
	provider      ClientProvider
	interval      time.Duration
	grace         time.Duration
	sweepInterval time.Duration
	logger        types.Logger
	metrics       types.MetricsCollector

	expireFn  func(client *types.Client)
	refreshFn func(groups map[string][]string)

	mu          sync.Mutex
	started     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	pingTicker  *time.Ticker
	sweepTicker *time.Ticker
}

// NewMonitor creates a heartbeat monitor.
//
// The grace window should be a small multiple of the ping interval so one
// dropped pong does not expire a healthy client.
//
// Parameters:
//   - provider: Source of the current client snapshot
//   - interval: Ping interval (typically 30s)
//   - grace: Liveness window measured from the last pong
//   - sweepInterval: How often the liveness sweep runs
//
// Returns:
//   - *Monitor: New monitor instance
func NewMonitor(provider ClientProvider, interval, grace, sweepInterval time.Duration) *Monitor {
	return &Monitor{
		provider:      provider,
		interval:      interval,
		grace:         grace,
		sweepInterval: sweepInterval,
		logger:        logging.NewNop(),
		metrics:       metrics.NewNop(),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// SetLogger sets the logger. Optional.
func (m *Monitor) SetLogger(logger types.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetMetrics sets the metrics collector. Optional.
func (m *Monitor) SetMetrics(collector types.MetricsCollector) {
	if collector != nil {
		m.metrics = collector
	}
}

// SetExpireHandler sets the callback invoked for each expired client.
//
// Must be called before Start(). The handler unregisters the client,
// removes its presence records, and closes the socket.
func (m *Monitor) SetExpireHandler(fn func(client *types.Client)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireFn = fn
}

// SetRefreshHandler sets the callback invoked with the surviving token
// groups after each sweep. Optional; used to refresh presence TTLs.
//
// Groups are keyed by raw token; the owner decides how to digest them.
func (m *Monitor) SetRefreshHandler(fn func(groups map[string][]string)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshFn = fn
}

// Start begins pinging and sweeping in the background.
//
// Pings all current clients immediately, then at regular intervals.
// Continues until Stop() is called.
//
// Returns:
//   - error: ErrAlreadyStarted if running, ErrNoExpireHandler or
//     ErrNoClientProvider if wiring is incomplete
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if m.provider == nil {
		return ErrNoClientProvider
	}
	if m.expireFn == nil {
		return ErrNoExpireHandler
	}

	m.started = true
	m.pingTicker = time.NewTicker(m.interval)
	m.sweepTicker = time.NewTicker(m.sweepInterval)

	// First ping immediately so fresh connections get a pong on record
	// well before the first sweep.
	m.pingAll()

	go m.run()

	return nil
}

// Stop stops the monitor.
//
// Blocks until the monitor goroutine exits. Clients are left registered;
// connection teardown on shutdown is the owner's job.
//
// Returns:
//   - error: ErrNotStarted if not running
func (m *Monitor) Stop() error {
	m.mu.Lock()

	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}

	m.pingTicker.Stop()
	m.sweepTicker.Stop()
	close(m.stopCh)
	m.started = false

	m.mu.Unlock()

	<-m.doneCh

	return nil
}

// IsStarted returns whether the monitor is currently running.
func (m *Monitor) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.started
}

// run is the background goroutine driving pings and sweeps.
func (m *Monitor) run() {
	defer close(m.doneCh)

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.pingTicker.C:
			m.pingAll()
		case <-m.sweepTicker.C:
			m.sweep()
		}
	}
}

// pingAll sends a protocol-level ping to every open client socket.
//
// Ping failures are only logged; the sweep decides expiry. A socket that
// cannot take a ping will also miss its pong and age out of the grace
// window on its own.
func (m *Monitor) pingAll() {
	deadline := time.Now().Add(m.interval)
	for _, client := range m.provider.Snapshot() {
		if !client.Conn.IsOpen() {
			continue
		}
		if err := client.Conn.Ping(deadline); err != nil {
			m.logger.Debug("ping failed", "client_id", client.ID, "error", err)
		}
	}
}

// sweep expires clients outside the grace window and refreshes the rest.
func (m *Monitor) sweep() {
	m.mu.Lock()
	expireFn := m.expireFn
	refreshFn := m.refreshFn
	m.mu.Unlock()

	var expired []*types.Client
	live := make(map[string][]string)
	liveCount := 0

	for _, client := range m.provider.Snapshot() {
		if client.Alive(m.grace) {
			live[client.Token] = append(live[client.Token], client.ID)
			liveCount++
			continue
		}
		expired = append(expired, client)
	}

	for _, client := range expired {
		m.logger.Info("client failed liveness check",
			"client_id", client.ID,
			"last_seen", client.LastSeen(),
			"grace", m.grace,
		)
		expireFn(client)
	}

	if len(live) > 0 && refreshFn != nil {
		refreshFn(live)
	}

	m.metrics.SetConnectedClients(liveCount)
}
