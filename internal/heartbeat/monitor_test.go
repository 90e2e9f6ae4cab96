package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

type stubConn struct {
	mu    sync.Mutex
	open  bool
	pings int
}

var _ types.ClientConn = (*stubConn)(nil)

func (c *stubConn) WriteJSON(_ any) error { return nil }

func (c *stubConn) Ping(_ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++

	return nil
}

func (c *stubConn) Close(_ types.CloseCode, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false

	return nil
}

func (c *stubConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.open
}

func (c *stubConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pings
}

type stubProvider struct {
	mu      sync.Mutex
	clients []*types.Client
}

func (p *stubProvider) Snapshot() []*types.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.Client, len(p.clients))
	copy(out, p.clients)

	return out
}

func (p *stubProvider) add(c *types.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clients = append(p.clients, c)
}

func (p *stubProvider) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.clients[:0]
	for _, c := range p.clients {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	p.clients = kept
}

func newStubClient(id, token string) (*types.Client, *stubConn) {
	conn := &stubConn{open: true}
	return types.NewClient(id, token, conn, types.ClientMetadata{}), conn
}

func TestMonitor_Start(t *testing.T) {
	t.Run("starts successfully and pings immediately", func(t *testing.T) {
		provider := &stubProvider{}
		client, conn := newStubClient("client-1", "token-1")
		provider.add(client)

		monitor := NewMonitor(provider, time.Hour, time.Hour, time.Hour)
		monitor.SetExpireHandler(func(*types.Client) {})

		require.NoError(t, monitor.Start())
		require.True(t, monitor.IsStarted())
		require.Equal(t, 1, conn.pingCount())

		require.NoError(t, monitor.Stop())
	})

	t.Run("returns error if expire handler not set", func(t *testing.T) {
		monitor := NewMonitor(&stubProvider{}, time.Hour, time.Hour, time.Hour)

		err := monitor.Start()
		require.ErrorIs(t, err, ErrNoExpireHandler)
		require.False(t, monitor.IsStarted())
	})

	t.Run("returns error if provider not set", func(t *testing.T) {
		monitor := NewMonitor(nil, time.Hour, time.Hour, time.Hour)
		monitor.SetExpireHandler(func(*types.Client) {})

		require.ErrorIs(t, monitor.Start(), ErrNoClientProvider)
	})

	t.Run("returns error if already started", func(t *testing.T) {
		monitor := NewMonitor(&stubProvider{}, time.Hour, time.Hour, time.Hour)
		monitor.SetExpireHandler(func(*types.Client) {})

		require.NoError(t, monitor.Start())
		require.ErrorIs(t, monitor.Start(), ErrAlreadyStarted)

		require.NoError(t, monitor.Stop())
	})
}

func TestMonitor_Stop(t *testing.T) {
	t.Run("returns error if not started", func(t *testing.T) {
		monitor := NewMonitor(&stubProvider{}, time.Hour, time.Hour, time.Hour)
		require.ErrorIs(t, monitor.Stop(), ErrNotStarted)
	})

	t.Run("stops cleanly", func(t *testing.T) {
		monitor := NewMonitor(&stubProvider{}, time.Hour, time.Hour, time.Hour)
		monitor.SetExpireHandler(func(*types.Client) {})

		require.NoError(t, monitor.Start())
		require.NoError(t, monitor.Stop())
		require.False(t, monitor.IsStarted())
	})
}

func TestMonitor_PeriodicPings(t *testing.T) {
	provider := &stubProvider{}
	client, conn := newStubClient("client-1", "token-1")
	provider.add(client)

	closedClient, closedConn := newStubClient("client-2", "token-1")
	closedConn.open = false
	provider.add(closedClient)

	monitor := NewMonitor(provider, 20*time.Millisecond, time.Hour, time.Hour)
	monitor.SetExpireHandler(func(*types.Client) {})

	require.NoError(t, monitor.Start())
	defer func() { _ = monitor.Stop() }()

	require.Eventually(t, func() bool {
		return conn.pingCount() >= 3
	}, time.Second, 5*time.Millisecond)

	// Closed sockets are skipped; the sweep owns their removal.
	require.Zero(t, closedConn.pingCount())
}

func TestMonitor_SweepExpiresStaleClients(t *testing.T) {
	provider := &stubProvider{}

	fresh, _ := newStubClient("fresh", "token-1")
	stale, _ := newStubClient("stale", "token-1")
	closed, closedConn := newStubClient("closed", "token-2")
	require.NoError(t, closedConn.Close(types.CloseNormal, ""))

	provider.add(fresh)
	provider.add(stale)
	provider.add(closed)

	var mu sync.Mutex
	var expired []string
	var refreshed map[string][]string

	monitor := NewMonitor(provider, time.Hour, 50*time.Millisecond, 30*time.Millisecond)
	monitor.SetExpireHandler(func(c *types.Client) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, c.ID)
		provider.remove(c.ID)
	})
	monitor.SetRefreshHandler(func(groups map[string][]string) {
		mu.Lock()
		defer mu.Unlock()
		refreshed = groups
	})

	// Age the stale client past the grace window; keep the fresh one alive
	// by stamping pongs.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fresh.TouchLastSeen()
			}
		}
	}()

	require.NoError(t, monitor.Start())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(expired) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, monitor.Stop())
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"stale", "closed"}, expired)
	require.Contains(t, refreshed, "token-1")
	require.Equal(t, []string{"fresh"}, refreshed["token-1"])
}
