package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	open bool
}

func (s *stubConn) WriteJSON(_ any) error             { return nil }
func (s *stubConn) Ping(_ time.Time) error            { return nil }
func (s *stubConn) Close(_ CloseCode, _ string) error { s.open = false; return nil }
func (s *stubConn) IsOpen() bool                      { return s.open }

func TestClientLiveness(t *testing.T) {
	conn := &stubConn{open: true}
	c := NewClient("foundry-abc", "tok", conn, ClientMetadata{WorldTitle: "Waterdeep"})

	require.True(t, c.Alive(time.Minute))

	t.Run("stale last seen fails grace", func(t *testing.T) {
		c.lastSeen.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		require.False(t, c.Alive(time.Minute))
	})

	t.Run("touch restores liveness", func(t *testing.T) {
		c.TouchLastSeen()
		require.True(t, c.Alive(time.Minute))
		require.WithinDuration(t, time.Now(), c.LastSeen(), time.Second)
	})

	t.Run("closed socket is dead regardless of last seen", func(t *testing.T) {
		c.TouchLastSeen()
		require.NoError(t, conn.Close(CloseNormal, "bye"))
		require.False(t, c.Alive(time.Minute))
	})
}
