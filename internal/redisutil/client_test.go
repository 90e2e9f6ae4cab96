package redisutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("verified client against a live server", func(t *testing.T) {
		srv := miniredis.RunT(t)

		client, err := Connect(ctx, Options{Addr: srv.Addr(), DialTimeout: time.Second}, 3)
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		require.NoError(t, client.Ping(ctx).Err())
	})

	t.Run("unreachable address wraps the connectivity sentinel", func(t *testing.T) {
		_, err := Connect(ctx, Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, 1)
		require.Error(t, err)
		require.ErrorIs(t, err, types.ErrConnectivity)
	})

	t.Run("auth rejection aborts instead of retrying", func(t *testing.T) {
		srv := miniredis.RunT(t)
		srv.RequireAuth("sekrit")

		// The retry-exhausted path says "unreachable" and wraps the
		// sentinel; a rejection takes neither.
		_, err := Connect(ctx, Options{Addr: srv.Addr(), DialTimeout: time.Second}, 3)
		require.Error(t, err)
		require.NotErrorIs(t, err, types.ErrConnectivity)
		require.ErrorContains(t, err, "rejected")
	})
}
