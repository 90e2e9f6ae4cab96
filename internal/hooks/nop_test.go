package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

func TestNewNop(t *testing.T) {
	hooks := NewNop()

	require.NotNil(t, hooks.OnClientConnected)
	require.NotNil(t, hooks.OnClientDisconnected)
	require.NotNil(t, hooks.OnStateChanged)
}

func TestNopHooks_OnClientConnected(t *testing.T) {
	hooks := NewNop()
	ctx := context.Background()

	client := types.NewClient("client-1", "token-1", nil, types.ClientMetadata{})

	err := hooks.OnClientConnected(ctx, client)
	require.NoError(t, err)
}

func TestNopHooks_OnClientDisconnected(t *testing.T) {
	hooks := NewNop()
	ctx := context.Background()

	client := types.NewClient("client-1", "token-1", nil, types.ClientMetadata{})

	err := hooks.OnClientDisconnected(ctx, client, types.DisconnectNormal)
	require.NoError(t, err)
}

func TestNopHooks_OnStateChanged(t *testing.T) {
	hooks := NewNop()
	ctx := context.Background()

	err := hooks.OnStateChanged(ctx, types.StateInit, types.StateReady)
	require.NoError(t, err)
}
