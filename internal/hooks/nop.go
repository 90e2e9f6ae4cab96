package hooks

import (
	"context"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, *types.Client) error                         = (*NopHooks)(nil).OnClientConnected
	_ func(context.Context, *types.Client, types.DisconnectReason) error = (*NopHooks)(nil).OnClientDisconnected
	_ func(context.Context, types.State, types.State) error              = (*NopHooks)(nil).OnStateChanged
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnClientConnected:    h.OnClientConnected,
		OnClientDisconnected: h.OnClientDisconnected,
		OnStateChanged:       h.OnStateChanged,
	}
}

// OnClientConnected is a no-op implementation.
func (h *NopHooks) OnClientConnected(ctx context.Context, client *types.Client) error {
	return nil
}

// OnClientDisconnected is a no-op implementation.
func (h *NopHooks) OnClientDisconnected(ctx context.Context, client *types.Client, reason types.DisconnectReason) error {
	return nil
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(ctx context.Context, from, to types.State) error {
	return nil
}
