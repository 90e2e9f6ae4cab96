package types

import "context"

// Hooks defines callbacks for relay lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking the connection paths. Hooks receive the relay's lifecycle
// context which will be cancelled during shutdown.
//
// IMPORTANT: Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - The context passed to hooks is cancelled when the relay stops
//   - Hook errors are logged but don't fail relay operations
//
// Best practices for hook implementation:
//   - Complete quickly (< 1 second recommended)
//   - Respect context cancellation
//   - Don't block on long I/O operations
//   - Make hooks idempotent (may be called multiple times)
//   - Handle errors gracefully (return error for logging)
type Hooks struct {
	// OnClientConnected is called after a client passes registration.
	OnClientConnected func(ctx context.Context, client *Client) error

	// OnClientDisconnected is called after a client leaves the registry.
	OnClientDisconnected func(ctx context.Context, client *Client, reason DisconnectReason) error

	// OnStateChanged is called when the relay state transitions.
	OnStateChanged func(ctx context.Context, from, to State) error
}
