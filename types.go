package relay

import "github.com/ssjmarx/The-Gold-Box-sub002/types"

// Re-export types from the internal types package.
//
// This file provides a stable, backward-compatible public API for the
// library's core types and interfaces. It uses type aliases to re-export
// definitions from the `types` subpackage, which contains the actual
// implementations.
//
// This pattern solves the "import cycle" problem by allowing internal
// packages to depend on `types` without depending on the root `relay`
// package, while still providing a convenient `relay.State`,
// `relay.Logger`, etc. for users.
type (
	State              = types.State
	CloseCode          = types.CloseCode
	Client             = types.Client
	ClientMetadata     = types.ClientMetadata
	DisconnectReason   = types.DisconnectReason
	BrowserCredentials = types.BrowserCredentials
	RemoteClientError  = types.RemoteClientError
)

// Re-export interfaces from the internal types package for convenience.
type (
	ClientConn       = types.ClientConn
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
	Hooks            = types.Hooks
	Browser          = types.Browser
	BrowserHandle    = types.BrowserHandle
)

// Re-export State constants from the internal types package.
const (
	StateInit     = types.StateInit
	StateStarting = types.StateStarting
	StateReady    = types.StateReady
	StateShutdown = types.StateShutdown
)

// Re-export close codes sent on the WebSocket control channel.
const (
	CloseNormal              = types.CloseNormal
	CloseInternalError       = types.CloseInternalError
	CloseNoClientID          = types.CloseNoClientID
	CloseNoAuth              = types.CloseNoAuth
	CloseNoTokenGroup        = types.CloseNoTokenGroup
	CloseDuplicateConnection = types.CloseDuplicateConnection
	CloseServerShutdown      = types.CloseServerShutdown
)

// Re-export disconnect reasons passed to the OnClientDisconnected hook.
const (
	DisconnectNormal    = types.DisconnectNormal
	DisconnectReadError = types.DisconnectReadError
	DisconnectHeartbeat = types.DisconnectHeartbeat
	DisconnectShutdown  = types.DisconnectShutdown
)
