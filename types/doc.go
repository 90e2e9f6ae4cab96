// Package types provides core type definitions and interfaces for the relay.
//
// This package contains shared types that are used across multiple packages in
// the relay. By keeping these types in a separate package, we avoid import
// cycles between the main relay package and its internal implementations.
//
// Key types:
//   - Client: A connected game-client process and its socket
//   - InboundMessage: Closed union of frames accepted from clients
//   - CloseCode: WebSocket close codes used by the relay
//   - State: Relay lifecycle state
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
