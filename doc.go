// Package relay bridges stateless REST callers to long-lived game-client
// WebSocket connections.
//
// Game clients (browser plugins running inside a game session) dial in over
// WebSocket and stay connected. REST callers address a client by id; the
// relay forwards each request over that client's socket as a correlated
// message, parks the HTTP handler until the client answers or a deadline
// fires, and maps the result back to an HTTP response.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	import "github.com/ssjmarx/The-Gold-Box-sub002"
//
//	cfg := relay.Config{
//	    HTTPAddr: ":3010",
//	}
//	cfg.Redis.Addr = "localhost:6379"
//
//	r, err := relay.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := r.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Stop(context.Background())
//
// Clients connect to GET /relay?id={clientId}&token={apiKey}; REST callers
// POST to /api/{kind} with a clientId parameter.
//
// # Key Features
//
//   - Correlated request/response over a push-only transport: every relayed
//     request carries a generated requestId and resolves exactly once
//   - Token groups: clients sharing an API key form a broadcast group and
//     are listed together
//   - Multi-instance presence: a Redis directory records which instance
//     serves each client, so a caller hitting the wrong instance gets a
//     redirect hint instead of a false 404
//   - Heartbeat supervision: unresponsive sockets are closed and cleaned up
//     after a configurable grace window
//   - Session bootstrap: an encrypted handshake starts a headless browser
//     that logs into the game world and becomes a regular client
//
// # Architecture
//
// A Relay moves through a small lifecycle:
//
//	Init → Starting → Ready → Shutdown
//
// Start connects Redis (optional; the relay degrades to single-instance
// operation without it), starts the heartbeat monitor and session service,
// and serves HTTP. Stop drains in reverse order and closes every client
// socket with a shutdown close code.
//
// # Advanced Usage
//
// Custom routes and hooks:
//
//	hooks := &relay.Hooks{
//	    OnClientConnected: func(ctx context.Context, c *relay.Client) error {
//	        // Track or log new clients
//	        return nil
//	    },
//	}
//
//	r, err := relay.New(cfg,
//	    relay.WithHooks(hooks),
//	    relay.WithMetrics(relay.NewPrometheusMetrics(nil)),
//	)
//
//	// Mount a project-specific route before Start; it relays to the
//	// client as a correlated "scene-list" message.
//	err = r.Mount(route.Spec{
//	    Kind:     "scene-list",
//	    Required: []route.Param{ /* ... */ },
//	})
//
// See the examples/ directory for complete working examples.
package relay
