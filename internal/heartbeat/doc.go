// Package heartbeat provides periodic liveness monitoring for client sockets.
//
// The relay cannot trust TCP alone to notice a vanished game client: NAT
// boxes and proxies keep dead connections "open" for minutes. The monitor
// closes that gap with protocol-level pings and a grace-window sweep.
//
// # Design Overview
//
//   - A ping is written to every open socket on a fixed interval
//   - The socket layer stamps the client's last-seen time on each pong
//   - A client is live while its socket is open AND its last pong is
//     within the grace window
//   - A periodic sweep expires everything else and refreshes the shared
//     directory TTLs for the survivors
//
// # Monitor Lifecycle
//
//  1. Create with NewMonitor(provider, interval, grace, sweepInterval)
//  2. Wire SetExpireHandler (required) and SetRefreshHandler (optional)
//  3. Start with Start()
//  4. Stop with Stop()
//
// Example:
//
//	monitor := heartbeat.NewMonitor(reg, 30*time.Second, 90*time.Second, time.Minute)
//	monitor.SetExpireHandler(func(c *types.Client) {
//	    // unregister, remove presence, close socket
//	})
//	err := monitor.Start()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer monitor.Stop()
//
// # Crash Detection
//
// The grace window is a multiple of the ping interval, so a single dropped
// pong never expires a healthy client. A crashed client misses every ping
// and ages out within one grace window plus one sweep interval.
//
// # Thread Safety
//
// The Monitor is thread-safe. Handlers run on the sweep goroutine and must
// not block for long; a slow expire handler delays the next ping round.
package heartbeat
