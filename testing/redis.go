package testing

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// StartMiniRedis starts an in-process Redis server for testing.
//
// The server runs entirely in memory inside the test process, so presence
// and session code can be exercised against real Redis commands without an
// external daemon.
//
// Benefits over testcontainers:
//   - Zero external dependencies (no Docker required)
//   - Fast startup (microseconds vs seconds)
//   - Works everywhere Go works (CI/CD friendly)
//   - Perfect for parallel test execution
//   - Automatic cleanup via t.Cleanup()
//
// miniredis does not advance TTLs on its own; tests that care about expiry
// call FastForward on the returned server.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//
// Returns:
//   - *miniredis.Miniredis: The in-process server, for FastForward and key inspection
//   - *redis.Client: Connected client (closed automatically on test completion)
//
// Example:
//
//	func TestMyComponent(t *testing.T) {
//	    srv, client := relaytest.StartMiniRedis(t)
//	    // Use client for your tests; srv.FastForward(ttl) to expire keys
//	}
func StartMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	srv := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr:        srv.Addr(),
		DialTimeout: 2 * time.Second,
	})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return srv, client
}
