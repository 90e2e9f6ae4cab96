// Package testing provides test utilities for the relay library.
//
// This package offers helpers for setting up test environments, particularly
// in-process Redis servers for integration testing. It follows Go's convention
// of providing testing utilities in a dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartMiniRedis: In-process Redis server plus connected client
//   - NewTestLogger: types.Logger that writes through testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    relaytest "github.com/ssjmarx/The-Gold-Box-sub002/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, client := relaytest.StartMiniRedis(t)
//	    // Use client for your tests
//	}
package testing
