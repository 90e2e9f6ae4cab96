package redisutil

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes dial failures, timeouts, dropped connections, and closed
// clients. Connect retries only these; the presence directory treats them
// as the expected degrade-to-local-data case rather than a data fault.
//
// Kept in internal/redisutil to avoid importing Redis dependencies in the
// types/ package.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Check for known connectivity error types
	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// IsNotFound checks if an error is the Redis nil reply (key absent).
//
// Absent keys are an expected condition for presence lookups and consumed
// handshakes, not a failure.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if the error is redis.Nil
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
