// Package redisutil provides connection helpers and key naming for the
// shared Redis deployment backing presence and handshake state.
package redisutil

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// Options configures the shared Redis connection.
type Options struct {
	// Addr is the host:port of the Redis deployment. Empty means the relay
	// runs without a shared directory (local-only mode).
	Addr string

	// Password is the optional AUTH password.
	Password string

	// DB is the logical database index.
	DB int

	// DialTimeout bounds the initial connectivity check.
	DialTimeout time.Duration
}

// Connect creates a Redis client and verifies connectivity with retries.
//
// Transient dial failures are retried with exponential backoff so that a
// relay racing its Redis container at boot still comes up cleanly.
// Failures that cannot heal on retry, AUTH rejections for example, abort
// immediately. The caller decides whether a final failure is fatal; the
// relay treats it as a signal to run local-only.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - opts: Connection options; Addr must be non-empty
//   - maxRetries: Maximum number of ping attempts (default: 3)
//
// Returns:
//   - *redis.Client: Verified client
//   - error: Last ping error; connectivity failures wrap types.ErrConnectivity
func Connect(ctx context.Context, opts Options, maxRetries int) (*redis.Client, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			return client, nil
		}
		if !IsConnectivityError(err) {
			_ = client.Close()
			return nil, fmt.Errorf("redis rejected connection at %s: %w", opts.Addr, err)
		}
		lastErr = err

		if ctx.Err() != nil {
			_ = client.Close()
			return nil, fmt.Errorf("context cancelled during redis connect: %w", ctx.Err())
		}

		// Exponential backoff: 100ms, 200ms, 400ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries, no overflow risk
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	_ = client.Close()

	return nil, fmt.Errorf("redis unreachable at %s: %w: %w", opts.Addr, types.ErrConnectivity, lastErr)
}

// Key prefixes shared by every relay instance on one Redis deployment.
// Changing these is a breaking change for mixed-version fleets.
const (
	presenceClientPrefix   = "relay:presence:client:"
	presenceTokenPrefix    = "relay:presence:token:"
	presenceGroupPrefix    = "relay:presence:tokenclients:"
	handshakePrefix        = "relay:handshake:"
	pendingSessionPrefix   = "relay:session:pending:"
	sessionResultPrefix    = "relay:session:result:"
	handshakeWakeChanFmt   = "relay:handshake:wake:%s"
	instanceRegistryPrefix = "relay:instance:"
)

// PresenceClientKey maps a client ID to its owning instance ID.
func PresenceClientKey(clientID string) string {
	return presenceClientPrefix + clientID
}

// PresenceTokenKey maps a token digest to the instance that last published it.
func PresenceTokenKey(tokenDigest string) string {
	return presenceTokenPrefix + tokenDigest
}

// PresenceGroupKey is the SET of client IDs sharing a token digest.
func PresenceGroupKey(tokenDigest string) string {
	return presenceGroupPrefix + tokenDigest
}

// HandshakeKey stores one pending handshake record by token.
func HandshakeKey(token string) string {
	return handshakePrefix + token
}

// PendingSessionKey parks a start-session request for the owning instance.
func PendingSessionKey(token string) string {
	return pendingSessionPrefix + token
}

// SessionResultKey carries the outcome of a remotely executed start-session.
func SessionResultKey(token string) string {
	return sessionResultPrefix + token
}

// WakeChannel is the pub/sub channel an instance subscribes to for parked
// start-session work addressed to it.
func WakeChannel(instanceID string) string {
	return fmt.Sprintf(handshakeWakeChanFmt, instanceID)
}

// InstanceKey records a live relay instance for operational visibility.
func InstanceKey(instanceID string) string {
	return instanceRegistryPrefix + instanceID
}
