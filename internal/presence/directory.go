// Package presence maintains the shared client-to-instance directory in Redis.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/logging"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/metrics"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/redisutil"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// Location classifies where a client is connected.
type Location int

const (
	// LocationUnknown means no instance currently serves the client.
	LocationUnknown Location = iota

	// LocationLocal means this instance serves the client.
	LocationLocal

	// LocationRemote means another instance serves the client.
	LocationRemote
)

// String returns the string representation of the location.
func (l Location) String() string {
	switch l {
	case LocationLocal:
		return "local"
	case LocationRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Resolution is the answer to a presence lookup.
type Resolution struct {
	// Where classifies the client's location.
	Where Location

	// InstanceID names the owning instance when Where is LocationRemote.
	InstanceID string

	// Degraded is true when Redis was unreachable and only local data
	// answered. Callers treat the answer as authoritative anyway; staleness
	// is bounded by the record TTL.
	Degraded bool
}

// Directory publishes and resolves client ownership records shared by all
// relay instances through one Redis deployment.
//
// Every record carries the same TTL and is refreshed by the heartbeat
// sweep, so a crashed instance's claims expire on their own. A nil Redis
// client puts the directory in permanent local-only mode: lookups answer
// from the local check alone and publications are no-ops.
//
// Directory failures are never fatal to the request path. Connectivity
// trouble degrades that single call to local data with a warning; any
// other Redis failure answers the same way but is logged as an error.
type Directory struct {
	client     *redis.Client
	instanceID string
	ttl        time.Duration
	opTimeout  time.Duration
	logger     types.Logger
	metrics    types.MetricsCollector
}

// New creates a presence directory.
//
// Parameters:
//   - client: Shared Redis client, or nil for local-only mode
//   - instanceID: This relay instance's unique ID
//   - ttl: Record lifetime; must be refreshed faster than it expires
//
// Returns:
//   - *Directory: Initialized directory with nop logger and metrics
func New(client *redis.Client, instanceID string, ttl time.Duration) *Directory {
	return &Directory{
		client:     client,
		instanceID: instanceID,
		ttl:        ttl,
		opTimeout:  5 * time.Second,
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
	}
}

// SetLogger sets the logger. Optional.
func (d *Directory) SetLogger(logger types.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics sets the metrics collector. Optional.
func (d *Directory) SetMetrics(m types.MetricsCollector) {
	if m != nil {
		d.metrics = m
	}
}

// SetOperationTimeout bounds individual Redis round trips. Optional.
func (d *Directory) SetOperationTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.opTimeout = timeout
	}
}

// LocalOnly reports whether the directory has no shared store at all.
func (d *Directory) LocalOnly() bool {
	return d.client == nil
}

// InstanceID returns this instance's ID as written into ownership records.
func (d *Directory) InstanceID() string {
	return d.instanceID
}

// Publish records this instance as the owner of a client.
//
// Called after successful registration. Writes the client key, the token
// key, and the group set membership, all with the shared TTL.
//
// Parameters:
//   - ctx: Context for cancellation
//   - clientID: Registered client ID
//   - tokenDigest: Digest of the client's auth token
//
// Returns:
//   - error: Redis failure; the caller logs and continues
func (d *Directory) Publish(ctx context.Context, clientID, tokenDigest string) error {
	if d.client == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	pipe := d.client.TxPipeline()
	pipe.Set(opCtx, redisutil.PresenceClientKey(clientID), d.instanceID, d.ttl)
	pipe.Set(opCtx, redisutil.PresenceTokenKey(tokenDigest), d.instanceID, d.ttl)
	pipe.SAdd(opCtx, redisutil.PresenceGroupKey(tokenDigest), clientID)
	pipe.Expire(opCtx, redisutil.PresenceGroupKey(tokenDigest), d.ttl)

	_, err := pipe.Exec(opCtx)
	d.metrics.RecordPresenceOperation("publish", err == nil)
	if err != nil {
		d.logger.Warn("presence publish failed, directory out of date",
			"client_id", clientID,
			"error", err,
		)

		return fmt.Errorf("presence publish: %w", err)
	}

	return nil
}

// Refresh re-applies TTLs for every live client this instance serves.
//
// Called by the heartbeat sweep. Groups are keyed by token digest so the
// token and group keys are refreshed once per group rather than per client.
//
// Parameters:
//   - ctx: Context for cancellation
//   - groups: Live client IDs keyed by token digest
//
// Returns:
//   - error: Redis failure; records keep their previous TTL
func (d *Directory) Refresh(ctx context.Context, groups map[string][]string) error {
	if d.client == nil || len(groups) == 0 {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	pipe := d.client.Pipeline()
	for digest, ids := range groups {
		pipe.Expire(opCtx, redisutil.PresenceTokenKey(digest), d.ttl)
		pipe.Expire(opCtx, redisutil.PresenceGroupKey(digest), d.ttl)
		for _, id := range ids {
			// SET rather than EXPIRE: re-asserts ownership after a Redis
			// flush or failover dropped the key.
			pipe.Set(opCtx, redisutil.PresenceClientKey(id), d.instanceID, d.ttl)
		}
	}
	pipe.Expire(opCtx, redisutil.InstanceKey(d.instanceID), d.ttl)

	_, err := pipe.Exec(opCtx)
	d.metrics.RecordPresenceOperation("refresh", err == nil)
	if err != nil {
		d.logger.Warn("presence refresh failed, records age toward expiry", "error", err)

		return fmt.Errorf("presence refresh: %w", err)
	}

	return nil
}

// Remove deletes a client's ownership records.
//
// Called on clean disconnect. The token-level keys are removed only when
// the group set empties; crashed-instance leftovers expire by TTL instead.
//
// Parameters:
//   - ctx: Context for cancellation
//   - clientID: Removed client ID
//   - tokenDigest: Digest of the client's auth token
//
// Returns:
//   - error: Redis failure; records expire by TTL instead
func (d *Directory) Remove(ctx context.Context, clientID, tokenDigest string) error {
	if d.client == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	groupKey := redisutil.PresenceGroupKey(tokenDigest)

	pipe := d.client.TxPipeline()
	pipe.Del(opCtx, redisutil.PresenceClientKey(clientID))
	pipe.SRem(opCtx, groupKey, clientID)
	remaining := pipe.SCard(opCtx, groupKey)

	_, err := pipe.Exec(opCtx)
	if err == nil && remaining.Val() == 0 {
		_, err = d.client.Del(opCtx, redisutil.PresenceTokenKey(tokenDigest), groupKey).Result()
	}

	d.metrics.RecordPresenceOperation("remove", err == nil)
	if err != nil {
		d.logger.Warn("presence remove failed, records expire by TTL",
			"client_id", clientID,
			"error", err,
		)

		return fmt.Errorf("presence remove: %w", err)
	}

	return nil
}

// Resolve locates a client.
//
// The local check wins outright: an ID live on this instance is local no
// matter what the directory says. Otherwise the shared record decides. A
// record naming this same instance while the local check failed is stale,
// so the client counts as unknown rather than remote.
//
// Redis errors degrade the call to the local answer with Degraded set;
// the request path never fails on directory trouble.
//
// Parameters:
//   - ctx: Context for cancellation
//   - clientID: Client to locate
//   - localCheck: Reports whether an ID is live on this instance
//
// Returns:
//   - Resolution: Location, owning instance, and degradation flag
func (d *Directory) Resolve(ctx context.Context, clientID string, localCheck func(string) bool) Resolution {
	if localCheck(clientID) {
		return Resolution{Where: LocationLocal}
	}

	if d.client == nil {
		return Resolution{Where: LocationUnknown}
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	owner, err := d.client.Get(opCtx, redisutil.PresenceClientKey(clientID)).Result()
	if err != nil {
		if redisutil.IsNotFound(err) {
			d.metrics.RecordPresenceOperation("resolve", true)
			return Resolution{Where: LocationUnknown}
		}

		d.metrics.RecordPresenceOperation("resolve", false)
		if redisutil.IsConnectivityError(err) {
			d.logger.Warn("presence resolve degraded to local data",
				"client_id", clientID,
				"error", err,
			)
		} else {
			d.logger.Error("presence lookup failed, answering from local data",
				"client_id", clientID,
				"error", err,
			)
		}

		return Resolution{Where: LocationUnknown, Degraded: true}
	}

	d.metrics.RecordPresenceOperation("resolve", true)

	if owner == d.instanceID {
		// Stale self-record: the client dropped here and the TTL has not
		// caught up yet.
		return Resolution{Where: LocationUnknown}
	}

	return Resolution{Where: LocationRemote, InstanceID: owner}
}

// AnnounceInstance registers this instance in the shared instance list.
//
// Purely operational: lets tooling enumerate the fleet. Refreshed by the
// same sweep that refreshes client records.
func (d *Directory) AnnounceInstance(ctx context.Context) error {
	if d.client == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	err := d.client.Set(opCtx, redisutil.InstanceKey(d.instanceID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
	d.metrics.RecordPresenceOperation("announce", err == nil)
	if err != nil {
		return fmt.Errorf("instance announce: %w", err)
	}

	return nil
}
