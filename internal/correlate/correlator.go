// Package correlate matches outbound WebSocket requests to inbound results.
//
// Every relayed HTTP request becomes one frame on the target client's socket
// tagged with a unique request id. The calling handler parks on the pending
// entry until the client answers with a frame carrying the same id, or the
// per-request deadline fires. Whichever side removes the entry from the
// pending map owns resolution, so a request resolves exactly once and late
// results are silent no-ops.
package correlate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/logging"
	"github.com/ssjmarx/The-Gold-Box-sub002/internal/metrics"
	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// DefaultTimeout bounds a correlated request when the route declares none.
const DefaultTimeout = 10 * time.Second

// Variant tags a pending request with kind-specific matching rules.
//
// Most kinds correlate purely by request id. The exceptions are modeled as
// concrete variants rather than optional fields on one catch-all struct, so
// matching is a type switch instead of property probing.
type Variant interface {
	variant()
}

// Generic correlates by request id alone.
type Generic struct{}

func (Generic) variant() {}

// ActorSheet correlates by request id and entity UUID. Sheet renders for a
// different entity on the same socket must not satisfy this request.
type ActorSheet struct {
	// EntityUUID is the entity whose sheet was requested.
	EntityUUID string

	// Format is the requested render format, carried through to the caller.
	Format string
}

func (ActorSheet) variant() {}

// Download correlates by request id and carries the requested file format
// through to the caller.
type Download struct {
	Format string
}

func (Download) variant() {}

// Request describes one correlated exchange.
type Request struct {
	// Kind is the outbound frame type and the request id prefix.
	Kind string

	// Payload fields are merged flat into the outbound frame.
	Payload map[string]any

	// Timeout overrides DefaultTimeout when positive. Upload and download
	// routes use longer windows than interactive ones.
	Timeout time.Duration

	// Variant selects kind-specific matching. Nil means Generic.
	Variant Variant
}

// Result is the client's answer delivered to the parked caller.
type Result struct {
	// Body is the full decoded result frame.
	Body map[string]any

	// ErrorMessage is the client's error field when the request was answered
	// with a rejection instead of a result. Callers map it to a 400.
	ErrorMessage string

	// Format echoes the pending variant's format for sheet and download
	// results so response shaping does not re-derive it.
	Format string
}

type outcome struct {
	msg *types.ResultMessage
}

type pending struct {
	kind    string
	variant Variant
	sentAt  time.Time

	// done is buffered so the resolving side never blocks. Only the
	// goroutine that removed the entry from the map sends on it.
	done chan outcome
}

// Correlator assigns request ids, parks callers, and matches results.
//
// Safe for concurrent use. Each relayed request holds exactly one entry in
// the pending map between send and resolution.
type Correlator struct {
	pending        *xsync.Map[string, *pending]
	defaultTimeout time.Duration
	logger         types.Logger
	metrics        types.MetricsCollector
}

// New creates a correlator.
//
// Parameters:
//   - defaultTimeout: Deadline for requests that declare none; 0 means DefaultTimeout
//
// Returns:
//   - *Correlator: Initialized correlator with nop logger and metrics
func New(defaultTimeout time.Duration) *Correlator {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}

	return &Correlator{
		pending:        xsync.NewMap[string, *pending](),
		defaultTimeout: defaultTimeout,
		logger:         logging.NewNop(),
		metrics:        metrics.NewNop(),
	}
}

// SetLogger sets the logger. Optional.
func (c *Correlator) SetLogger(logger types.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetMetrics sets the metrics collector. Optional.
func (c *Correlator) SetMetrics(m types.MetricsCollector) {
	if m != nil {
		c.metrics = m
	}
}

// Outstanding returns the number of in-flight requests.
func (c *Correlator) Outstanding() int {
	return c.pending.Size()
}

// Send relays one request to a client and parks until it resolves.
//
// The request id is generated here and embedded in the outbound frame as
// requestId. A failed socket write removes the pending entry immediately and
// surfaces ErrUpstreamSend; sends are never retried because replaying a
// relayed command (a dice roll, a macro) would execute it twice.
//
// Parameters:
//   - ctx: Caller's context; cancellation abandons the request
//   - client: Target client with a live socket
//   - req: Kind, payload, optional timeout and matching variant
//
// Returns:
//   - *Result: The client's answer, or its rejection in ErrorMessage
//   - error: ErrUpstreamSend, ErrRequestTimeout, or the context's error
func (c *Correlator) Send(ctx context.Context, client *types.Client, req Request) (*Result, error) {
	if req.Kind == "" {
		return nil, fmt.Errorf("correlate: request kind is required")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	variant := req.Variant
	if variant == nil {
		variant = Generic{}
	}

	id := NewRequestID(req.Kind)
	entry := &pending{
		kind:    req.Kind,
		variant: variant,
		sentAt:  time.Now(),
		done:    make(chan outcome, 1),
	}
	c.pending.Store(id, entry)
	c.metrics.SetPendingRequests(c.pending.Size())

	envelope := types.RequestEnvelope{Type: req.Kind, RequestID: id, Payload: req.Payload}
	if err := client.Conn.WriteJSON(envelope); err != nil {
		c.pending.Delete(id)
		c.metrics.SetPendingRequests(c.pending.Size())
		c.metrics.RecordRequestResolved(req.Kind, "send_failure", time.Since(entry.sentAt).Seconds())
		c.logger.Warn("request send failed",
			"client_id", client.ID,
			"kind", req.Kind,
			"request_id", id,
			"error", err,
		)

		return nil, fmt.Errorf("%w: %w", types.ErrUpstreamSend, err)
	}

	c.metrics.RecordRequestSent(req.Kind)
	c.logger.Debug("request sent",
		"client_id", client.ID,
		"kind", req.Kind,
		"request_id", id,
		"timeout", timeout,
	)

	return c.await(ctx, id, entry, timeout)
}

// await parks on the pending entry until a result, the deadline, or the
// caller's context wins. Removing the entry from the map is the commit
// point: whichever side succeeds at LoadAndDelete owns resolution.
func (c *Correlator) await(ctx context.Context, id string, entry *pending, timeout time.Duration) (*Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-entry.done:
		return c.finish(entry, out), nil

	case <-timer.C:
		if _, ok := c.pending.LoadAndDelete(id); !ok {
			// A result won the race during timer delivery.
			out := <-entry.done
			return c.finish(entry, out), nil
		}
		c.metrics.SetPendingRequests(c.pending.Size())
		c.metrics.RecordRequestResolved(entry.kind, "timeout", time.Since(entry.sentAt).Seconds())
		c.logger.Warn("request timed out", "kind", entry.kind, "request_id", id, "timeout", timeout)

		return nil, types.ErrRequestTimeout

	case <-ctx.Done():
		if _, ok := c.pending.LoadAndDelete(id); !ok {
			out := <-entry.done
			return c.finish(entry, out), nil
		}
		c.metrics.SetPendingRequests(c.pending.Size())
		c.metrics.RecordRequestResolved(entry.kind, "canceled", time.Since(entry.sentAt).Seconds())

		return nil, ctx.Err()
	}
}

// finish converts a matched result message into the caller-facing Result.
func (c *Correlator) finish(entry *pending, out outcome) *Result {
	res := &Result{Body: out.msg.Body, ErrorMessage: out.msg.Error}
	switch v := entry.variant.(type) {
	case ActorSheet:
		res.Format = v.Format
	case Download:
		res.Format = v.Format
	}

	outcomeLabel := "result"
	if res.ErrorMessage != "" {
		outcomeLabel = "error"
	}
	c.metrics.RecordRequestResolved(entry.kind, outcomeLabel, time.Since(entry.sentAt).Seconds())

	return res
}

// Resolve hands an inbound result frame to its parked caller.
//
// Unknown or already-resolved request ids are silent no-ops: the request
// timed out, the caller went away, or the frame is simply stray. Resolve
// never fails and never resolves the same request twice.
//
// Parameters:
//   - msg: Decoded result frame
//
// Returns:
//   - bool: true when a pending request was resolved by this frame
func (c *Correlator) Resolve(msg *types.ResultMessage) bool {
	entry, ok := c.pending.Load(msg.RequestID)
	if !ok {
		c.metrics.RecordStrayResult(msg.Kind)
		c.logger.Debug("stray result dropped", "kind", msg.Kind, "request_id", msg.RequestID)

		return false
	}

	// Kind-specific gate before committing. A sheet result for the wrong
	// entity leaves the request parked for the right one.
	if sheet, isSheet := entry.variant.(ActorSheet); isSheet {
		if sheet.EntityUUID != "" && msg.EntityUUID != sheet.EntityUUID {
			c.logger.Debug("sheet result for different entity ignored",
				"request_id", msg.RequestID,
				"want_uuid", sheet.EntityUUID,
				"got_uuid", msg.EntityUUID,
			)

			return false
		}
	}

	if _, ok := c.pending.LoadAndDelete(msg.RequestID); !ok {
		// Lost the commit race to the timeout path.
		c.metrics.RecordStrayResult(msg.Kind)
		return false
	}
	c.metrics.SetPendingRequests(c.pending.Size())

	entry.done <- outcome{msg: msg}

	return true
}

// NewRequestID builds a correlator request id.
//
// The shape is {kind}_{unixMillis}_{uuidSuffix}. The UUID suffix makes
// collisions astronomically unlikely even for ids minted in the same
// millisecond across instances.
func NewRequestID(kind string) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%d_%s", kind, time.Now().UnixMilli(), suffix)
}
