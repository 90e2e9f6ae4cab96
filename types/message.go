package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame kinds accepted from clients. The set is closed: ParseInbound maps
// every frame to exactly one of the InboundMessage implementations below,
// and anything unrecognized becomes an UnknownMessage rather than an error
// so one misbehaving plugin build cannot kill the read loop.
const (
	kindPing      = "ping"
	kindPong      = "pong"
	kindBroadcast = "broadcast"
)

// ErrMalformedFrame is returned by ParseInbound for frames that are not
// JSON objects or carry no usable type.
var ErrMalformedFrame = errors.New("malformed frame")

// InboundMessage is the closed union of frames a client may send.
//
// Switch on the concrete type to dispatch:
//
//	switch m := msg.(type) {
//	case *PingMessage:      // reply with pong
//	case *PongMessage:      // stamp liveness
//	case *ResultMessage:    // hand to the correlator
//	case *BroadcastMessage: // relay to the token group
//	case *UnknownMessage:   // count and drop
//	}
type InboundMessage interface {
	isInbound()
}

// PingMessage is an in-band liveness probe from the client; the relay
// answers with an in-band pong.
type PingMessage struct{}

func (*PingMessage) isInbound() {}

// PongMessage is the client's answer to a relay ping, in-band variant.
// Protocol-level pongs are handled by the socket layer directly.
type PongMessage struct{}

func (*PongMessage) isInbound() {}

// BroadcastMessage asks the relay to fan the payload out to every other
// live member of the sender's token group. Delivery is best effort.
type BroadcastMessage struct {
	// Payload is relayed verbatim, including the original type field.
	Payload map[string]any
}

func (*BroadcastMessage) isInbound() {}

// ResultMessage is the client's answer to a previously relayed request.
//
// Kind is the frame's type verbatim (e.g. "roll-result"). RequestID ties
// the result to a pending request; EntityUUID and Error are optional
// fields some result kinds carry.
type ResultMessage struct {
	Kind       string
	RequestID  string
	EntityUUID string
	Error      string

	// Body is the full decoded frame, passed through to the HTTP caller
	// after sanitization.
	Body map[string]any
}

func (*ResultMessage) isInbound() {}

// UnknownMessage is a well-formed frame of a kind the relay does not handle.
type UnknownMessage struct {
	Kind string
}

func (*UnknownMessage) isInbound() {}

// ParseInbound decodes one client frame into the closed union.
//
// A frame with a requestId is a result regardless of its specific kind;
// the correlator decides whether anything is waiting for it.
//
// Parameters:
//   - data: Raw text frame bytes
//
// Returns:
//   - InboundMessage: One of the union members, never nil on success
//   - error: ErrMalformedFrame (possibly wrapped) for undecodable frames
func ParseInbound(data []byte) (InboundMessage, error) {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	kind, _ := body["type"].(string)
	if kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch kind {
	case kindPing:
		return &PingMessage{}, nil
	case kindPong:
		return &PongMessage{}, nil
	case kindBroadcast:
		return &BroadcastMessage{Payload: body}, nil
	}

	if requestID, _ := body["requestId"].(string); requestID != "" {
		msg := &ResultMessage{
			Kind:      kind,
			RequestID: requestID,
			Body:      body,
		}
		if uuid, ok := body["uuid"].(string); ok {
			msg.EntityUUID = uuid
		}
		if errMsg, ok := body["error"].(string); ok {
			msg.Error = errMsg
		}

		return msg, nil
	}

	return &UnknownMessage{Kind: kind}, nil
}

// RequestEnvelope is the outbound frame shape for correlated requests.
//
// Type and RequestID are fixed by the correlator; Payload fields are merged
// flat into the frame so the plugin sees `{type, requestId, ...params}`.
type RequestEnvelope struct {
	Type      string
	RequestID string
	Payload   map[string]any
}

// MarshalJSON flattens the payload fields beside type and requestId.
func (e RequestEnvelope) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Payload)+2)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat["type"] = e.Type
	flat["requestId"] = e.RequestID

	return json.Marshal(flat)
}
