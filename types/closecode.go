package types

// CloseCode is a WebSocket close code sent when the relay terminates a
// client connection.
//
// 1000 is the standard normal-closure code; the 4xxx range is reserved for
// application-defined codes and mirrors what the browser-side plugin expects.
type CloseCode int

const (
	// CloseNormal indicates a clean, intentional disconnect.
	CloseNormal CloseCode = 1000

	// CloseInternalError indicates an unexpected relay-side failure.
	CloseInternalError CloseCode = 4000

	// CloseNoClientID indicates the upgrade request carried no client ID.
	CloseNoClientID CloseCode = 4001

	// CloseNoAuth indicates the upgrade request carried no auth token.
	CloseNoAuth CloseCode = 4002

	// CloseNoTokenGroup indicates the token resolves to no active group.
	CloseNoTokenGroup CloseCode = 4003

	// CloseDuplicateConnection indicates the client ID already has a live
	// connection on this instance. The original connection is kept.
	CloseDuplicateConnection CloseCode = 4004

	// CloseServerShutdown indicates the relay is shutting down.
	CloseServerShutdown CloseCode = 4005
)

// String returns the human-readable reason sent in the close frame.
func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal closure"
	case CloseInternalError:
		return "internal error"
	case CloseNoClientID:
		return "missing client ID"
	case CloseNoAuth:
		return "missing auth token"
	case CloseNoTokenGroup:
		return "no active token group"
	case CloseDuplicateConnection:
		return "duplicate connection"
	case CloseServerShutdown:
		return "server shutting down"
	default:
		return "unknown"
	}
}
