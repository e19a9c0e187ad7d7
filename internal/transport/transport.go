// Package transport defines the external collaborator the spec places out
// of scope for the core (§1): an ordered, reliable, binary-message
// WebSocket connection. wsiorpc's dispatcher, sender, and endpoints are
// written against this interface; internal/transport/ws.go is the only
// concrete implementation this repository ships, backed by
// nhooyr.io/websocket.
package transport

import "context"

// StatusCode mirrors the subset of WebSocket close codes wsiorpc itself
// has occasion to send (RFC 6455 §7.4.1), kept independent of the
// concrete driver package so callers needn't import it.
type StatusCode int

const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusProtocolError   StatusCode = 1002
	StatusUnsupportedData StatusCode = 1003
	StatusInternalError   StatusCode = 1011
)

// Transport is the ordered, reliable, binary-message duplex the wsiorpc
// engine is layered over. Implementations deliver messages in the order
// sent and never split or coalesce them — "frame ends at the WebSocket
// message boundary" (§3).
type Transport interface {
	// Recv blocks for the next inbound binary message. It returns
	// wsierr.ErrTextMessage if a text message arrives (§6: a protocol
	// violation), and a non-nil error once the connection is closed —
	// callers should treat any error as terminal.
	Recv(ctx context.Context) ([]byte, error)

	// Send writes one binary message. Implementations must serialize
	// concurrent Send calls so that no two messages interleave (§4.6);
	// a Transport used directly by multiple goroutines must do this
	// itself, though wsiorpc's own Sender (internal/sender) already
	// serializes all outbound traffic for a connection and is the
	// expected caller.
	Send(ctx context.Context, data []byte) error

	// Close closes the underlying connection with the given status code
	// and reason. Idempotent.
	Close(code StatusCode, reason string) error

	// Subprotocol returns the negotiated WebSocket subprotocol token.
	Subprotocol() string
}
