package transport

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"

	"wsiorpc/internal/wsierr"
)

// Subprotocol is the WebSocket subprotocol token this protocol negotiates
// (§4.9). The client must offer it; the server must accept only
// connections that negotiate it.
const Subprotocol = "websocket.io-rpc-v0.1"

// wsTransport adapts a *websocket.Conn (nhooyr.io/websocket, the teacher's
// own WebSocket library) to the Transport interface, same way
// gateway/server.go in the teacher uses websocket.Accept/Dial — but
// driving raw binary frames instead of wsjson.
type wsTransport struct {
	conn *websocket.Conn
}

// Wrap adapts an already-established *websocket.Conn.
func Wrap(conn *websocket.Conn) Transport {
	conn.SetReadLimit(32 << 20) // 32MiB: generous ceiling against a runaway peer
	return &wsTransport{conn: conn}
}

// Accept upgrades an inbound HTTP request to a WebSocket connection,
// requiring the wsiorpc subprotocol (§4.9).
func Accept(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (Transport, error) {
	if opts == nil {
		opts = &websocket.AcceptOptions{}
	}
	opts.Subprotocols = append([]string{Subprotocol}, opts.Subprotocols...)

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	if conn.Subprotocol() != Subprotocol {
		conn.Close(websocket.StatusProtocolError, "subprotocol mismatch")
		return nil, fmt.Errorf("transport: peer did not negotiate %s", Subprotocol)
	}
	return Wrap(conn), nil
}

// Dial connects to url as a wsiorpc client, offering the wsiorpc
// subprotocol (§4.9).
func Dial(ctx context.Context, url string, opts *websocket.DialOptions) (Transport, error) {
	if opts == nil {
		opts = &websocket.DialOptions{}
	}
	opts.Subprotocols = append([]string{Subprotocol}, opts.Subprotocols...)

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return Wrap(conn), nil
}

func (t *wsTransport) Recv(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		t.conn.Close(websocket.StatusUnsupportedData, "binary messages only")
		return nil, wsierr.ErrTextMessage
	}
	return data, nil
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *wsTransport) Close(code StatusCode, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

func (t *wsTransport) Subprotocol() string {
	return t.conn.Subprotocol()
}
