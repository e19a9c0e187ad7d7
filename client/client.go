// Package client implements the wsiorpc Client Endpoint (§4.7, §4.8): it
// dials a server, issues correlated, cancellable calls, fires
// notifications, and exposes inbound event streams. Structured after the
// teacher's pkg/nodesdk functional-options constructor, layered over the
// same internal/sender, internal/pending, internal/eventstream machinery
// the server package shares.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"wsiorpc/internal/eventstream"
	"wsiorpc/internal/pending"
	"wsiorpc/internal/sender"
	"wsiorpc/internal/transport"
	"wsiorpc/internal/tracing"
	"wsiorpc/internal/wire"
	"wsiorpc/internal/wsierr"

	"nhooyr.io/websocket"
)

// Client is a wsiorpc client endpoint bound to one connection.
type Client struct {
	url           string
	logger        *slog.Logger
	sendQueueCap  int
	eventQueueCap int
	dialOpts      *websocket.DialOptions

	tr      transport.Transport
	send    *sender.Sender
	pending *pending.Table
	events  *eventstream.Registry
	nextID  atomic.Uint32

	closed      chan struct{}
	closeOnce   sync.Once
	closeReason atomic.Value // string
}

// New creates a Client bound to url. It does not connect; call Connect.
func New(url string, opts ...Option) *Client {
	c := defaultClient(url)
	for _, opt := range opts {
		opt(c)
	}
	c.pending = pending.New()
	c.events = eventstream.New(c.eventQueueCap)
	return c
}

// Connect dials the server and starts the Sender and Dispatcher
// goroutines. ctx should be long-lived — it governs the connection, not
// any single call.
func (c *Client) Connect(ctx context.Context) error {
	tr, err := transport.Dial(ctx, c.url, c.dialOpts)
	if err != nil {
		return fmt.Errorf("client: connect: %w", err)
	}
	c.tr = tr
	c.send = sender.New(tr, c.sendQueueCap, c.logger)

	go c.send.Run(ctx)
	go c.dispatch(ctx)
	return nil
}

// Call issues a Request for event and blocks for its Response. Cancelling
// ctx sends a Reset for the call and returns a wsierr.Aborted error
// carrying the cancellation cause verbatim — context.Cause(ctx), which
// falls back to ctx.Err() when the caller used plain context.WithCancel
// rather than WithCancelCause (§4.7, §4.2, §7).
func (c *Client) Call(ctx context.Context, event string, payload []byte) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "wsiorpc.client.call")
	defer span.End()
	span.SetAttributes(tracing.StringAttr("event", event))

	id := c.nextID.Add(1)
	resultCh := c.pending.Insert(id)

	if err := c.send.Send(ctx, wire.Request(id, event, payload)); err != nil {
		c.pending.Abort(id, err)
		tracing.RecordError(span, err)
		return nil, err
	}

	select {
	case res := <-resultCh:
		if res.Err != nil {
			tracing.RecordError(span, res.Err)
			return nil, res.Err
		}
		tracing.SetOK(span)
		return res.Payload, nil

	case <-ctx.Done():
		abortErr := wsierr.Aborted(context.Cause(ctx))
		if c.pending.Abort(id, abortErr) {
			// Only the side that actually aborted the local entry emits the
			// Reset — if Abort returned false, a Response already arrived
			// concurrently and the result is sitting in resultCh instead.
			c.send.Send(context.Background(), wire.Reset(id))
			tracing.RecordError(span, abortErr)
			return nil, abortErr
		}
		res := <-resultCh
		if res.Err != nil {
			tracing.RecordError(span, res.Err)
			return nil, res.Err
		}
		tracing.SetOK(span)
		return res.Payload, nil
	}
}

// Notify sends a fire-and-forget Notify frame (§4.8).
func (c *Client) Notify(ctx context.Context, event string, payload []byte) error {
	return c.send.Send(ctx, wire.Notify(event, payload))
}

// On subscribes to an event name, returning a Stream of its inbound
// Notify payloads. A second On for the same name before RemoveEvent
// returns ErrAlreadySubscribed (§4.4, §9 open question).
func (c *Client) On(event string) (*eventstream.Stream, error) {
	return c.events.Subscribe(event)
}

// RemoveEvent unsubscribes event, unblocking any consumer waiting on its
// Stream. Reports whether a subscription was present.
func (c *Client) RemoveEvent(event string) bool {
	return c.events.Unsubscribe(event)
}

// Close closes the underlying connection, draining every pending call
// with ErrConnectionClosed and ending every event stream (§4.2, §8
// invariant 6).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.tr != nil {
			c.tr.Close(transport.StatusNormalClosure, "client closing")
		}
		if c.send != nil {
			c.send.Close()
		}
		c.pending.Drain(wsierr.ErrConnectionClosed)
		c.events.CloseAll()
	})
}

// dispatch is the client's sole reader. It routes Response frames to the
// Pending Call Table and Notify frames to the Event Stream Registry
// (§4.2's Notify-routing: client side consumes via On/eventstream, not a
// Procedure channel).
func (c *Client) dispatch(ctx context.Context) {
	defer c.Close()

	for {
		data, err := c.tr.Recv(ctx)
		if err != nil {
			return
		}

		f, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("client: decode failed, closing connection", "error", err)
			return
		}

		switch f.Op {
		case wire.OpResponse:
			c.pending.Complete(f.ID, f.Payload)

		case wire.OpNotify:
			if _, err := c.events.Publish(ctx, f.Event, f.Payload); err != nil {
				c.logger.Warn("client: failed to deliver notify", "event", f.Event, "error", err)
			}

		case wire.OpRequest, wire.OpReset:
			c.logger.Warn("client: unexpected inbound frame from server", "opcode", f.Op.String())
		}
	}
}

// Status is a snapshot of this client's in-flight work (§6: status() →
// { pending_ids, active_event_names }).
type Status struct {
	PendingIDs       []uint32
	ActiveEventNames []string
}

// Status reports outstanding call ids and subscribed event names.
func (c *Client) Status() Status {
	return Status{
		PendingIDs:       c.pending.IDs(),
		ActiveEventNames: c.events.Names(),
	}
}
