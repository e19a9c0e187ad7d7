package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"wsiorpc/internal/cancel"
	"wsiorpc/internal/sender"
	"wsiorpc/internal/tracing"
	"wsiorpc/internal/transport"
	"wsiorpc/internal/wire"
	"wsiorpc/internal/wsierr"
)

// procQueueCapacity is not referenced by newConn: a connection's buffer of
// undelivered Procedures, past which the Dispatcher blocks and applies
// backpressure to the transport read loop (§4.2, §5), is sized by the
// eventQueueCap argument (ServerConfig.EventQueueCapacity).
const procQueueCapacity = 64

// Conn is one accepted, authenticated connection. It owns the Dispatcher
// that turns inbound frames into Procedure values, generalized from the
// teacher's gateway.clientConn (sendCh + done channel + single reader).
type Conn struct {
	id     string
	info   *ClientInfo
	tr     transport.Transport
	send   *sender.Sender
	cancel *cancel.Registry
	limit  *rate.Limiter
	authz  Authorizer
	logger *slog.Logger

	procs       chan Procedure
	closed      chan struct{}
	closeOnce   sync.Once
	closeReason atomic.Value // string
}

func newConn(id string, info *ClientInfo, tr transport.Transport, eventQueueCap, sendQueueCap int, limit *rate.Limiter, authz Authorizer, logger *slog.Logger) *Conn {
	if authz == nil {
		authz = allowAll
	}
	return &Conn{
		id:     id,
		info:   info,
		tr:     tr,
		send:   sender.New(tr, sendQueueCap, logger),
		cancel: cancel.New(),
		limit:  limit,
		authz:  authz,
		logger: logger,
		procs:  make(chan Procedure, eventQueueCap),
		closed: make(chan struct{}),
	}
}

// ID returns the connection's server-assigned identifier.
func (c *Conn) ID() string { return c.id }

// Info returns the ClientInfo established at authentication.
func (c *Conn) Info() *ClientInfo { return c.info }

// Recv blocks for the next inbound Procedure (§4.5: recv() yields
// Procedure::Notify or Procedure::Call). It returns a non-nil error once
// the connection has closed and every buffered Procedure has been
// drained.
func (c *Conn) Recv(ctx context.Context) (Procedure, error) {
	select {
	case p, ok := <-c.procs:
		if ok {
			return p, nil
		}
		return Procedure{}, c.closeErr()
	case <-ctx.Done():
		return Procedure{}, ctx.Err()
	}
}

// Notify sends a fire-and-forget Notify frame to this connection's peer
// (§4.8).
func (c *Conn) Notify(ctx context.Context, event string, payload []byte) error {
	return c.send.Send(ctx, wire.Notify(event, payload))
}

// Notifier returns a cheap, cloneable handle bound to this connection,
// for application code that wants to push Notify frames from outside the
// Recv loop (e.g. the room broadcast actor) without holding onto *Conn.
func (c *Conn) Notifier() Notifier {
	return Notifier{conn: c}
}

// PendingCalls reports the number of in-flight Requests this connection
// is still computing a Response for, fed into Server.Status.
func (c *Conn) PendingCalls() int {
	return c.cancel.Len()
}

// Close closes the underlying transport and stops accepting new work.
// Idempotent.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason.Store(reason)
		close(c.closed)
		c.tr.Close(transport.StatusNormalClosure, reason)
		c.send.Close()
		c.cancel.Clear()
	})
}

func (c *Conn) closeErr() error {
	reason, _ := c.closeReason.Load().(string)
	return wsierr.Wrap("Conn.Recv", wsierr.ErrConnectionClosed, reason)
}

// dispatch is the connection's sole reader: it decodes inbound frames and
// turns them into Procedure values, or routes Reset frames into the
// cancellation registry (§4.2). It runs until Recv fails or ctx ends.
func (c *Conn) dispatch(ctx context.Context) {
	defer close(c.procs)
	defer c.Close("dispatcher exited")

	for {
		data, err := c.tr.Recv(ctx)
		if err != nil {
			return
		}

		f, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("server: decode failed, closing connection", "conn", c.id, "error", err)
			return
		}

		switch f.Op {
		case wire.OpNotify:
			if !c.enqueue(ctx, Procedure{Kind: KindNotify, Event: f.Event, Payload: f.Payload}) {
				return
			}

		case wire.OpRequest:
			_, span := tracing.StartSpan(ctx, "wsiorpc.server.request")
			span.SetAttributes(tracing.StringAttr("event", f.Event), tracing.Uint32Attr("call_id", f.ID))
			respond, canceler := c.cancel.Register(ctx, f.ID, c.send)
			span.End()

			if c.limit != nil && !c.limit.Allow() {
				c.logger.Warn("server: request rejected by rate limiter", "conn", c.id, "event", f.Event)
				if err := respond.Send(ctx, []byte(wsierr.ErrRateLimited.Error())); err != nil {
					c.logger.Warn("server: failed to send rate-limited response", "conn", c.id, "error", err)
				}
				continue
			}

			if !c.authz(c.info, f.Event) {
				c.logger.Warn("server: request rejected by authorizer", "conn", c.id, "event", f.Event)
				if err := respond.Send(ctx, []byte(wsierr.ErrForbidden.Error())); err != nil {
					c.logger.Warn("server: failed to send forbidden response", "conn", c.id, "error", err)
				}
				continue
			}

			if !c.enqueue(ctx, Procedure{Kind: KindCall, Event: f.Event, Payload: f.Payload, id: f.ID, respond: respond, canceler: canceler}) {
				return
			}

		case wire.OpReset:
			c.cancel.Reset(f.ID)

		case wire.OpResponse:
			c.logger.Warn("server: unexpected Response frame from client", "conn", c.id, "id", f.ID)
		}
	}
}

func (c *Conn) enqueue(ctx context.Context, p Procedure) bool {
	select {
	case c.procs <- p:
		return true
	case <-c.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// Notifier is a cheap handle for pushing Notify frames to one
// connection's peer from outside the Conn.Recv loop.
type Notifier struct {
	conn *Conn
}

// Notify sends a Notify frame through the bound connection.
func (n Notifier) Notify(ctx context.Context, event string, payload []byte) error {
	return n.conn.Notify(ctx, event, payload)
}
