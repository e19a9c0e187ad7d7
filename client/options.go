package client

import (
	"log/slog"

	"nhooyr.io/websocket"

	"wsiorpc/internal/eventstream"
	"wsiorpc/internal/sender"
)

// Option configures a Client at construction time, grounded on the
// teacher's pkg/nodesdk functional-options pattern (WithServer,
// WithToken, WithLogger, ...).
type Option func(*Client)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSendQueueCapacity overrides the outbound queue depth before Call
// and Notify start blocking (default sender.DefaultQueueCapacity).
func WithSendQueueCapacity(n int) Option {
	return func(c *Client) { c.sendQueueCap = n }
}

// WithEventQueueCapacity overrides the per-event-name bounded queue
// capacity used by On (default eventstream.DefaultCapacity).
func WithEventQueueCapacity(n int) Option {
	return func(c *Client) { c.eventQueueCap = n }
}

// WithDialOptions passes through nhooyr.io/websocket dial options, e.g.
// custom HTTP headers or a non-default HTTP client.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *Client) { c.dialOpts = opts }
}

func defaultClient(url string) *Client {
	return &Client{
		url:           url,
		logger:        slog.Default(),
		sendQueueCap:  sender.DefaultQueueCapacity,
		eventQueueCap: eventstream.DefaultCapacity,
		closed:        make(chan struct{}),
	}
}
