// Package sender implements the Outbound Sender (§4.6): it serializes
// writes to the single transport sink so that concurrent producers never
// interleave two binary messages, and propagates transport backpressure to
// callers. Generalized from the teacher's gateway.clientConn write-loop
// pattern (a buffered channel plus a single writer goroutine).
package sender

import (
	"context"
	"log/slog"
	"sync"

	"wsiorpc/internal/transport"
	"wsiorpc/internal/wire"
	"wsiorpc/internal/wsierr"
)

// DefaultQueueCapacity bounds the outbound queue depth before Send starts
// blocking producers (§4.6 backpressure).
const DefaultQueueCapacity = 64

// Sender owns the send half of one connection's transport. Multiple
// producers (the handler loop emitting Responses, application code calling
// notify/notifier concurrently, the client issuing Requests) all go
// through Send, which is safe for concurrent use.
type Sender struct {
	transport transport.Transport
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// New creates a Sender bound to transport. Call Run in its own goroutine
// before using Send.
func New(tr transport.Transport, queueCapacity int, logger *slog.Logger) *Sender {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		transport: tr,
		queue:     make(chan []byte, queueCapacity),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Send encodes f and enqueues it for transmission, blocking if the queue
// is full (backpressure, §4.6) or returning immediately with an encode
// error (e.g. ErrEventNameTooLong), which is synchronous at the call site
// per §7.
func (s *Sender) Send(ctx context.Context, f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	// Check done first: a select with both cases ready picks at random, so
	// a queue with room could otherwise accept a frame after Close.
	select {
	case <-s.done:
		return wsierr.ErrConnectionClosed
	default:
	}
	select {
	case s.queue <- data:
		return nil
	case <-s.done:
		return wsierr.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue and writes each frame to the transport in order,
// until ctx is cancelled, the transport write fails, or Close is called.
// Run never interleaves two transport.Send calls — it is the sole writer.
func (s *Sender) Run(ctx context.Context) {
	for {
		select {
		case data := <-s.queue:
			if err := s.transport.Send(ctx, data); err != nil {
				s.logger.Warn("sender: transport write failed, stopping", "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			s.Close()
			return
		}
	}
}

// Close stops the sender; subsequent Send calls return ErrConnectionClosed.
// Idempotent.
func (s *Sender) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
