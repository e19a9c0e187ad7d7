// Package wstest provides an in-memory transport.Transport pair for unit
// tests that exercise dispatcher/pending-table/event-registry/cancellation
// invariants without a real listening socket, analogous to the teacher's
// in-process test doubles (gateway/server_test.go's testBus).
package wstest

import (
	"context"
	"sync"
	"sync/atomic"

	"wsiorpc/internal/transport"
)

// Pipe returns two connected transport.Transport values: messages sent on
// one are received on the other, in order, and closing either side closes
// its outbound channel so the peer's next Recv observes end-of-stream.
func Pipe() (a, b transport.Transport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)

	a = &memTransport{out: ab, in: ba, selfClosed: make(chan struct{})}
	b = &memTransport{out: ba, in: ab, selfClosed: make(chan struct{})}
	return a, b
}

type memTransport struct {
	out        chan []byte
	in         <-chan []byte
	selfClosed chan struct{} // closed by this side's own Close, unblocks its own Recv
	closeOnce  sync.Once
	closed     atomic.Bool
	reason     atomic.Value // string
}

func (m *memTransport) Recv(ctx context.Context) ([]byte, error) {
	if m.closed.Load() {
		reason, _ := m.reason.Load().(string)
		return nil, closedErr{reason: reason}
	}
	select {
	case msg, ok := <-m.in:
		if !ok {
			return nil, closedErr{}
		}
		return msg, nil
	case <-m.selfClosed:
		reason, _ := m.reason.Load().(string)
		return nil, closedErr{reason: reason}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *memTransport) Send(ctx context.Context, data []byte) error {
	if m.closed.Load() {
		reason, _ := m.reason.Load().(string)
		return closedErr{reason: reason}
	}
	select {
	case m.out <- append([]byte(nil), data...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memTransport) Close(code transport.StatusCode, reason string) error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.reason.Store(reason)
		close(m.out)
		close(m.selfClosed)
	})
	return nil
}

func (m *memTransport) Subprotocol() string {
	return transport.Subprotocol
}

type closedErr struct{ reason string }

func (e closedErr) Error() string {
	if e.reason == "" {
		return "wstest: transport closed"
	}
	return "wstest: transport closed: " + e.reason
}
