// Package eventstream implements the Event Stream Registry (§4.4): at most
// one active consumer queue per event name per connection, turning inbound
// Notify frames into a consumable, backpressured sequence of payloads.
package eventstream

import (
	"context"
	"io"
	"sync"

	"wsiorpc/internal/wsierr"
)

// DefaultCapacity is the default bounded queue capacity per event name
// (§4.2: "configurable, default 16").
const DefaultCapacity = 16

// Stream is a single event name's consumable, FIFO, finite-or-infinite
// sequence of payloads (§4.4, §9 "Event stream as lazy sequence").
type Stream struct {
	ch        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newStream(capacity int) *Stream {
	return &Stream{
		ch:     make(chan []byte, capacity),
		closed: make(chan struct{}),
	}
}

// Recv blocks for the next payload. It returns io.EOF once the stream has
// been unsubscribed or the connection has closed; buffered payloads are
// drained before EOF is observed.
func (s *Stream) Recv(ctx context.Context) ([]byte, error) {
	select {
	case payload, ok := <-s.ch:
		if ok {
			return payload, nil
		}
		return nil, io.EOF
	default:
	}
	select {
	case payload, ok := <-s.ch:
		if ok {
			return payload, nil
		}
		return nil, io.EOF
	case <-s.closed:
		// Drain whatever was already queued before reporting EOF.
		select {
		case payload, ok := <-s.ch:
			if ok {
				return payload, nil
			}
		default:
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// All adapts the stream into a Go 1.23 range-over-func iterator, the
// ergonomic counterpart to Recv for `for payload := range stream.All(ctx)`
// consumers (grounded in the modelsocket-go client's Chunks-iterator
// idiom). Iteration stops silently at EOF or ctx cancellation; callers
// that need the distinguishing error should use Recv directly.
func (s *Stream) All(ctx context.Context) func(yield func([]byte) bool) {
	return func(yield func([]byte) bool) {
		for {
			payload, err := s.Recv(ctx)
			if err != nil {
				return
			}
			if !yield(payload) {
				return
			}
		}
	}
}

func (s *Stream) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// enqueue delivers payload to the stream, blocking (thus propagating
// backpressure to the Dispatcher and transport) until there is capacity,
// the stream is unsubscribed, or ctx is done.
func (s *Stream) enqueue(ctx context.Context, payload []byte) error {
	select {
	case s.ch <- payload:
		return nil
	case <-s.closed:
		return wsierr.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry owns the per-connection set of active event streams. Confined
// to O(1) lookups under a single mutex (§5).
type Registry struct {
	mu       sync.Mutex
	streams  map[string]*Stream
	capacity int
}

// New creates a Registry with the given per-stream bounded capacity. A
// capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{streams: make(map[string]*Stream), capacity: capacity}
}

// Subscribe registers a new Stream for name. Per the spec's stated
// preference (§4.4, §9 open question), a second Subscribe while one is
// still live returns ErrAlreadySubscribed rather than silently overwriting.
func (r *Registry) Subscribe(name string) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[name]; ok {
		return nil, wsierr.ErrAlreadySubscribed
	}
	s := newStream(r.capacity)
	r.streams[name] = s
	return s, nil
}

// Unsubscribe drops name's queue, unblocking any in-flight Publish. Reports
// whether a stream was present (Client.RemoveEvent's bool return, §6).
func (r *Registry) Unsubscribe(name string) bool {
	r.mu.Lock()
	s, ok := r.streams[name]
	if ok {
		delete(r.streams, name)
	}
	r.mu.Unlock()

	if ok {
		s.close()
	}
	return ok
}

// Publish delivers payload to name's consumer, if any. A Notify whose
// event has no subscriber is a silent drop (§4.2, §8 boundary), reported
// here as delivered=false with a nil error. Publish blocks when the
// stream is full, applying backpressure to the Dispatcher (§4.2, §5).
func (r *Registry) Publish(ctx context.Context, name string, payload []byte) (delivered bool, err error) {
	r.mu.Lock()
	s, ok := r.streams[name]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := s.enqueue(ctx, payload); err != nil {
		return false, err
	}
	return true, nil
}

// Names returns a snapshot of currently active event names, used by
// Client.Status (§6: status() → { ..., active_event_names }).
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.streams))
	for name := range r.streams {
		names = append(names, name)
	}
	return names
}

// CloseAll closes every active stream, used on connection close (§4.2,
// §4.4): every consumer observes end-of-stream.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[string]*Stream)
	r.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
}
