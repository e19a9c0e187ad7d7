// Package cancel implements the server-side Cancellation Registry and the
// one-shot Response Sender (§4.5): a Reset arriving for an in-flight
// Request aborts the task computing it; a Response already sent makes a
// later Reset a silent no-op, and a Reset already received makes a later
// response send a silent no-op (§3, §5).
package cancel

import (
	"context"
	"sync"

	"wsiorpc/internal/wire"
	"wsiorpc/internal/wsierr"
)

// FrameSender is the subset of sender.Sender the ResponseSender needs,
// kept as an interface so tests can stub it without a real transport.
type FrameSender interface {
	Send(ctx context.Context, f wire.Frame) error
}

// requestState is the per-request-id bookkeeping shared by a Response
// Sender and its optional Cancellation Controller. It is the single
// source of truth for both "Reset after Response is a no-op" and
// "Response after Reset is a no-op" (§3 invariants).
type requestState struct {
	mu        sync.Mutex
	responded bool
	resetHit  bool
	abort     context.CancelFunc // set only if spawn_and_abort_on_reset was used
}

// Registry maps in-flight call ids to their requestState, confined to
// O(1) lookups under one mutex per connection (§5).
type Registry struct {
	mu    sync.Mutex
	items map[uint32]*requestState
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{items: make(map[uint32]*requestState)}
}

// Register creates bookkeeping for an incoming Request id, returning a
// ResponseSender and CancelController bound to it. Called by the
// Dispatcher exactly once per Request frame (§4.2).
func (r *Registry) Register(ctx context.Context, id uint32, out FrameSender) (*ResponseSender, *CancelController) {
	state := &requestState{}
	r.mu.Lock()
	r.items[id] = state
	r.mu.Unlock()

	return &ResponseSender{id: id, state: state, out: out, registry: r},
		&CancelController{id: id, state: state, baseCtx: ctx, registry: r}
}

// Reset handles an inbound Reset(id) frame (§4.2): if a live request
// exists for id, its abort trigger (if any) fires and the entry is marked
// reset so a subsequent response.Send becomes a no-op. Unknown ids are a
// silent drop (§3, §8 boundary).
func (r *Registry) Reset(id uint32) {
	r.mu.Lock()
	state, ok := r.items[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	state.mu.Lock()
	state.resetHit = true
	abort := state.abort
	already := state.responded
	state.mu.Unlock()

	if !already && abort != nil {
		abort()
	}
}

// remove drops id's bookkeeping. Called once the id is no longer live:
// after a Response is sent/no-op'd, or after a spawned task completes.
func (r *Registry) remove(id uint32) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

// Len reports the number of in-flight requests, used by Endpoint.Status.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Clear drops every tracked call id at once. Called when a connection
// closes: a Call whose handler never reaches Send or
// SpawnAndAbortOnReset would otherwise keep its requestState around for
// the registry's lifetime (the original's Rust Response has no such gap —
// impl Drop for Response frees it the moment the value goes out of
// scope), so Conn.Close calls this to bound that lingering state by the
// connection's own lifetime instead.
func (r *Registry) Clear() {
	r.mu.Lock()
	clear(r.items)
	r.mu.Unlock()
}

// ResponseSender is the one-shot capability to emit exactly one Response
// for a Request id (§4.5).
type ResponseSender struct {
	id       uint32
	state    *requestState
	out      FrameSender
	registry *Registry
}

// Send encodes and transmits a Response(id, payload). Calling Send twice
// is a programming error surfaced as ErrDoubleSend (§7). If a Reset
// already arrived for this id, Send is a no-op — no frame is emitted, and
// the call returns nil (§3: "the call's result is abandoned on the wire
// too").
func (s *ResponseSender) Send(ctx context.Context, payload []byte) error {
	var shouldEmit bool
	var alreadySent bool

	s.state.mu.Lock()
	switch {
	case s.state.responded:
		alreadySent = true
	case s.state.resetHit:
		s.state.responded = true
	default:
		s.state.responded = true
		shouldEmit = true
	}
	s.state.mu.Unlock()

	if alreadySent {
		return wsierr.ErrDoubleSend
	}

	s.registry.remove(s.id)

	if !shouldEmit {
		return nil
	}
	return s.out.Send(ctx, wire.Response(s.id, payload))
}

// CancelController exposes spawn_and_abort_on_reset (§4.5): it registers
// an abort trigger under the request id, spawns the task with that
// trigger wired into its context, and removes the registry entry once the
// task completes.
type CancelController struct {
	id       uint32
	state    *requestState
	baseCtx  context.Context
	registry *Registry
}

// SpawnAndAbortOnReset runs fn in a new goroutine with a context that is
// cancelled the moment a Reset(id) frame arrives (or immediately, if one
// already has). The registry entry for id is removed when fn returns,
// which also makes a later Reset for this id a no-op (§4.5).
func (c *CancelController) SpawnAndAbortOnReset(fn func(ctx context.Context)) {
	ctx, abort := context.WithCancel(c.baseCtx)

	c.state.mu.Lock()
	c.state.abort = abort
	resetAlready := c.state.resetHit
	c.state.mu.Unlock()

	if resetAlready {
		abort()
	}

	go func() {
		defer c.registry.remove(c.id)
		fn(ctx)
	}()
}
