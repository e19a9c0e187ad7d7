package server

import (
	"context"

	"wsiorpc/internal/cancel"
	"wsiorpc/internal/wsierr"
)

// Kind distinguishes the two shapes recv() can yield (§4.5).
type Kind int

const (
	// KindNotify is a fire-and-forget inbound Notify; Answer is invalid.
	KindNotify Kind = iota
	// KindCall is an inbound Request awaiting exactly one Answer.
	KindCall
)

func (k Kind) String() string {
	if k == KindCall {
		return "Call"
	}
	return "Notify"
}

// Procedure is one inbound item from a connection's Dispatcher: either a
// Notify or a Call awaiting a response (§4.5 Procedure Surface).
type Procedure struct {
	Kind    Kind
	Event   string
	Payload []byte

	id       uint32
	respond  *cancel.ResponseSender
	canceler *cancel.CancelController
}

// Answer sends payload back as the Response for a Call. Calling it on a
// Notify procedure returns ErrNotACall, and calling it twice on the same
// Call returns ErrDoubleSend (§4.5, §7).
func (p Procedure) Answer(ctx context.Context, payload []byte) error {
	if p.Kind != KindCall {
		return wsierr.Wrap("Procedure.Answer", wsierr.ErrNotACall, "cannot answer a Notify")
	}
	return p.respond.Send(ctx, payload)
}

// SpawnAndAbortOnReset runs fn in a new goroutine whose context is
// cancelled the instant the caller sends a Reset for this call (§4.5). For
// Notify procedures, which carry no cancellation state, fn runs in a new
// goroutine with context.Background() and is never aborted.
func (p Procedure) SpawnAndAbortOnReset(fn func(ctx context.Context)) {
	if p.Kind != KindCall || p.canceler == nil {
		go fn(context.Background())
		return
	}
	p.canceler.SpawnAndAbortOnReset(fn)
}
