// Package room implements an application-level broadcast group on top of
// the server package: a named set of connections that can be notified
// together, the way an application would compose wsiorpc's per-connection
// notify() into a multi-client chat room or presence channel (§9 Design
// Notes). Structured after the teacher's eventbus.Bus — an RWMutex-guarded
// subscriber set, fan-out in per-member goroutines with panic recovery —
// generalized from domain.Event handlers to outbound Notify frames.
package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"wsiorpc/internal/tracing"
	"wsiorpc/server"
)

// Member is the subset of *server.Conn a Room needs: just enough to push
// Notify frames and identify the peer in logs.
type Member interface {
	Notify(ctx context.Context, event string, payload []byte) error
	Info() *server.ClientInfo
}

type membership struct {
	id     string
	member Member
}

// Room is a goroutine-safe broadcast group. The zero value is not usable;
// construct with New.
type Room struct {
	name string

	mu      sync.RWMutex
	members map[string]membership
	wg      sync.WaitGroup

	logger *slog.Logger
}

// New creates an empty Room named name, used only for logging/tracing.
func New(name string, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	return &Room{name: name, members: make(map[string]membership), logger: logger}
}

// Join adds conn to the room and returns its membership id, generated
// with google/uuid the way the rest of the pack mints opaque member ids.
func (r *Room) Join(conn Member) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.members[id] = membership{id: id, member: conn}
	r.mu.Unlock()

	r.logger.Info("room: member joined", "room", r.name, "member", id)
	return id
}

// Leave removes a membership id from the room. A no-op if absent.
func (r *Room) Leave(id string) {
	r.mu.Lock()
	_, ok := r.members[id]
	delete(r.members, id)
	r.mu.Unlock()

	if ok {
		r.logger.Info("room: member left", "room", r.name, "member", id)
	}
}

// Size reports the current membership count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast sends a Notify(event, payload) to every current member. Each
// send runs in its own goroutine so one slow or blocked member cannot
// delay delivery to the rest; a panicking or failing send is logged, not
// propagated, mirroring the teacher's Bus.dispatch isolation.
func (r *Room) Broadcast(ctx context.Context, event string, payload []byte) {
	ctx, span := tracing.StartSpan(ctx, "wsiorpc.room.broadcast")
	defer span.End()
	span.SetAttributes(tracing.StringAttr("room", r.name), tracing.StringAttr("event", event))

	r.mu.RLock()
	targets := make([]membership, 0, len(r.members))
	for _, m := range r.members {
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	span.SetAttributes(tracing.IntAttr("member_count", len(targets)))

	for _, m := range targets {
		r.wg.Add(1)
		go func(m membership) {
			defer r.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("room: broadcast handler panicked", "room", r.name, "member", m.id, "panic", rec)
				}
			}()
			if err := m.member.Notify(ctx, event, payload); err != nil {
				r.logger.Warn("room: dropped broadcast for member", "room", r.name, "member", m.id, "error", err)
			}
		}(m)
	}
}

// Wait blocks until every in-flight Broadcast send has completed, for
// tests and graceful shutdown.
func (r *Room) Wait() {
	r.wg.Wait()
}
