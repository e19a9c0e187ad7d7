// Package pending implements the client-side Pending Call Table (§4.3): a
// mapping from call id to a one-shot completer, fulfilled exactly once
// across {Response received, Abort signaled, Connection closed} (§8
// invariant 2).
package pending

import "sync"

// Result is what a completer resolves with: either Payload or Err is set,
// never both.
type Result struct {
	Payload []byte
	Err     error
}

// completer is a one-shot channel; buffered 1 so the resolving side never
// blocks even if nobody is awaiting yet.
type completer chan Result

// Table is the per-connection Pending Call Table. Confined to O(1)
// lookups under a single mutex, matching §5's concurrency model.
type Table struct {
	mu      sync.Mutex
	entries map[uint32]completer
}

// New creates an empty Table.
func New() *Table {
	return &Table{entries: make(map[uint32]completer)}
}

// Insert registers id with a fresh completer and returns a channel that
// yields exactly one Result. Precondition: id must be absent (client call
// ids are allocated monotonically, so collisions only happen on a bug).
func (t *Table) Insert(id uint32) <-chan Result {
	c := make(completer, 1)
	t.mu.Lock()
	t.entries[id] = c
	t.mu.Unlock()
	return c
}

// Complete resolves id's completer with payload and removes the entry. A
// no-op if id is absent (late Response after local abort, §4.2).
func (t *Table) Complete(id uint32, payload []byte) {
	t.mu.Lock()
	c, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok {
		c <- Result{Payload: payload}
	}
}

// Abort resolves id's completer with err and removes the entry. Used for
// user-initiated cancellation. Returns false if id was already resolved
// or never existed.
func (t *Table) Abort(id uint32, err error) bool {
	t.mu.Lock()
	c, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok {
		c <- Result{Err: err}
	}
	return ok
}

// Drain aborts every outstanding entry with err, used on connection close
// (§4.2, §8 invariant 6). Safe to call more than once; subsequent calls
// are no-ops since Drain empties the table.
func (t *Table) Drain(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint32]completer)
	t.mu.Unlock()

	for _, c := range entries {
		c <- Result{Err: err}
	}
}

// Len reports the number of outstanding calls, used by Client.Status
// (§6: status() → { pending_ids, ... }).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// IDs returns a snapshot of outstanding call ids.
func (t *Table) IDs() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint32, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}
