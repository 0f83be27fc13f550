package entity

import "sync"

// CommandBuffer queues mutations requested from contexts other than
// the owning world's tick thread (network decode, commands) so they
// can be applied at a single, known point in the tick instead of
// racing with in-progress iteration (§4.5).
//
// Commands are applied in insertion order. CommandBuffer is safe for
// concurrent Spawn, Despawn, AddComponent and RemoveComponent calls
// from multiple goroutines; Apply must only be called from the owning
// world's tick thread.
type CommandBuffer struct {
	mu  sync.Mutex
	ops []func(*Store)
}

// NewCommandBuffer creates an empty buffer.
func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{}
}

// Spawn enqueues a spawn; fn runs when the spawn is applied and
// receives the freshly allocated ID, so the caller can queue follow-up
// AddComponent calls against it on the same buffer.
func (b *CommandBuffer) Spawn(fn func(*Store, ID)) {
	b.push(func(s *Store) {
		id := s.Spawn()
		if fn != nil {
			fn(s, id)
		}
	})
}

// Despawn enqueues the destruction of id.
func (b *CommandBuffer) Despawn(id ID) {
	b.push(func(s *Store) { s.Despawn(id) })
}

// AddComponent enqueues installing value onto id's column.
func AddComponent[T any](b *CommandBuffer, col *Column[T], id ID, value T) {
	b.push(func(s *Store) { col.Set(id, value) })
}

// RemoveComponent enqueues removing id's component from col.
func RemoveComponent[T any](b *CommandBuffer, col *Column[T], id ID) {
	b.push(func(s *Store) { col.Remove(id) })
}

func (b *CommandBuffer) push(op func(*Store)) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

// Apply drains the buffer and applies every queued operation, in
// insertion order, against store. Operations queued while Apply runs
// (for example by a Spawn callback) are applied by the same call,
// after everything queued before them. Must run on the owning world's
// tick thread — typically end-of-system, per §4.5.
func (b *CommandBuffer) Apply(store *Store) {
	for {
		b.mu.Lock()
		ops := b.ops
		b.ops = nil
		b.mu.Unlock()

		if len(ops) == 0 {
			return
		}
		for _, op := range ops {
			op(store)
		}
	}
}

// Len reports how many operations are currently queued (diagnostics).
func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}
