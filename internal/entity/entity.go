// Package entity implements the sparse, generation-stamped component
// store described in §3 and §4.5: a slot table addressed by
// generational indices, per-type dirty-tracked component columns, a
// CommandBuffer for off-tick-thread mutations, and a per-entity
// MetaStore with forward-compatible unknown-key preservation.
//
// The cyclic "entity <-> world <-> store" object graph the original
// implementation used is replaced by the arena pattern §9 calls for:
// an ID is just an index plus a generation counter, never a pointer.
package entity

import "fmt"

// ID identifies an entity: a slot index paired with the generation
// stamped into that slot when it was last (re)used. A stale ID whose
// generation no longer matches the slot's current generation fails
// every lookup instead of aliasing a different, later entity.
type ID struct {
	index      uint32
	generation uint32
}

// String renders an ID for logs.
func (id ID) String() string {
	return fmt.Sprintf("entity#%d.%d", id.index, id.generation)
}

// IsZero reports whether id is the zero value (never a valid entity).
func (id ID) IsZero() bool { return id.index == 0 && id.generation == 0 }

// Index returns the slot index id addresses. Component columns key
// their cells purely by this index (see Column[T]), so callers that
// need to address a column without holding a full ID — the
// replicator, chiefly — can use it directly.
func (id ID) Index() uint32 { return id.index }

// IndexOnlyID builds an ID carrying only a slot index, for callers
// that address a Column[T] by index and need an ID value to pass to
// its (generation-blind) methods. It must never be compared for
// liveness with Store.Alive, since its generation is always zero.
func IndexOnlyID(index uint32) ID { return ID{index: index} }

type slot struct {
	generation uint32
	alive      bool
}

// Store is the owning world's sparse component store. Every method
// that mutates a column or the slot table must only be called from
// the owning world's tick goroutine (§5 shared-resource policy);
// callers from other goroutines must go through a CommandBuffer
// (NewCommandBuffer) instead.
type Store struct {
	slots        []slot
	freeList     []uint32
	columns      map[ComponentType]column
	metas        map[ID]*MetaStore
	metaRegistry *MetaRegistry
}

// NewStore creates an empty Store. metaRegistry may be nil if the
// world never attaches meta-store values to its entities; it must be
// non-nil before the first call to Store.MetaStore otherwise.
func NewStore(metaRegistry *MetaRegistry) *Store {
	return &Store{
		columns:      make(map[ComponentType]column),
		metas:        make(map[ID]*MetaStore),
		metaRegistry: metaRegistry,
	}
}

// Spawn allocates a fresh entity, reusing a free slot (with its
// generation bumped) when one is available.
func (s *Store) Spawn() ID {
	if n := len(s.freeList); n > 0 {
		idx := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		s.slots[idx].alive = true
		return ID{index: idx, generation: s.slots[idx].generation}
	}

	idx := uint32(len(s.slots))
	s.slots = append(s.slots, slot{generation: 1, alive: true})
	return ID{index: idx, generation: 1}
}

// Alive reports whether id still refers to a live entity: the slot
// exists, is marked alive, and its generation matches id's.
func (s *Store) Alive(id ID) bool {
	if int(id.index) >= len(s.slots) {
		return false
	}
	sl := s.slots[id.index]
	return sl.alive && sl.generation == id.generation
}

// Despawn destroys id immediately. Destroying from outside the tick
// thread must instead go through a CommandBuffer's Despawn call.
// The slot's generation is incremented so any copy of id still held
// elsewhere fails Alive from this point on.
func (s *Store) Despawn(id ID) {
	if !s.Alive(id) {
		return
	}
	for _, col := range s.columns {
		col.remove(id)
	}
	delete(s.metas, id)
	s.slots[id.index].alive = false
	s.slots[id.index].generation++
	s.freeList = append(s.freeList, id.index)
}

// Current returns the live ID currently occupying index, if any. It
// exists for callers that only hold a slot index (a component column
// key) and need to recover the up-to-date ID, generation included, to
// use in an outward-facing message.
func (s *Store) Current(index uint32) (ID, bool) {
	if int(index) >= len(s.slots) {
		return ID{}, false
	}
	sl := s.slots[index]
	if !sl.alive {
		return ID{}, false
	}
	return ID{index: index, generation: sl.generation}, true
}

// MetaStore returns (creating if necessary) the per-entity MetaStore
// for id. Callers must not retain the pointer across a Despawn.
func (s *Store) MetaStore(id ID) *MetaStore {
	if m, ok := s.metas[id]; ok {
		return m
	}
	m := newMetaStore()
	m.registry = s.metaRegistry
	s.metas[id] = m
	return m
}
