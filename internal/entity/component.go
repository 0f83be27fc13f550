package entity

import "sync/atomic"

// ComponentType is the unique, process-lifetime integer type-id every
// registered component type is assigned (§3, §5: "a component type
// registered at startup has one and only one integer type-id for the
// lifetime of the process").
type ComponentType uint16

// ReplicationPolicy controls whether and how a component type
// participates in the Replicator's per-viewer delta generation (§3).
type ReplicationPolicy int

const (
	ReplicateNever ReplicationPolicy = iota
	ReplicateOnChange
	ReplicatePeriodic
)

var registeredTypes = make(map[ComponentType]bool)

// column is the type-erased half of a Column[T]'s interface with the
// Store: it lets Store.Despawn remove a slot's value from every
// column without knowing T.
type column interface {
	remove(id ID)
}

type cell[T any] struct {
	value T
	dirty atomic.Bool
}

// Column is a sparse, per-component-type data column addressed by
// entity slot index, with a bitset-like membership test via the
// underlying map. Components of type T "live in a column indexed by
// slot-id" per §4.5.
type Column[T any] struct {
	typeID     ComponentType
	policy     ReplicationPolicy
	cells      map[uint32]*cell[T]
	cloneFn    func(T) T
}

// NewColumn registers typeID for T (it is a startup error, enforced
// by RegisterComponentType, to reuse a type-id) and attaches the
// resulting column to store.
func NewColumn[T any](store *Store, typeID ComponentType, policy ReplicationPolicy, clone func(T) T) (*Column[T], error) {
	if err := RegisterComponentType(typeID); err != nil {
		return nil, err
	}
	col := &Column[T]{
		typeID:  typeID,
		policy:  policy,
		cells:   make(map[uint32]*cell[T]),
		cloneFn: clone,
	}
	store.columns[typeID] = col
	return col, nil
}

// RegisterComponentType records that typeID is in use. Returns an
// error (startup-fatal, per §7) if it was already registered to a
// different column.
func RegisterComponentType(typeID ComponentType) error {
	if registeredTypes[typeID] {
		return &duplicateComponentTypeError{typeID: typeID}
	}
	registeredTypes[typeID] = true
	return nil
}

type duplicateComponentTypeError struct{ typeID ComponentType }

func (e *duplicateComponentTypeError) Error() string {
	return "entity: component type id already registered"
}

func (c *Column[T]) remove(id ID) { delete(c.cells, id.index) }

// Has reports whether id carries a component of this column's type.
func (c *Column[T]) Has(id ID) bool {
	_, ok := c.cells[id.index]
	return ok
}

// Get returns the component value for id, or the zero value and
// false if absent.
func (c *Column[T]) Get(id ID) (T, bool) {
	cl, ok := c.cells[id.index]
	if !ok {
		var zero T
		return zero, false
	}
	return cl.value, true
}

// Set installs or replaces id's component value and marks it dirty,
// per the invariant in §3: "a mutator must set [the dirty bit]".
func (c *Column[T]) Set(id ID, value T) {
	cl, ok := c.cells[id.index]
	if !ok {
		cl = &cell[T]{}
		c.cells[id.index] = cl
	}
	cl.value = value
	cl.dirty.Store(true)
}

// Mutate fetches the current value (zero if absent), lets fn modify
// it in place, and re-installs the result, marking it dirty exactly
// like Set.
func (c *Column[T]) Mutate(id ID, fn func(*T)) {
	cl, ok := c.cells[id.index]
	if !ok {
		cl = &cell[T]{}
		c.cells[id.index] = cl
	}
	fn(&cl.value)
	cl.dirty.Store(true)
}

// Remove deletes id's component from this column.
func (c *Column[T]) Remove(id ID) { delete(c.cells, id.index) }

// IsDirty reports id's dirty bit without consuming it.
func (c *Column[T]) IsDirty(id ID) bool {
	cl, ok := c.cells[id.index]
	return ok && cl.dirty.Load()
}

// ConsumeDirty atomically tests-and-clears id's dirty bit (§4.5,
// §4.6, §8): "After consume_dirty(), is_dirty() == false."
func (c *Column[T]) ConsumeDirty(id ID) bool {
	cl, ok := c.cells[id.index]
	if !ok {
		return false
	}
	return cl.dirty.Swap(false)
}

// CloneInto copies src's component (if present) onto dst as a fresh
// value whose dirty bit is set by Set regardless of src's own dirty
// bit — the "clone must not copy the dirty bit" rule of §4.5,
// required for spawn-from-prefab.
func (c *Column[T]) CloneInto(src, dst ID) {
	cl, ok := c.cells[src.index]
	if !ok {
		return
	}
	value := cl.value
	if c.cloneFn != nil {
		value = c.cloneFn(value)
	}
	c.Set(dst, value)
	// Set marks dirty=true by design (a freshly attached component is
	// new data for every viewer); but the clone must start "visible to
	// no replicator" in the sense of carrying no previously-observed
	// state, which holds trivially since dst never had a prior value.
}

// TypeID returns the column's component type-id.
func (c *Column[T]) TypeID() ComponentType { return c.typeID }

// Policy returns the column's replication policy.
func (c *Column[T]) Policy() ReplicationPolicy { return c.policy }

// Each iterates every (slot index, value) pair currently stored in
// the column. The callback must not mutate the column.
func (c *Column[T]) Each(fn func(index uint32, value T)) {
	for idx, cl := range c.cells {
		fn(idx, cl.value)
	}
}
