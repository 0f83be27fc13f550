// Package replication implements the per-viewer delta generation
// described in §4.6: dirty components snapshotted once per tick,
// delivered to every viewer of the owning entity, then consumed.
package replication

import "github.com/nictuku/voxelserver/internal/entity"

// Encode serializes a component value of type T to wire bytes.
type Encode[T any] func(value T) ([]byte, error)

// ComponentSource is the type-erased half of an entity.Column[T] the
// Replicator needs: encode a component's current value, read its
// dirty bit without consuming it, and consume it once every viewer
// has been served (§4.6's two-phase dirty consumption).
type ComponentSource interface {
	TypeID() entity.ComponentType
	Policy() entity.ReplicationPolicy
	// Snapshot encodes the component currently attached to the entity
	// at the given slot index, reporting its dirty bit as observed
	// (not consumed). ok is false if the entity carries no such
	// component.
	Snapshot(index uint32) (payload []byte, dirty bool, ok bool)
	// ConsumeDirty atomically clears the dirty bit for index, mirroring
	// entity.Column.ConsumeDirty.
	ConsumeDirty(index uint32) bool
	// Has reports whether index currently carries this component.
	Has(index uint32) bool
}

type columnSource[T any] struct {
	col    *entity.Column[T]
	encode Encode[T]
}

// NewComponentSource adapts col into a ComponentSource the Replicator
// can register, using encode to turn each value into wire bytes.
func NewComponentSource[T any](col *entity.Column[T], encode Encode[T]) ComponentSource {
	return &columnSource[T]{col: col, encode: encode}
}

func (c *columnSource[T]) TypeID() entity.ComponentType     { return c.col.TypeID() }
func (c *columnSource[T]) Policy() entity.ReplicationPolicy { return c.col.Policy() }
func (c *columnSource[T]) Has(index uint32) bool            { return c.col.Has(entity.IndexOnlyID(index)) }
func (c *columnSource[T]) ConsumeDirty(index uint32) bool {
	return c.col.ConsumeDirty(entity.IndexOnlyID(index))
}

func (c *columnSource[T]) Snapshot(index uint32) ([]byte, bool, bool) {
	id := entity.IndexOnlyID(index)
	value, ok := c.col.Get(id)
	if !ok {
		return nil, false, false
	}
	dirty := c.col.IsDirty(id)
	payload, err := c.encode(value)
	if err != nil {
		return nil, dirty, false
	}
	return payload, dirty, true
}
