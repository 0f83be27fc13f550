package entity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBufferApplyRunsSpawnThenAddComponent(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[int](s, ComponentType(3001), ReplicateOnChange, nil)
	require.NoError(t, err)

	buf := NewCommandBuffer()
	buf.Spawn(func(store *Store, id ID) {
		AddComponent(buf, col, id, 10)
	})
	require.Equal(t, 1, buf.Len())

	buf.Apply(s)
	assert.Equal(t, 0, buf.Len())
}

func TestCommandBufferAppliesInInsertionOrder(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[int](s, ComponentType(3002), ReplicateOnChange, nil)
	require.NoError(t, err)

	a := s.Spawn()
	buf := NewCommandBuffer()
	AddComponent(buf, col, a, 1)
	AddComponent(buf, col, a, 2)
	AddComponent(buf, col, a, 3)

	buf.Apply(s)
	v, ok := col.Get(a)
	require.True(t, ok)
	assert.Equal(t, 3, v, "later queued writes must win")
}

func TestCommandBufferDespawn(t *testing.T) {
	s := NewStore(nil)
	a := s.Spawn()

	buf := NewCommandBuffer()
	buf.Despawn(a)
	buf.Apply(s)

	assert.False(t, s.Alive(a))
}

func TestCommandBufferRemoveComponent(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[int](s, ComponentType(3003), ReplicateOnChange, nil)
	require.NoError(t, err)

	a := s.Spawn()
	col.Set(a, 5)

	buf := NewCommandBuffer()
	RemoveComponent(buf, col, a)
	buf.Apply(s)

	assert.False(t, col.Has(a))
}

func TestCommandBufferPushIsConcurrencySafe(t *testing.T) {
	buf := NewCommandBuffer()
	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id ID) {
			defer wg.Done()
			buf.Despawn(id)
		}(ID{index: uint32(i)})
	}
	wg.Wait()
	assert.Equal(t, n, buf.Len())
}
