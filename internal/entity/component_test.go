package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ x, y, z float64 }

func TestColumnSetMarksDirty(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[position](s, ComponentType(2001), ReplicateOnChange, nil)
	require.NoError(t, err)

	a := s.Spawn()
	assert.False(t, col.IsDirty(a))

	col.Set(a, position{1, 2, 3})
	assert.True(t, col.Has(a))
	assert.True(t, col.IsDirty(a))

	v, ok := col.Get(a)
	require.True(t, ok)
	assert.Equal(t, position{1, 2, 3}, v)
}

func TestColumnConsumeDirtyIsTestAndClear(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[int](s, ComponentType(2002), ReplicateOnChange, nil)
	require.NoError(t, err)

	a := s.Spawn()
	col.Set(a, 7)
	require.True(t, col.IsDirty(a))

	assert.True(t, col.ConsumeDirty(a))
	assert.False(t, col.IsDirty(a), "after consume_dirty(), is_dirty() == false")
	assert.False(t, col.ConsumeDirty(a))
}

func TestColumnMutateMarksDirty(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[int](s, ComponentType(2003), ReplicateOnChange, nil)
	require.NoError(t, err)

	a := s.Spawn()
	col.Set(a, 1)
	col.ConsumeDirty(a)

	col.Mutate(a, func(v *int) { *v += 41 })
	v, ok := col.Get(a)
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.True(t, col.IsDirty(a))
}

func TestColumnRemove(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[int](s, ComponentType(2004), ReplicateOnChange, nil)
	require.NoError(t, err)

	a := s.Spawn()
	col.Set(a, 1)
	col.Remove(a)
	assert.False(t, col.Has(a))
}

func TestDuplicateComponentTypeIDIsStartupError(t *testing.T) {
	s := NewStore(nil)
	_, err := NewColumn[int](s, ComponentType(2005), ReplicateOnChange, nil)
	require.NoError(t, err)

	_, err = NewColumn[string](s, ComponentType(2005), ReplicateOnChange, nil)
	assert.Error(t, err)
}

func TestCloneIntoDoesNotCopyDirtyFlagState(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[position](s, ComponentType(2006), ReplicateOnChange, func(p position) position { return p })
	require.NoError(t, err)

	src := s.Spawn()
	dst := s.Spawn()
	col.Set(src, position{1, 1, 1})
	col.ConsumeDirty(src)
	assert.False(t, col.IsDirty(src))

	col.CloneInto(src, dst)
	v, ok := col.Get(dst)
	require.True(t, ok)
	assert.Equal(t, position{1, 1, 1}, v)
	// dst is a freshly attached component: it is new data regardless of
	// whatever the source's dirty bit happened to read at clone time.
	assert.True(t, col.IsDirty(dst))
}

func TestCloneIntoUsesCloneFnNotAliasedValue(t *testing.T) {
	type bag struct{ items []int }
	s := NewStore(nil)
	col, err := NewColumn[bag](s, ComponentType(2007), ReplicateOnChange, func(b bag) bag {
		cp := append([]int(nil), b.items...)
		return bag{items: cp}
	})
	require.NoError(t, err)

	src := s.Spawn()
	dst := s.Spawn()
	col.Set(src, bag{items: []int{1, 2, 3}})
	col.CloneInto(src, dst)

	col.Mutate(src, func(b *bag) { b.items[0] = 999 })

	dstVal, _ := col.Get(dst)
	assert.Equal(t, 1, dstVal.items[0], "clone must not alias the source's backing slice")
}

func TestColumnEachVisitsEveryEntry(t *testing.T) {
	s := NewStore(nil)
	col, err := NewColumn[int](s, ComponentType(2008), ReplicateOnChange, nil)
	require.NoError(t, err)

	a := s.Spawn()
	b := s.Spawn()
	col.Set(a, 1)
	col.Set(b, 2)

	seen := make(map[uint32]int)
	col.Each(func(idx uint32, v int) { seen[idx] = v })
	assert.Len(t, seen, 2)
	assert.Equal(t, 1, seen[a.index])
	assert.Equal(t, 2, seen[b.index])
}
