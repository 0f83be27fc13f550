package asset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashMapSetGetDelete(t *testing.T) {
	m := newHashMap[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestHashMapOverwriteKeepsSingleEntry(t *testing.T) {
	m := newHashMap[int]()
	m.Set("a", 1)
	m.Set("a", 2)
	assert.Equal(t, 1, m.Len())

	v, _ := m.Get("a")
	assert.Equal(t, 2, v)
}

func TestHashMapGrowsAndKeepsAllEntries(t *testing.T) {
	m := newHashMap[int]()
	const n = 500
	for i := 0; i < n; i++ {
		m.Set(fmt.Sprintf("key-%d", i), i)
	}
	assert.Equal(t, n, m.Len())

	for i := 0; i < n; i++ {
		v, ok := m.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestHashMapKeysReturnsEveryKey(t *testing.T) {
	m := newHashMap[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	keys := m.Keys()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}
