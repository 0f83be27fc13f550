package asset

import "github.com/cespare/xxhash/v2"

// hashMap is a chaining hash map keyed by string, using xxhash instead
// of Go's built-in map so bucket placement for the AssetRegistry's
// keyed (non-indexed) asset maps (§4.7) is explicit and stable across
// calls within a process. Average-case O(1) get/set, growing by
// doubling once the load factor passes 0.75.
type hashMap[T any] struct {
	buckets [][]entry[T]
	count   int
}

type entry[T any] struct {
	key   string
	value T
}

func newHashMap[T any]() *hashMap[T] {
	return &hashMap[T]{buckets: make([][]entry[T], 16)}
}

func (m *hashMap[T]) bucketIndex(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(m.buckets)))
}

// Get returns key's value and true, or the zero value and false.
func (m *hashMap[T]) Get(key string) (T, bool) {
	idx := m.bucketIndex(key)
	for _, e := range m.buckets[idx] {
		if e.key == key {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}

// Set installs or replaces key's value.
func (m *hashMap[T]) Set(key string, value T) {
	idx := m.bucketIndex(key)
	for i, e := range m.buckets[idx] {
		if e.key == key {
			m.buckets[idx][i].value = value
			return
		}
	}
	m.buckets[idx] = append(m.buckets[idx], entry[T]{key: key, value: value})
	m.count++
	if float64(m.count) > 0.75*float64(len(m.buckets)) {
		m.grow()
	}
}

// Delete removes key, if present.
func (m *hashMap[T]) Delete(key string) {
	idx := m.bucketIndex(key)
	bucket := m.buckets[idx]
	for i, e := range bucket {
		if e.key == key {
			m.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			m.count--
			return
		}
	}
}

func (m *hashMap[T]) grow() {
	old := m.buckets
	m.buckets = make([][]entry[T], len(old)*2)
	m.count = 0
	for _, bucket := range old {
		for _, e := range bucket {
			m.Set(e.key, e.value)
		}
	}
}

// Len reports the number of stored keys.
func (m *hashMap[T]) Len() int { return m.count }

// Keys returns every stored key, in no particular order.
func (m *hashMap[T]) Keys() []string {
	keys := make([]string, 0, m.count)
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			keys = append(keys, e.key)
		}
	}
	return keys
}
