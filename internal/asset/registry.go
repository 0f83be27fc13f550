package asset

import (
	"fmt"
	"sort"

	"github.com/nictuku/voxelserver/internal/protocol"
)

// bucketHandle is the type-erased half of a Bucket[T] the Registry
// needs for cross-type bookkeeping (index lookups, after_decode
// ordering) without knowing T.
type bucketHandle interface {
	typeName() string
	indexOf(key string) (int, bool)
	keyAt(index int) (string, bool)
	len() int
	runAfterDecode(reg *Registry) error
}

// Registry holds every registered asset type's bucket. Registration
// and loading happen once at startup, single-threaded; after Seal it
// is read-only and safe for concurrent lookups (§4.7 runtime
// contract). generation increments on every hot-reload mutation so
// callers can detect a stale cached view.
type Registry struct {
	buckets    map[string]bucketHandle
	order      []string
	sealed     bool
	generation uint64
}

// NewRegistry creates an empty, unsealed Registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]bucketHandle)}
}

// Seal freezes the registry against further RegisterType calls.
func (r *Registry) Seal() { r.sealed = true }

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool { return r.sealed }

// Generation returns the current hot-reload generation counter.
func (r *Registry) Generation() uint64 { return r.generation }

func (r *Registry) bumpGeneration() { r.generation++ }

// IndexOf returns the stable integer index assigned to key within
// typeName's indexed lookup table.
func (r *Registry) IndexOf(typeName, key string) (int, bool) {
	b, ok := r.buckets[typeName]
	if !ok {
		return 0, false
	}
	return b.indexOf(key)
}

// KeyAt is the inverse of IndexOf.
func (r *Registry) KeyAt(typeName string, index int) (string, bool) {
	b, ok := r.buckets[typeName]
	if !ok {
		return "", false
	}
	return b.keyAt(index)
}

// Len reports how many assets typeName currently holds.
func (r *Registry) Len(typeName string) int {
	b, ok := r.buckets[typeName]
	if !ok {
		return 0
	}
	return b.len()
}

// RunAfterDecodeHooks invokes every registered type's after_decode
// hook, in the order types were registered, each in sorted-key order
// within the type (§4.7 step 5: hooks run after every asset of every
// type has finished decoding).
func (r *Registry) RunAfterDecodeHooks() error {
	for _, name := range r.order {
		if err := r.buckets[name].runAfterDecode(r); err != nil {
			return err
		}
	}
	return nil
}

// Bucket is the per-asset-type storage: a keyed hash map of decoded
// values plus, for indexed types, an append-only key<->index mapping.
type Bucket[T any] struct {
	name    string
	codec   Codec[T]
	indexed bool
	values  *hashMap[T]

	indexOfKey map[string]int
	keyOfIndex []string
}

func (b *Bucket[T]) typeName() string { return b.name }
func (b *Bucket[T]) len() int         { return b.values.Len() }

func (b *Bucket[T]) indexOf(key string) (int, bool) {
	idx, ok := b.indexOfKey[key]
	return idx, ok
}

func (b *Bucket[T]) keyAt(index int) (string, bool) {
	if index < 0 || index >= len(b.keyOfIndex) {
		return "", false
	}
	key := b.keyOfIndex[index]
	if key == "" {
		return "", false // tombstoned: removed, index never reassigned
	}
	return key, true
}

func (b *Bucket[T]) sortedKeys() []string {
	keys := b.values.Keys()
	sort.Strings(keys)
	return keys
}

func (b *Bucket[T]) runAfterDecode(reg *Registry) error {
	if b.codec.AfterDecode == nil {
		return nil
	}
	for _, key := range b.sortedKeys() {
		value, _ := b.values.Get(key)
		if err := b.codec.AfterDecode(reg, key, &value); err != nil {
			return fmt.Errorf("asset: after_decode %s/%s: %w", b.name, key, err)
		}
		b.values.Set(key, value)
	}
	return nil
}

// assignIndices gives every not-yet-indexed key in sorted order a
// fresh, append-only index (§4.7 step 4). Previously assigned indices
// are never touched, so a hot-reload of an existing asset keeps its
// index and a brand new asset is appended at the end of the range.
func (b *Bucket[T]) assignIndices(keys []string) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		if _, exists := b.indexOfKey[key]; exists {
			continue
		}
		idx := len(b.keyOfIndex)
		b.indexOfKey[key] = idx
		b.keyOfIndex = append(b.keyOfIndex, key)
	}
}

// RegisterType declares a new asset type on reg. It is a startup
// error to register the same type name twice or to register after
// Seal.
func RegisterType[T any](reg *Registry, typeName string, codec Codec[T], indexed bool) (*Bucket[T], error) {
	if reg.sealed {
		return nil, fmt.Errorf("asset: registry sealed, cannot register type %q", typeName)
	}
	if _, exists := reg.buckets[typeName]; exists {
		return nil, fmt.Errorf("asset: type %q already registered", typeName)
	}
	b := &Bucket[T]{
		name:       typeName,
		codec:      codec,
		indexed:    indexed,
		values:     newHashMap[T](),
		indexOfKey: make(map[string]int),
	}
	reg.buckets[typeName] = b
	reg.order = append(reg.order, typeName)
	return b, nil
}

// parentKey reads the conventional "parent" field asset source files
// use to reference another asset of the same type to inherit from.
func parentKey(raw map[string]any) (string, bool) {
	v, ok := raw["parent"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// topoSort orders raws' keys so every asset is visited after its
// parent, detecting cycles along the way (§4.7 step 3).
func topoSort(raws map[string]map[string]any) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(raws))
	order := make([]string, 0, len(raws))

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case done:
			return nil
		case visiting:
			return protocol.ErrCyclicAssetInheritance
		}
		state[key] = visiting
		if pk, ok := parentKey(raws[key]); ok {
			if _, exists := raws[pk]; !exists {
				return fmt.Errorf("asset: %s: parent %q not found", key, pk)
			}
			if err := visit(pk); err != nil {
				return err
			}
		}
		state[key] = done
		order = append(order, key)
		return nil
	}

	keys := make([]string, 0, len(raws))
	for k := range raws {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// LoadType decodes every asset in raws into b, resolving parent
// inheritance in topological order, then (if b is an indexed type)
// assigning stable integer indices in sorted-key order.
func LoadType[T any](reg *Registry, b *Bucket[T], raws map[string]map[string]any) error {
	order, err := topoSort(raws)
	if err != nil {
		return err
	}

	for _, key := range order {
		var parent *T
		if pk, ok := parentKey(raws[key]); ok {
			p, exists := b.values.Get(pk)
			if !exists {
				return fmt.Errorf("asset: %s: parent %q was not decoded before it", key, pk)
			}
			parent = &p
		}
		value, err := b.codec.Decode(raws[key], parent)
		if err != nil {
			return fmt.Errorf("asset: %s/%s: %w", b.name, key, err)
		}
		b.values.Set(key, value)
	}

	if b.indexed {
		b.assignIndices(order)
	}
	return nil
}

// Get looks up typeName/key and type-asserts it to T. It returns
// false if typeName was never registered as a Bucket[T], or key is
// absent.
func Get[T any](reg *Registry, typeName, key string) (T, bool) {
	var zero T
	bh, ok := reg.buckets[typeName]
	if !ok {
		return zero, false
	}
	b, ok := bh.(*Bucket[T])
	if !ok {
		return zero, false
	}
	return b.values.Get(key)
}

// ByIndex looks up typeName's asset at index and type-asserts it to
// T, for indexed lookup tables.
func ByIndex[T any](reg *Registry, typeName string, index int) (T, bool) {
	var zero T
	bh, ok := reg.buckets[typeName]
	if !ok {
		return zero, false
	}
	b, ok := bh.(*Bucket[T])
	if !ok {
		return zero, false
	}
	key, ok := b.keyAt(index)
	if !ok {
		return zero, false
	}
	return b.values.Get(key)
}

// ReloadOne decodes a single replacement asset and installs it,
// preserving its existing index if it was already indexed, and bumps
// the registry's generation (§4.7 hot-reload contract).
func ReloadOne[T any](reg *Registry, b *Bucket[T], key string, raw map[string]any) error {
	var parent *T
	if pk, ok := parentKey(raw); ok {
		p, exists := b.values.Get(pk)
		if !exists {
			return fmt.Errorf("asset: %s: parent %q not loaded", key, pk)
		}
		parent = &p
	}
	value, err := b.codec.Decode(raw, parent)
	if err != nil {
		return fmt.Errorf("asset: reload %s/%s: %w", b.name, key, err)
	}
	b.values.Set(key, value)
	if b.indexed {
		if _, exists := b.indexOfKey[key]; !exists {
			idx := len(b.keyOfIndex)
			b.indexOfKey[key] = idx
			b.keyOfIndex = append(b.keyOfIndex, key)
		}
	}
	reg.bumpGeneration()
	return nil
}

// RemoveOne deletes key from b. Its previously assigned index, if
// any, is tombstoned rather than freed: the §4.8 invariant is that an
// index is never reassigned to a different key for the lifetime of a
// client session.
func RemoveOne[T any](reg *Registry, b *Bucket[T], key string) {
	b.values.Delete(key)
	if idx, ok := b.indexOfKey[key]; ok {
		b.keyOfIndex[idx] = ""
		delete(b.indexOfKey, key)
	}
	reg.bumpGeneration()
}
