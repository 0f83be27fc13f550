package entity

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/nictuku/voxelserver/internal/varint"
)

// MetaKey is the integer ID a meta-store key is registered under in a
// MetaRegistry (§3).
type MetaKey uint32

// MetaCodec (de)serializes one registered key's typed value to/from
// bytes for persistence (§6: "Meta-store: serialized map
// {known-keys: typed-bytes, unknown-keys: raw-bytes-verbatim}").
type MetaCodec struct {
	Encode func(value any) ([]byte, error)
	Decode func(data []byte) (any, error)
}

// MetaRegistry assigns stable integer IDs to meta-store key names,
// analogous to the IMetaRegistry named in §3. It is meant to be built
// once at startup and is not safe for concurrent registration.
type MetaRegistry struct {
	nextID uint32
	byName map[string]MetaKey
	codecs map[MetaKey]MetaCodec
}

// NewMetaRegistry creates an empty registry.
func NewMetaRegistry() *MetaRegistry {
	return &MetaRegistry{
		byName: make(map[string]MetaKey),
		codecs: make(map[MetaKey]MetaCodec),
	}
}

// Register assigns and returns a fresh MetaKey for name with the
// given codec. Re-registering the same name is a startup error.
func (r *MetaRegistry) Register(name string, codec MetaCodec) (MetaKey, error) {
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("entity: meta key %q already registered", name)
	}
	id := MetaKey(r.nextID)
	r.nextID++
	r.byName[name] = id
	r.codecs[id] = codec
	return id, nil
}

// Lookup returns the codec for a registered key ID.
func (r *MetaRegistry) Lookup(key MetaKey) (MetaCodec, bool) {
	c, ok := r.codecs[key]
	return c, ok
}

// MetaStore is the per-entity typed key-value store of §3: known keys
// decode into a sparse map by key-ID; keys absent from the registry
// at decode time are preserved verbatim so a newer server version's
// fields round-trip losslessly through an older one.
type MetaStore struct {
	registry *MetaRegistry
	known    map[MetaKey]any
	unknown  map[uint32][]byte

	dirty      atomic.Bool
	cached     []byte
	cacheValid bool
}

func newMetaStore() *MetaStore {
	return &MetaStore{
		known:   make(map[MetaKey]any),
		unknown: make(map[uint32][]byte),
	}
}

// GetMeta reads key's current value directly (no dirty-flag
// involvement on reads, per §4.5).
func GetMeta[T any](m *MetaStore, key MetaKey) (T, bool) {
	v, ok := m.known[key]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// SetMeta writes key's value through the typed accessor, marking the
// whole meta-store dirty and invalidating the cached snapshot (§3,
// §4.5).
func SetMeta[T any](m *MetaStore, key MetaKey, value T) {
	m.known[key] = value
	m.dirty.Store(true)
	m.cacheValid = false
}

// IsDirty reports the dirty flag without consuming it.
func (m *MetaStore) IsDirty() bool { return m.dirty.Load() }

// ConsumeDirty atomically tests-and-clears the dirty flag (§4.5).
func (m *MetaStore) ConsumeDirty() bool { return m.dirty.Swap(false) }

// Encode serializes the meta-store to the persisted format of §6:
// each entry is `VarUInt key_id, VarUInt len, len bytes of payload`,
// known keys encoded through their registered codec and unknown keys
// copied verbatim. When nothing has changed since the last Decode or
// Encode, the previously computed snapshot is returned unchanged —
// this is what makes encode(decode(bytes)) == bytes hold even though
// map iteration order is not itself stable.
func (m *MetaStore) Encode() ([]byte, error) {
	if m.cacheValid {
		return m.cached, nil
	}

	type entry struct {
		key MetaKey
		raw []byte
	}
	entries := make([]entry, 0, len(m.known)+len(m.unknown))

	for key, value := range m.known {
		codec, ok := m.registry.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("entity: meta key %d has no codec", key)
		}
		raw, err := codec.Encode(value)
		if err != nil {
			return nil, fmt.Errorf("entity: encode meta key %d: %w", key, err)
		}
		entries = append(entries, entry{key: key, raw: raw})
	}
	for key, raw := range m.unknown {
		entries = append(entries, entry{key: MetaKey(key), raw: raw})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	var out []byte
	for _, e := range entries {
		out = varint.Write(out, uint32(e.key))
		out = varint.Write(out, uint32(len(e.raw)))
		out = append(out, e.raw...)
	}

	m.cached = out
	m.cacheValid = true
	m.dirty.Store(false)
	return out, nil
}

// DecodeMetaStore parses the persisted format of §6 against registry,
// preserving any key absent from registry verbatim in the unknown
// side buffer.
func DecodeMetaStore(registry *MetaRegistry, data []byte) (*MetaStore, error) {
	m := newMetaStore()
	m.registry = registry

	offset := 0
	for offset < len(data) {
		keyID, n, err := varint.Read(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("entity: meta key varint: %w", err)
		}
		offset += n

		length, n, err := varint.Read(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("entity: meta length varint: %w", err)
		}
		offset += n

		if offset+int(length) > len(data) {
			return nil, fmt.Errorf("entity: meta payload truncated for key %d", keyID)
		}
		raw := data[offset : offset+int(length)]
		offset += int(length)

		key := MetaKey(keyID)
		if codec, ok := registry.Lookup(key); ok {
			value, err := codec.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("entity: decode meta key %d: %w", keyID, err)
			}
			m.known[key] = value
		} else {
			cp := append([]byte(nil), raw...)
			m.unknown[keyID] = cp
		}
	}

	// Freshly decoded: clean, and the exact input bytes are a valid
	// cached snapshot until the next write.
	m.cached = append([]byte(nil), data...)
	m.cacheValid = true
	m.dirty.Store(false)
	return m, nil
}
