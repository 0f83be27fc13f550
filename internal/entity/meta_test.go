package entity

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Codec() MetaCodec {
	return MetaCodec{
		Encode: func(value any) ([]byte, error) {
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(value.(int32)))
			return buf, nil
		},
		Decode: func(data []byte) (any, error) {
			return int32(binary.LittleEndian.Uint32(data)), nil
		},
	}
}

func stringCodec() MetaCodec {
	return MetaCodec{
		Encode: func(value any) ([]byte, error) { return []byte(value.(string)), nil },
		Decode: func(data []byte) (any, error) { return string(data), nil },
	}
}

func TestMetaStoreSetAndGetRoundTrip(t *testing.T) {
	reg := NewMetaRegistry()
	nameKey, err := reg.Register("display_name", stringCodec())
	require.NoError(t, err)

	s := NewStore(reg)
	a := s.Spawn()
	m := s.MetaStore(a)

	SetMeta(m, nameKey, "Steve")
	v, ok := GetMeta[string](m, nameKey)
	require.True(t, ok)
	assert.Equal(t, "Steve", v)
}

func TestMetaStoreDirtyFlagIsTestAndClear(t *testing.T) {
	reg := NewMetaRegistry()
	healthKey, err := reg.Register("health", int32Codec())
	require.NoError(t, err)

	m := newMetaStore()
	m.registry = reg
	assert.False(t, m.IsDirty())

	SetMeta(m, healthKey, int32(20))
	assert.True(t, m.IsDirty())
	assert.True(t, m.ConsumeDirty())
	assert.False(t, m.IsDirty())
	assert.False(t, m.ConsumeDirty())
}

func TestMetaStoreEncodeDecodeRoundTrip(t *testing.T) {
	reg := NewMetaRegistry()
	healthKey, err := reg.Register("health", int32Codec())
	require.NoError(t, err)
	nameKey, err := reg.Register("display_name", stringCodec())
	require.NoError(t, err)

	m := newMetaStore()
	m.registry = reg
	SetMeta(m, healthKey, int32(20))
	SetMeta(m, nameKey, "Alex")

	encoded, err := m.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMetaStore(reg, encoded)
	require.NoError(t, err)

	health, ok := GetMeta[int32](decoded, healthKey)
	require.True(t, ok)
	assert.Equal(t, int32(20), health)

	name, ok := GetMeta[string](decoded, nameKey)
	require.True(t, ok)
	assert.Equal(t, "Alex", name)
}

func TestMetaStorePreservesUnknownKeysVerbatim(t *testing.T) {
	writerReg := NewMetaRegistry()
	healthKey, err := writerReg.Register("health", int32Codec())
	require.NoError(t, err)
	futureKey, err := writerReg.Register("future_field_unreleased_server_does_not_know_this", stringCodec())
	require.NoError(t, err)

	writer := newMetaStore()
	writer.registry = writerReg
	SetMeta(writer, healthKey, int32(5))
	SetMeta(writer, futureKey, "mystery-payload")

	encoded, err := writer.Encode()
	require.NoError(t, err)

	// An older server's registry never learned about futureKey.
	readerReg := NewMetaRegistry()
	readerHealthKey, err := readerReg.Register("health", int32Codec())
	require.NoError(t, err)
	require.Equal(t, healthKey, readerHealthKey)

	reader, err := DecodeMetaStore(readerReg, encoded)
	require.NoError(t, err)

	health, ok := GetMeta[int32](reader, readerHealthKey)
	require.True(t, ok)
	assert.Equal(t, int32(5), health)

	reEncoded, err := reader.Encode()
	require.NoError(t, err)
	assert.Equal(t, encoded, reEncoded, "encode(decode(bytes)) == bytes when an unknown key is present and nothing was mutated")
}

func TestMetaStoreReEncodeAfterMutationDropsStaleCacheButKeepsUnknownKey(t *testing.T) {
	writerReg := NewMetaRegistry()
	healthKey, err := writerReg.Register("health", int32Codec())
	require.NoError(t, err)
	futureKey, err := writerReg.Register("future_field", stringCodec())
	require.NoError(t, err)

	writer := newMetaStore()
	writer.registry = writerReg
	SetMeta(writer, healthKey, int32(5))
	SetMeta(writer, futureKey, "mystery-payload")
	encoded, err := writer.Encode()
	require.NoError(t, err)

	readerReg := NewMetaRegistry()
	readerHealthKey, err := readerReg.Register("health", int32Codec())
	require.NoError(t, err)

	reader, err := DecodeMetaStore(readerReg, encoded)
	require.NoError(t, err)

	SetMeta(reader, readerHealthKey, int32(99))
	assert.True(t, reader.IsDirty())

	reEncoded, err := reader.Encode()
	require.NoError(t, err)
	assert.NotEqual(t, encoded, reEncoded)

	roundTripped, err := DecodeMetaStore(readerReg, reEncoded)
	require.NoError(t, err)
	health, ok := GetMeta[int32](roundTripped, readerHealthKey)
	require.True(t, ok)
	assert.Equal(t, int32(99), health)
}

func TestMetaRegistryDuplicateNameIsError(t *testing.T) {
	reg := NewMetaRegistry()
	_, err := reg.Register("health", int32Codec())
	require.NoError(t, err)
	_, err = reg.Register("health", int32Codec())
	assert.Error(t, err)
}
