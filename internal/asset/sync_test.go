package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nictuku/voxelserver/internal/protocol"
)

func TestBuildInitAndRoundTrip(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)
	require.NoError(t, LoadType(reg, b, map[string]map[string]any{
		"lava":  {"flow_rate": 30},
		"water": {"flow_rate": 5},
	}))

	pkt, err := BuildInit(b, "fluid", encodeFluid)
	require.NoError(t, err)
	assert.Len(t, pkt.Entries, 2)

	buf, err := EncodeInit(pkt, nil)
	require.NoError(t, err)

	decoded, err := DecodeInit(buf)
	require.NoError(t, err)
	got := decoded.(*InitPacket)
	assert.Equal(t, "fluid", got.TypeName)
	assert.Len(t, got.Entries, 2)
}

func TestBuildInitSkipsTombstonedIndices(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)
	require.NoError(t, LoadType(reg, b, map[string]map[string]any{
		"lava":  {"flow_rate": 30},
		"water": {"flow_rate": 5},
	}))
	RemoveOne(reg, b, "lava")

	pkt, err := BuildInit(b, "fluid", encodeFluid)
	require.NoError(t, err)
	require.Len(t, pkt.Entries, 1)
	assert.Equal(t, "water", pkt.Entries[0].Key)
}

func TestRemovePacketRoundTrip(t *testing.T) {
	pkt := &RemovePacket{TypeName: "fluid", Keys: []string{"lava", "water"}}
	buf, err := EncodeRemove(pkt, nil)
	require.NoError(t, err)

	decoded, err := DecodeRemove(buf)
	require.NoError(t, err)
	got := decoded.(*RemovePacket)
	assert.Equal(t, []string{"lava", "water"}, got.Keys)
}

func TestAssetPacketsRegisterWithoutDuplicateIDs(t *testing.T) {
	reg := protocol.NewRegistry()
	require.NoError(t, Register(reg, 16384, protocol.IfLargerThan(512)))
	reg.Seal()
	assert.True(t, reg.Sealed())
}
