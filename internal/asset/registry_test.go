package asset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fluidAsset struct {
	Key        string
	FlowRate   int
	CanDemote  bool
	SupportsID string // FieldRef, resolved in after_decode
	SupportsIx int
}

func fluidCodec() Codec[fluidAsset] {
	return Codec[fluidAsset]{
		New: func() fluidAsset { return fluidAsset{} },
		Fields: []FieldSpec[fluidAsset]{
			{
				Name: "flow_rate", Type: FieldInt, Required: true,
				Get: func(t *fluidAsset) any { return t.FlowRate },
				Set: func(t *fluidAsset, v any) error { t.FlowRate = v.(int); return nil },
			},
			{
				Name: "can_demote", Type: FieldBool, Default: false,
				Get: func(t *fluidAsset) any { return t.CanDemote },
				Set: func(t *fluidAsset, v any) error { t.CanDemote = v.(bool); return nil },
			},
			{
				Name: "supported_by", Type: FieldRef, Default: "",
				Get: func(t *fluidAsset) any { return t.SupportsID },
				Set: func(t *fluidAsset, v any) error { t.SupportsID = v.(string); return nil },
			},
		},
		AfterDecode: func(reg *Registry, key string, value *fluidAsset) error {
			if value.SupportsID == "" {
				return nil
			}
			idx, ok := reg.IndexOf("fluid", value.SupportsID)
			if !ok {
				return fmt.Errorf("unresolved supported_by reference %q", value.SupportsID)
			}
			value.SupportsIx = idx
			return nil
		},
	}
}

func encodeFluid(v fluidAsset) ([]byte, error) {
	return []byte(fmt.Sprintf("%d,%v,%d", v.FlowRate, v.CanDemote, v.SupportsIx)), nil
}

func TestRegisterTypeAndLoadBasic(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)

	raws := map[string]map[string]any{
		"water": {"flow_rate": 5},
		"lava":  {"flow_rate": 30, "can_demote": true},
	}
	require.NoError(t, LoadType(reg, b, raws))

	water, ok := Get[fluidAsset](reg, "fluid", "water")
	require.True(t, ok)
	assert.Equal(t, 5, water.FlowRate)
	assert.False(t, water.CanDemote)

	lava, ok := Get[fluidAsset](reg, "fluid", "lava")
	require.True(t, ok)
	assert.True(t, lava.CanDemote)
}

func TestInheritanceFillsMissingFieldsFromParent(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)

	raws := map[string]map[string]any{
		"fluid_base":    {"flow_rate": 10, "can_demote": true},
		"finite_fluid":  {"parent": "fluid_base"},
		"shallow_fluid": {"parent": "fluid_base", "flow_rate": 1},
	}
	require.NoError(t, LoadType(reg, b, raws))

	finite, ok := Get[fluidAsset](reg, "fluid", "finite_fluid")
	require.True(t, ok)
	assert.Equal(t, 10, finite.FlowRate, "missing field must inherit from parent")
	assert.True(t, finite.CanDemote)

	shallow, ok := Get[fluidAsset](reg, "fluid", "shallow_fluid")
	require.True(t, ok)
	assert.Equal(t, 1, shallow.FlowRate, "present field overrides parent")
	assert.True(t, shallow.CanDemote, "omitted field still inherits")
}

func TestCyclicInheritanceIsStartupError(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)

	raws := map[string]map[string]any{
		"a": {"parent": "b", "flow_rate": 1},
		"b": {"parent": "a", "flow_rate": 1},
	}
	err = LoadType(reg, b, raws)
	assert.Error(t, err)
}

func TestRequiredFieldMissingWithNoParentIsError(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)

	raws := map[string]map[string]any{
		"broken": {},
	}
	err = LoadType(reg, b, raws)
	assert.Error(t, err)
}

func TestIndicesAreStableAcrossReload(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)

	raws := map[string]map[string]any{
		"lava":  {"flow_rate": 30},
		"water": {"flow_rate": 5},
	}
	require.NoError(t, LoadType(reg, b, raws))

	lavaIdx, ok := reg.IndexOf("fluid", "lava")
	require.True(t, ok)
	waterIdx, ok := reg.IndexOf("fluid", "water")
	require.True(t, ok)
	assert.Less(t, lavaIdx, waterIdx, "sorted-by-key order: lava < water")

	require.NoError(t, ReloadOne(reg, b, "water", map[string]any{"flow_rate": 6}))
	reloadedIdx, ok := reg.IndexOf("fluid", "water")
	require.True(t, ok)
	assert.Equal(t, waterIdx, reloadedIdx, "reload of an existing asset must keep its index")

	require.NoError(t, ReloadOne(reg, b, "acid", map[string]any{"flow_rate": 40}))
	acidIdx, ok := reg.IndexOf("fluid", "acid")
	require.True(t, ok)
	assert.Equal(t, 2, acidIdx, "new asset appended at the end of the range")
}

func TestRemoveOneTombstonesIndexForever(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)
	require.NoError(t, LoadType(reg, b, map[string]map[string]any{
		"water": {"flow_rate": 5},
	}))

	waterIdx, ok := reg.IndexOf("fluid", "water")
	require.True(t, ok)

	RemoveOne(reg, b, "water")
	_, ok = reg.IndexOf("fluid", "water")
	assert.False(t, ok)

	require.NoError(t, ReloadOne(reg, b, "acid", map[string]any{"flow_rate": 1}))
	acidIdx, ok := reg.IndexOf("fluid", "acid")
	require.True(t, ok)
	assert.NotEqual(t, waterIdx, acidIdx, "a tombstoned index must never be reassigned")
}

func TestAfterDecodeResolvesCrossAssetReference(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)

	raws := map[string]map[string]any{
		"stone":      {"flow_rate": 0},
		"water":      {"flow_rate": 5, "supported_by": "stone"},
	}
	require.NoError(t, LoadType(reg, b, raws))
	require.NoError(t, reg.RunAfterDecodeHooks())

	water, ok := Get[fluidAsset](reg, "fluid", "water")
	require.True(t, ok)
	stoneIdx, ok := reg.IndexOf("fluid", "stone")
	require.True(t, ok)
	assert.Equal(t, stoneIdx, water.SupportsIx)
}

func TestHotReloadBumpsGeneration(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)
	require.NoError(t, LoadType(reg, b, map[string]map[string]any{"water": {"flow_rate": 5}}))

	gen0 := reg.Generation()
	require.NoError(t, ReloadOne(reg, b, "water", map[string]any{"flow_rate": 6}))
	assert.Equal(t, gen0+1, reg.Generation())
}

func TestDescribeFormatsKnownAndUnknownIndex(t *testing.T) {
	reg := NewRegistry()
	b, err := RegisterType(reg, "fluid", fluidCodec(), true)
	require.NoError(t, err)
	require.NoError(t, LoadType(reg, b, map[string]map[string]any{"water": {"flow_rate": 5}}))

	format := func(v fluidAsset) string { return fmt.Sprintf("flow=%d", v.FlowRate) }
	idx, _ := reg.IndexOf("fluid", "water")
	assert.Equal(t, "flow=5", Describe[fluidAsset](reg, "fluid", idx, format))
	assert.Contains(t, Describe[fluidAsset](reg, "fluid", 999, format), "<unknown>")
}

func TestRegisterTypeAfterSealIsError(t *testing.T) {
	reg := NewRegistry()
	reg.Seal()
	_, err := RegisterType(reg, "fluid", fluidCodec(), true)
	assert.Error(t, err)
}
