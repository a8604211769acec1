package vssmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/canbridge/signal"
)

func TestMapLightLevel(t *testing.T) {
	m, err := NewMapper(MapperDeps{})
	require.NoError(t, err)

	sample, ok := m.Map(0x100, signal.DecodedSignal{
		Name: "lightLevel", Value: 80, Kind: signal.KindUint8, Unit: "%",
	}, 12.5)
	require.True(t, ok)
	assert.Equal(t, "Vehicle.Body.Lights.AmbientLight", sample.Path)
	assert.Equal(t, float64(80), sample.Value)
	assert.Equal(t, TypeFloat, sample.DataType)
	assert.Equal(t, 12.5, sample.Timestamp)
}

func TestMapBooleanSignal(t *testing.T) {
	m, err := NewMapper(MapperDeps{})
	require.NoError(t, err)

	sample, ok := m.Map(0x100, signal.DecodedSignal{
		Name: "headLamp", Value: 1, Bool: true, Kind: signal.KindBool,
	}, 0)
	require.True(t, ok)
	assert.Equal(t, "Vehicle.Body.Lights.IsHighBeamOn", sample.Path)
	assert.Equal(t, TypeBoolean, sample.DataType)
	assert.True(t, sample.Bool)
	assert.Equal(t, float64(1), sample.Value)
}

func TestMapUnmappedSignalDropped(t *testing.T) {
	m, err := NewMapper(MapperDeps{})
	require.NoError(t, err)

	// ambient has no built-in VSS mapping.
	_, ok := m.Map(0x100, signal.DecodedSignal{Name: "ambient", Value: 300}, 0)
	assert.False(t, ok)

	// Same name under another identifier is a different key.
	_, ok = m.Map(0x200, signal.DecodedSignal{Name: "lightLevel", Value: 80}, 0)
	assert.False(t, ok)
}

func TestMapAllProjectsEverythingMapped(t *testing.T) {
	m, err := NewMapper(MapperDeps{})
	require.NoError(t, err)

	samples := m.MapAll(0x100, []signal.DecodedSignal{
		{Name: "headLamp", Value: 1, Bool: true},
		{Name: "vehicleSpeed", Value: 60},
		{Name: "ambient", Value: 300},
	}, 1.0)

	require.Len(t, samples, 2)
	assert.Equal(t, "Vehicle.Body.Lights.IsHighBeamOn", samples[0].Path)
	assert.Equal(t, "Vehicle.Speed", samples[1].Path)
	assert.Equal(t, float64(60), samples[1].Value)
}

func TestResourceOverridesBuiltinAndTransforms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vss.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"identifier": 256,
			"signal": "lightLevel",
			"path": "Vehicle.Cabin.Light.AmbientIntensity",
			"dataType": "float",
			"scale": 0.5,
			"offset": 10,
			"hasTransform": true
		},
		{
			"identifier": 513,
			"signal": "rpm",
			"path": "Vehicle.Powertrain.CombustionEngine.Speed"
		}
	]`), 0o644))

	m, err := NewMapper(MapperDeps{ResourcePath: path})
	require.NoError(t, err)

	sample, ok := m.Map(0x100, signal.DecodedSignal{Name: "lightLevel", Value: 80}, 0)
	require.True(t, ok)
	assert.Equal(t, "Vehicle.Cabin.Light.AmbientIntensity", sample.Path)
	assert.Equal(t, float64(50), sample.Value) // 80*0.5 + 10

	// Entries without a dataType default to float.
	sample, ok = m.Map(0x201, signal.DecodedSignal{Name: "rpm", Value: 3000}, 0)
	require.True(t, ok)
	assert.Equal(t, TypeFloat, sample.DataType)

	// Untouched built-ins remain.
	_, ok = m.Map(0x100, signal.DecodedSignal{Name: "headLamp", Bool: true}, 0)
	assert.True(t, ok)
}

func TestIncompleteResourceFallsBackToBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vss.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"identifier": 256, "signal": "x"}]`), 0o644))

	m, err := NewMapper(MapperDeps{ResourcePath: path})
	require.NoError(t, err)

	// The bad file is rejected whole; the built-in set still serves.
	_, ok := m.Map(0x100, signal.DecodedSignal{Name: "x"}, 0)
	assert.False(t, ok)
	sample, ok := m.Map(0x100, signal.DecodedSignal{Name: "lightLevel", Value: 80}, 0)
	require.True(t, ok)
	assert.Equal(t, float64(80), sample.Value)
}

func TestMissingResourceFallsBackToBuiltin(t *testing.T) {
	m, err := NewMapper(MapperDeps{ResourcePath: "/nonexistent/vss.json"})
	require.NoError(t, err)

	_, ok := m.Map(0x100, signal.DecodedSignal{Name: "headLamp", Bool: true}, 0)
	assert.True(t, ok)
}

func TestMissingResourceWithoutBuiltinFails(t *testing.T) {
	_, err := NewMapper(MapperDeps{ResourcePath: "/nonexistent/vss.json", SkipBuiltin: true})
	assert.Error(t, err)
}
