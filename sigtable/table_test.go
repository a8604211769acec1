package sigtable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/signal"
	"github.com/c360/canbridge/wire"
)

func lightControlEnvelope() *wire.Envelope {
	return &wire.Envelope{
		Identifier:     LightControlID,
		DeclaredLength: 8,
		Payload:        []byte{1, 50, 60, 0, 0, 0, 0, 0},
	}
}

func byName(signals []signal.DecodedSignal) map[string]signal.DecodedSignal {
	m := make(map[string]signal.DecodedSignal, len(signals))
	for _, s := range signals {
		m[s.Name] = s
	}
	return m
}

func TestBuiltinLightControlIsValid(t *testing.T) {
	require.NoError(t, BuiltinLightControl().Validate())
}

func TestDecodeDeclarative(t *testing.T) {
	table, err := NewTable(TableDeps{})
	require.NoError(t, err)

	res := table.Decode(lightControlEnvelope())
	assert.Equal(t, SourceDeclarative, res.Source)
	assert.Equal(t, "LIGHT_CONTROL", res.LayoutName)
	require.NoError(t, res.Err)

	m := byName(res.Signals)
	assert.True(t, m["headLamp"].Bool)
	assert.Equal(t, float64(50), m["lightLevel"].Value)
	assert.Equal(t, float64(60), m["vehicleSpeed"].Value)
	assert.False(t, m["tailLamp"].Bool)
}

func TestDecodeFallback(t *testing.T) {
	reg := metric.NewRegistry()
	table, err := NewTable(TableDeps{SkipBuiltin: true, Metrics: reg})
	require.NoError(t, err)

	res := table.Decode(lightControlEnvelope())
	assert.Equal(t, SourceFallback, res.Source)
	require.NoError(t, res.Err)

	m := byName(res.Signals)
	assert.True(t, m["headLamp"].Bool)
	assert.Equal(t, float64(50), m["lightLevel"].Value)
	assert.Equal(t, float64(60), m["vehicleSpeed"].Value)

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Core.DecodeFallbacks))
}

func TestFallbackMatchesDeclarative(t *testing.T) {
	declarative, err := NewTable(TableDeps{})
	require.NoError(t, err)
	fallback, err := NewTable(TableDeps{SkipBuiltin: true})
	require.NoError(t, err)

	env := &wire.Envelope{
		Identifier:     LightControlID,
		DeclaredLength: 8,
		Payload:        []byte{0x15, 87, 54, 0x01, 0x2C, 0, 0, 0},
	}

	want := byName(declarative.Decode(env).Signals)
	got := byName(fallback.Decode(env).Signals)
	require.Equal(t, len(want), len(got))
	for name, w := range want {
		assert.Equal(t, w, got[name], "signal %s", name)
	}
	assert.Equal(t, float64(300), got["ambient"].Value)
	assert.True(t, got["lightLevel"].Bool)
	assert.Equal(t, "lx", got["ambient"].Unit)
}

func TestDecodeUnknownIdentifier(t *testing.T) {
	reg := metric.NewRegistry()
	table, err := NewTable(TableDeps{Metrics: reg})
	require.NoError(t, err)

	env := &wire.Envelope{Identifier: 0x2AB, DeclaredLength: 8, Payload: make([]byte, 8)}

	res := table.Decode(env)
	assert.Equal(t, SourceFailed, res.Source)
	assert.ErrorIs(t, res.Err, errors.ErrUnknownIdentifier)
	assert.Empty(t, res.Signals)

	// Second decode of the same id still fails but is only logged once.
	table.Decode(env)
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.Core.UnknownIdentifiers))
	assert.Len(t, table.loggedUnknown, 1)
}

func TestLoadResourceOverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"identifier": 256,
			"name": "LIGHT_CONTROL_V2",
			"byteLength": 8,
			"signals": [
				{"name": "headLamp", "startBit": 0, "bitWidth": 1, "kind": "bool"},
				{"name": "lightLevel", "startBit": 8, "bitWidth": 8, "kind": "uint8", "max": 255}
			]
		},
		{
			"identifier": 513,
			"name": "POWERTRAIN",
			"byteLength": 8,
			"signals": [
				{"name": "rpm", "startBit": 0, "bitWidth": 16, "kind": "uint16", "max": 65535}
			]
		}
	]`), 0o644))

	table, err := NewTable(TableDeps{ResourcePath: path})
	require.NoError(t, err)

	res := table.Decode(lightControlEnvelope())
	assert.Equal(t, SourceDeclarative, res.Source)
	assert.Equal(t, "LIGHT_CONTROL_V2", res.LayoutName)
	assert.Len(t, res.Signals, 2)

	_, ok := table.Layout(0x201)
	assert.True(t, ok)
}

func TestInvalidResourceFallsBackToBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"identifier": 2048, "name": "BAD", "byteLength": 8, "signals": []}
	]`), 0o644))

	table, err := NewTable(TableDeps{ResourcePath: path})
	require.NoError(t, err)

	res := table.Decode(lightControlEnvelope())
	assert.Equal(t, SourceDeclarative, res.Source)
	assert.Equal(t, "LIGHT_CONTROL", res.LayoutName)
	_, ok := table.Layout(2048)
	assert.False(t, ok)
}

func TestMissingResourceFallsBackToBuiltin(t *testing.T) {
	table, err := NewTable(TableDeps{ResourcePath: "/nonexistent/layouts.json"})
	require.NoError(t, err)

	res := table.Decode(lightControlEnvelope())
	assert.Equal(t, SourceDeclarative, res.Source)
	assert.Equal(t, "LIGHT_CONTROL", res.LayoutName)
}

func TestMissingResourceWithoutBuiltinFails(t *testing.T) {
	_, err := NewTable(TableDeps{ResourcePath: "/nonexistent/layouts.json", SkipBuiltin: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResourceLoad)
	assert.True(t, errors.IsTransient(err))
}

func TestFallbackHonorsDeclaredLength(t *testing.T) {
	table, err := NewTable(TableDeps{SkipBuiltin: true})
	require.NoError(t, err)

	env := lightControlEnvelope()
	env.DeclaredLength = 2

	m := byName(table.Decode(env).Signals)
	assert.Contains(t, m, "headLamp")
	assert.Contains(t, m, "lightLevel")
	assert.NotContains(t, m, "vehicleSpeed")
	assert.NotContains(t, m, "ambient")
}
