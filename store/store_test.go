package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/canbridge/signal"
	"github.com/c360/canbridge/vssmap"
	"github.com/c360/canbridge/wire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(StoreDeps{Path: filepath.Join(t.TempDir(), "canbridge.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(StoreDeps{})
	assert.Error(t, err)
}

func TestSaveFrameAndSignals(t *testing.T) {
	s := openTestStore(t)

	env := &wire.Envelope{
		Identifier:          0x100,
		DeclaredLength:      8,
		Payload:             []byte{1, 50, 60, 0, 0, 0, 0, 0},
		ProducedAtWallClock: 1700000000,
		ProducedAtSimTime:   1.5,
	}
	signals := []signal.DecodedSignal{
		{Name: "headLamp", Value: 1, Bool: true},
		{Name: "lightLevel", Value: 50, Unit: "%"},
	}

	id, err := s.SaveFrame(testContext(t), env, signals)
	require.NoError(t, err)
	assert.Positive(t, id)

	n, err := s.MessageCount(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var signalCount int64
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM can_signals WHERE message_id = ?`, id).Scan(&signalCount))
	assert.Equal(t, int64(2), signalCount)
}

func TestSaveSamplesAndLatest(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveSamples(testContext(t), []vssmap.Sample{
		{Path: "Vehicle.Body.Lights.AmbientLight", DataType: vssmap.TypeFloat, Value: 42, Timestamp: 1},
		{Path: "Vehicle.Speed", DataType: vssmap.TypeFloat, Value: 60, Unit: "km/h", Timestamp: 1},
	}))
	require.NoError(t, s.SaveSamples(testContext(t), []vssmap.Sample{
		{Path: "Vehicle.Body.Lights.AmbientLight", DataType: vssmap.TypeFloat, Value: 80, Timestamp: 2},
	}))

	latest, err := s.LatestSamples(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, float64(80), latest["Vehicle.Body.Lights.AmbientLight"])
	assert.Equal(t, float64(60), latest["Vehicle.Speed"])
}

func TestSaveSamplesEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveSamples(testContext(t), nil))
}
